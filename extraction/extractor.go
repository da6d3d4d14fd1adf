// Package extraction produces raw text from uploaded source files. It runs
// direct text-layer extraction first and falls back to page-by-page OCR when
// the text layer is missing or corrupted.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lawyeralthomali/legatoo-backend-sub004/arabic"
)

// Method records which extraction path produced the final text
type Method string

const (
	MethodDirect Method = "direct"
	MethodOCR    Method = "ocr"
	MethodText   Method = "text"
)

// ErrNoText means both extraction paths yielded empty output
var ErrNoText = errors.New("no extractable text in document")

// Result is the outcome of an extraction attempt. Text is raw (not yet
// normalized); Method is kept for audit and for choosing the repair path.
type Result struct {
	Text     string
	Method   Method
	Pages    int
	Warnings []string
}

// TextExtractor is implemented by Extractor and by test fakes
type TextExtractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// Extractor shells out to poppler (pdftotext, pdftoppm) and tesseract.
// Commands run under the caller's context so job timeouts cancel them.
type Extractor struct {
	// OCRLanguages is passed to tesseract -l
	OCRLanguages string
	// RenderDPI is the fixed resolution for page rendering before OCR
	RenderDPI int
}

// NewExtractor returns an extractor tuned for Arabic legal documents
func NewExtractor() *Extractor {
	return &Extractor{OCRLanguages: "ara+eng", RenderDPI: 300}
}

// Extract runs direct extraction, falls back to OCR when the direct result
// is empty or judged corrupted, and returns whichever path produced more
// usable content. Ties favor direct.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read text file: %w", err)
		}
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return nil, ErrNoText
		}
		return &Result{Text: text, Method: MethodText, Pages: 1}, nil
	}

	direct, directErr := e.extractDirect(ctx, path)
	if directErr == nil && !judgedCorrupted(direct) {
		return direct, nil
	}

	var warnings []string
	if directErr != nil {
		warnings = append(warnings, fmt.Sprintf("direct extraction failed: %v", directErr))
	} else {
		warnings = append(warnings, "direct extraction judged corrupted, trying OCR")
	}

	ocr, ocrErr := e.extractOCR(ctx, path)
	if ocrErr != nil {
		warnings = append(warnings, fmt.Sprintf("ocr extraction failed: %v", ocrErr))
	}

	winner := pickResult(direct, ocr)
	if winner == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrNoText
	}
	winner.Warnings = append(winner.Warnings, warnings...)
	return winner, nil
}

// judgedCorrupted applies the quality heuristic to a direct result:
// empty output, high artifact density, or anomalously little text per page
func judgedCorrupted(r *Result) bool {
	if r == nil {
		return true
	}
	normalized := arabic.Normalize(r.Text, arabic.SourceDirect)
	if normalized == "" {
		return true
	}
	if arabic.ArtifactDensity(r.Text) >= 0.2 {
		return true
	}
	pages := r.Pages
	if pages < 1 {
		pages = 1
	}
	return len([]rune(normalized)) < 40*pages
}

// pickResult chooses the output with more usable post-normalization
// content. Ties favor direct, which is cheaper and less failure-prone.
func pickResult(direct, ocr *Result) *Result {
	directLen, ocrLen := usableLen(direct, arabic.SourceDirect), usableLen(ocr, arabic.SourceOCR)
	if directLen == 0 && ocrLen == 0 {
		return nil
	}
	if ocrLen > directLen {
		return ocr
	}
	return direct
}

func usableLen(r *Result, source arabic.Source) int {
	if r == nil {
		return 0
	}
	return len([]rune(arabic.Normalize(r.Text, source)))
}

func (e *Extractor) extractDirect(ctx context.Context, path string) (*Result, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	// pdftotext separates pages with form feeds
	pages := strings.Count(text, "\f") + 1
	return &Result{Text: text, Method: MethodDirect, Pages: pages}, nil
}

func (e *Extractor) extractOCR(ctx context.Context, path string) (*Result, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not found in PATH: %w", err)
	}
	if _, err := exec.LookPath("tesseract"); err != nil {
		return nil, fmt.Errorf("tesseract not found in PATH: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "legatoo-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	render := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", strconv.Itoa(e.RenderDPI), path, prefix)
	if err := render.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w", err)
	}

	images, err := filepath.Glob(prefix + "*")
	if err != nil || len(images) == 0 {
		return nil, errors.New("no page images rendered from document")
	}
	sortByPageNumber(images)

	var (
		parts    []string
		warnings []string
	)
	for i, img := range images {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pageNum := i + 1
		cmd := exec.CommandContext(ctx, "tesseract", img, "stdout", "-l", e.OCRLanguages, "--psm", "3")
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			warnings = append(warnings, fmt.Sprintf("tesseract failed on page %d: %v", pageNum, err))
			continue
		}
		text := strings.TrimSpace(out.String())
		if len([]rune(text)) < 20 {
			// near-empty page, skip
			continue
		}
		parts = append(parts, text)
	}

	if len(parts) == 0 {
		return nil, ErrNoText
	}
	log.Printf("ocr extracted %d of %d pages from %s", len(parts), len(images), filepath.Base(path))
	return &Result{
		Text:     strings.Join(parts, "\n\n"),
		Method:   MethodOCR,
		Pages:    len(images),
		Warnings: warnings,
	}, nil
}

var pageNumRe = regexp.MustCompile(`(\d+)\.png$`)

func sortByPageNumber(files []string) {
	sort.Slice(files, func(i, j int) bool {
		return pageNumOf(files[i]) < pageNumOf(files[j])
	})
}

func pageNumOf(path string) int {
	m := pageNumRe.FindStringSubmatch(filepath.Base(path))
	if len(m) == 2 {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
