package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lawyeralthomali/legatoo-backend-sub004/arabic"
	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
)

// IngestService parses structured law exports (or promotes flat extracted
// text) into LawSource trees, validating hierarchy invariants before any
// persistence happens.
type IngestService struct {
	normalizeSource arabic.Source
}

// NewIngestService creates an ingest service. JSON exports carry text in
// logical order, so the direct normalization path is used.
func NewIngestService() *IngestService {
	return &IngestService{normalizeSource: arabic.SourceDirect}
}

// IngestResult is one parsed law source with its statistics and report
type IngestResult struct {
	Source     *models.LawSource       `json:"law_source"`
	Statistics models.Statistics       `json:"statistics"`
	Report     models.ProcessingReport `json:"processing_report"`
}

// FlatIngestRequest carries raw extracted text plus minimal metadata for
// documents without branch/chapter structure
type FlatIngestRequest struct {
	LawName      string `json:"law_name"`
	LawType      string `json:"law_type"`
	Jurisdiction string `json:"jurisdiction"`
	Description  string `json:"description"`
	Text         string `json:"-"`
	DocumentID   *uuid.UUID
	// TextSource overrides the normalization branch; extraction reports
	// the method used, but callers may force the OCR repair path because
	// some PDF producers emit visually-ordered text even on the direct path
	TextSource arabic.Source
}

// Input shapes. Field handling is tolerant: articles may carry their text
// under "content" or "text", order_index may be absent.

type ingestPayload struct {
	LawSources json.RawMessage `json:"law_sources"`
}

type lawSourceInput struct {
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	Jurisdiction     string         `json:"jurisdiction"`
	IssuingAuthority string         `json:"issuing_authority"`
	IssueDate        string         `json:"issue_date"`
	Description      string         `json:"description"`
	Branches         []branchInput  `json:"branches"`
	Articles         []articleInput `json:"articles"`
}

type branchInput struct {
	BranchNumber string         `json:"branch_number"`
	BranchName   string         `json:"branch_name"`
	OrderIndex   *int           `json:"order_index"`
	Chapters     []chapterInput `json:"chapters"`
}

type chapterInput struct {
	ChapterNumber string         `json:"chapter_number"`
	ChapterName   string         `json:"chapter_name"`
	OrderIndex    *int           `json:"order_index"`
	Articles      []articleInput `json:"articles"`
}

type articleInput struct {
	ArticleNumber string   `json:"article_number"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Text          string   `json:"text"`
	Keywords      []string `json:"keywords"`
	OrderIndex    *int     `json:"order_index"`
}

func (a articleInput) body() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Text
}

// ParsePayload parses a top-level ingestion payload. The law_sources key
// may hold a single object or an array; both shapes are accepted for
// backward compatibility and normalized to an array before processing.
func (s *IngestService) ParsePayload(data []byte) ([]*IngestResult, error) {
	var payload ingestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &HierarchyError{Reason: fmt.Sprintf("payload is not valid JSON: %v", err)}
	}
	if len(payload.LawSources) == 0 {
		return nil, &HierarchyError{Reason: "payload has no law_sources key"}
	}

	var inputs []lawSourceInput
	if err := json.Unmarshal(payload.LawSources, &inputs); err != nil {
		var single lawSourceInput
		if err := json.Unmarshal(payload.LawSources, &single); err != nil {
			return nil, &HierarchyError{Reason: fmt.Sprintf("law_sources is neither an object nor an array: %v", err)}
		}
		inputs = []lawSourceInput{single}
	}
	if len(inputs) == 0 {
		return nil, &HierarchyError{Reason: "law_sources is empty"}
	}

	results := make([]*IngestResult, 0, len(inputs))
	for i := range inputs {
		res, err := s.buildSource(inputs[i])
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// FromFlatText synthesizes a single-article law source from raw text
func (s *IngestService) FromFlatText(req FlatIngestRequest) (*IngestResult, error) {
	source := req.TextSource
	if source == "" {
		source = arabic.SourceDirect
	}
	content := arabic.Normalize(req.Text, source)
	if content == "" {
		return nil, &HierarchyError{Reason: "flat document has no text content"}
	}
	name := strings.TrimSpace(req.LawName)
	if name == "" {
		return nil, &HierarchyError{Reason: "flat document has no law_name"}
	}

	report := models.ProcessingReport{Warnings: []string{}, Errors: []string{}, StructureConfidence: 1.0}
	lawType, err := models.ParseLawSourceType(req.LawType)
	if err != nil {
		lawType = models.SourceTypeLaw
		report.Warnings = append(report.Warnings, fmt.Sprintf("unknown law_type %q, defaulting to %q", req.LawType, models.SourceTypeLaw))
		report.StructureConfidence = 0.8
	}

	src := &models.LawSource{
		ID:           uuid.New(),
		Name:         name,
		Type:         lawType,
		Jurisdiction: req.Jurisdiction,
		Description:  req.Description,
		Status:       models.StatusRaw,
		DocumentID:   req.DocumentID,
	}
	src.Articles = []models.LawArticle{{
		ID:            uuid.New(),
		LawSourceID:   src.ID,
		ArticleNumber: "الأولى",
		Content:       content,
		Keywords:      []string{},
		OrderIndex:    0,
	}}

	return &IngestResult{
		Source:     src,
		Statistics: models.Statistics{TotalArticles: 1},
		Report:     report,
	}, nil
}

// buildSource validates and converts one law source input. The call is
// all-or-nothing at the source level: a root without a parseable name or
// without any article anywhere fails with HierarchyError, while inner
// omissions degrade into the warnings list.
func (s *IngestService) buildSource(in lawSourceInput) (*IngestResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &HierarchyError{Reason: "law source has no parseable name"}
	}

	report := models.ProcessingReport{Warnings: []string{}, Errors: []string{}}
	conf := newConfidence()
	conf.observe(name != "", in.Type != "", in.Jurisdiction != "", in.IssuingAuthority != "", in.IssueDate != "", in.Description != "")

	lawType, err := models.ParseLawSourceType(in.Type)
	if err != nil {
		lawType = models.SourceTypeLaw
		if in.Type != "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("unknown law type %q, defaulting to %q", in.Type, models.SourceTypeLaw))
		}
	}

	src := &models.LawSource{
		ID:               uuid.New(),
		Name:             name,
		Type:             lawType,
		Jurisdiction:     strings.TrimSpace(in.Jurisdiction),
		IssuingAuthority: strings.TrimSpace(in.IssuingAuthority),
		IssueDate:        normalizeDate(in.IssueDate),
		Description:      strings.TrimSpace(in.Description),
		Status:           models.StatusRaw,
	}

	stats := models.Statistics{}

	for bi, bin := range in.Branches {
		bName := strings.TrimSpace(bin.BranchName)
		bNum := strings.TrimSpace(bin.BranchNumber)
		conf.observe(bName != "", bNum != "")
		if bName == "" || bNum == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("branch %d dropped: missing branch_name or branch_number", bi))
			continue
		}
		branch := models.LawBranch{
			ID:           uuid.New(),
			LawSourceID:  src.ID,
			BranchNumber: bNum,
			BranchName:   bName,
			OrderIndex:   orderOrPosition(bin.OrderIndex, bi),
		}
		for ci, cin := range bin.Chapters {
			cName := strings.TrimSpace(cin.ChapterName)
			cNum := strings.TrimSpace(cin.ChapterNumber)
			conf.observe(cName != "", cNum != "")
			if cName == "" || cNum == "" {
				report.Warnings = append(report.Warnings, fmt.Sprintf("chapter %d of branch %q dropped: missing chapter_name or chapter_number", ci, bName))
				continue
			}
			chapter := models.LawChapter{
				ID:            uuid.New(),
				BranchID:      branch.ID,
				ChapterNumber: cNum,
				ChapterName:   cName,
				OrderIndex:    orderOrPosition(cin.OrderIndex, ci),
			}
			chapter.Articles = s.buildArticles(cin.Articles, src.ID, &chapter.ID, &report, conf)
			stats.TotalArticles += len(chapter.Articles)
			branch.Chapters = append(branch.Chapters, chapter)
			stats.TotalChapters++
		}
		src.Branches = append(src.Branches, branch)
		stats.TotalBranches++
	}

	src.Articles = s.buildArticles(in.Articles, src.ID, nil, &report, conf)
	stats.TotalArticles += len(src.Articles)

	if stats.TotalArticles == 0 {
		return nil, &HierarchyError{Reason: fmt.Sprintf("law source %q has no articles anywhere in the tree", name)}
	}

	report.StructureConfidence = conf.score()
	return &IngestResult{Source: src, Statistics: stats, Report: report}, nil
}

func (s *IngestService) buildArticles(inputs []articleInput, sourceID uuid.UUID, chapterID *uuid.UUID, report *models.ProcessingReport, conf *confidence) []models.LawArticle {
	var out []models.LawArticle
	pos := 0
	for ai, ain := range inputs {
		num := strings.TrimSpace(ain.ArticleNumber)
		content := arabic.Normalize(ain.body(), s.normalizeSource)
		conf.observe(num != "", content != "")
		if num == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("article %d dropped: missing article_number", ai))
			continue
		}
		if content == "" {
			// empty articles are a warning, not an error
			report.Warnings = append(report.Warnings, fmt.Sprintf("article %q dropped: empty content after normalization", num))
			continue
		}
		article := models.LawArticle{
			ID:            uuid.New(),
			ChapterID:     chapterID,
			LawSourceID:   sourceID,
			ArticleNumber: num,
			Content:       content,
			Keywords:      ain.Keywords,
			OrderIndex:    orderOrPosition(ain.OrderIndex, pos),
		}
		if article.Keywords == nil {
			article.Keywords = []string{}
		}
		if t := strings.TrimSpace(ain.Title); t != "" {
			article.Title = &t
		}
		out = append(out, article)
		pos++
	}
	return out
}

func orderOrPosition(idx *int, pos int) int {
	if idx != nil {
		return *idx
	}
	return pos
}

// confidence tracks the fraction of expected fields present
type confidence struct {
	present, total int
}

func newConfidence() *confidence { return &confidence{} }

func (c *confidence) observe(fields ...bool) {
	for _, present := range fields {
		c.total++
		if present {
			c.present++
		}
	}
}

func (c *confidence) score() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.present) / float64(c.total)
}

var (
	hijriMarkerRe = regexp.MustCompile(`\s*(هـ|ه\.?)\s*$`)
	slashDateRe   = regexp.MustCompile(`^(\d{1,4})/(\d{1,2})/(\d{1,4})$`)
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// normalizeDate best-effort reformats date strings to YYYY-MM-DD. Hijri
// dates with a trailing era marker and slash-separated forms are rewritten;
// anything unparsable is kept as an opaque string rather than rejected.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || isoDateRe.MatchString(s) {
		return s
	}
	stripped := hijriMarkerRe.ReplaceAllString(s, "")
	m := slashDateRe.FindStringSubmatch(strings.TrimSpace(stripped))
	if m == nil {
		return s
	}
	first, _ := strconv.Atoi(m[1])
	mid, _ := strconv.Atoi(m[2])
	last, _ := strconv.Atoi(m[3])
	// year-first or year-last
	if len(m[1]) == 4 {
		return fmt.Sprintf("%04d-%02d-%02d", first, mid, last)
	}
	if len(m[3]) == 4 {
		return fmt.Sprintf("%04d-%02d-%02d", last, mid, first)
	}
	return s
}
