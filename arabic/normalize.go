// Package arabic cleans raw text extracted from Arabic legal documents.
// It repairs presentation-form glyph artifacts left behind by PDF text
// layers, collapses whitespace, and reorders OCR output that arrives in
// visual rather than logical order.
package arabic

import (
	"strings"
	"unicode"
)

// Source tells Normalize how the text was produced
type Source string

const (
	// SourceDirect is text taken from a document's text layer. It is
	// assumed to already be in logical reading order.
	SourceDirect Source = "direct"
	// SourceOCR is text produced by an OCR engine. OCR engines frequently
	// emit Arabic runs in visual order.
	SourceOCR Source = "ocr"
)

const tatweel = 'ـ'

// presentationRange maps a contiguous run of Arabic Presentation Forms-B
// code points to the base letter(s) they render
type presentationRange struct {
	lo, hi rune
	base   string
}

// Forms-B block: isolated/final/initial/medial variants per letter, plus
// the four lam-alef ligatures
var presentationForms = []presentationRange{
	{0xFE80, 0xFE80, "ء"}, // hamza
	{0xFE81, 0xFE82, "آ"}, // alef with madda
	{0xFE83, 0xFE84, "أ"}, // alef with hamza above
	{0xFE85, 0xFE86, "ؤ"}, // waw with hamza
	{0xFE87, 0xFE88, "إ"}, // alef with hamza below
	{0xFE89, 0xFE8C, "ئ"}, // yeh with hamza
	{0xFE8D, 0xFE8E, "ا"}, // alef
	{0xFE8F, 0xFE92, "ب"}, // beh
	{0xFE93, 0xFE94, "ة"}, // teh marbuta
	{0xFE95, 0xFE98, "ت"}, // teh
	{0xFE99, 0xFE9C, "ث"}, // theh
	{0xFE9D, 0xFEA0, "ج"}, // jeem
	{0xFEA1, 0xFEA4, "ح"}, // hah
	{0xFEA5, 0xFEA8, "خ"}, // khah
	{0xFEA9, 0xFEAA, "د"}, // dal
	{0xFEAB, 0xFEAC, "ذ"}, // thal
	{0xFEAD, 0xFEAE, "ر"}, // reh
	{0xFEAF, 0xFEB0, "ز"}, // zain
	{0xFEB1, 0xFEB4, "س"}, // seen
	{0xFEB5, 0xFEB8, "ش"}, // sheen
	{0xFEB9, 0xFEBC, "ص"}, // sad
	{0xFEBD, 0xFEC0, "ض"}, // dad
	{0xFEC1, 0xFEC4, "ط"}, // tah
	{0xFEC5, 0xFEC8, "ظ"}, // zah
	{0xFEC9, 0xFECC, "ع"}, // ain
	{0xFECD, 0xFED0, "غ"}, // ghain
	{0xFED1, 0xFED4, "ف"}, // feh
	{0xFED5, 0xFED8, "ق"}, // qaf
	{0xFED9, 0xFEDC, "ك"}, // kaf
	{0xFEDD, 0xFEE0, "ل"}, // lam
	{0xFEE1, 0xFEE4, "م"}, // meem
	{0xFEE5, 0xFEE8, "ن"}, // noon
	{0xFEE9, 0xFEEC, "ه"}, // heh
	{0xFEED, 0xFEEE, "و"}, // waw
	{0xFEEF, 0xFEF0, "ى"}, // alef maksura
	{0xFEF1, 0xFEF4, "ي"}, // yeh
	{0xFEF5, 0xFEF6, "لآ"}, // lam-alef with madda
	{0xFEF7, 0xFEF8, "لأ"}, // lam-alef with hamza above
	{0xFEF9, 0xFEFA, "لإ"}, // lam-alef with hamza below
	{0xFEFB, 0xFEFC, "لا"}, // lam-alef
}

func lookupForm(r rune) (string, bool) {
	if r < 0xFE80 || r > 0xFEFC {
		return "", false
	}
	for _, pr := range presentationForms {
		if r >= pr.lo && r <= pr.hi {
			return pr.base, true
		}
	}
	return "", false
}

// Normalize cleans text according to its source. Direct text gets glyph
// repair and whitespace collapsing only; applying bidirectional reordering
// to direct text would scramble already-correct output, so that pass runs
// exclusively on the OCR branch. Normalize is idempotent for SourceDirect.
func Normalize(text string, source Source) string {
	text = repairGlyphs(text)
	if source == SourceOCR {
		text = reorderVisual(text)
	}
	return collapseWhitespace(text)
}

// NeedsRepair reports whether text contains any code point from the fixed
// presentation-form artifact set
func NeedsRepair(text string) bool {
	for _, r := range text {
		if _, ok := lookupForm(r); ok {
			return true
		}
	}
	return false
}

// Fragmented reports whether the mean token length is at or below 2
// characters, a proxy for letter-by-letter OCR output
func Fragmented(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	total := 0
	for _, f := range fields {
		total += len([]rune(f))
	}
	return float64(total)/float64(len(fields)) <= 2.0
}

// ArtifactDensity returns the fraction of non-space runes that are
// presentation-form artifacts
func ArtifactDensity(text string) float64 {
	total, artifacts := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if _, ok := lookupForm(r); ok {
			artifacts++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(artifacts) / float64(total)
}

// repairGlyphs maps isolated presentation forms back to standard letters
// and strips tatweel
func repairGlyphs(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == tatweel {
			continue
		}
		if base, ok := lookupForm(r); ok {
			b.WriteString(base)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseWhitespace normalizes line endings, collapses space/tab runs,
// trims trailing spaces and caps blank-line runs at one
func collapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	// trim leading/trailing blank lines
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
