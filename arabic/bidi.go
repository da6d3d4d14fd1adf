package arabic

import (
	"strings"

	"golang.org/x/text/unicode/bidi"
)

// reorderVisual converts OCR output from visual to logical order, line by
// line. A line dominated by right-to-left text is reversed wholesale, then
// embedded left-to-right runs (Latin words, digit sequences) are flipped
// back so they keep their internal order.
func reorderVisual(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if hasRTL(line) {
			lines[i] = reorderLine(line)
		}
	}
	return strings.Join(lines, "\n")
}

func hasRTL(s string) bool {
	for _, r := range s {
		switch classOf(r) {
		case bidi.AL, bidi.R:
			return true
		}
	}
	return false
}

func classOf(r rune) bidi.Class {
	p, _ := bidi.LookupRune(r)
	return p.Class()
}

func reorderLine(line string) string {
	runes := []rune(line)
	reverse(runes)

	// the wholesale reversal also reversed LTR runs; restore them
	start := -1
	for i := 0; i <= len(runes); i++ {
		ltr := i < len(runes) && isLTR(runes[i])
		if ltr && start < 0 {
			start = i
		}
		if !ltr && start >= 0 {
			reverse(runes[start:i])
			start = -1
		}
	}
	return string(runes)
}

func isLTR(r rune) bool {
	switch classOf(r) {
	case bidi.L, bidi.EN, bidi.AN:
		return true
	}
	return false
}

func reverse(runes []rune) {
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
}
