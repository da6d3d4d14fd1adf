package arabic

import "testing"

func TestNormalizeRepairsPresentationForms(t *testing.T) {
	// lam-alef ligature and final heh as a PDF text layer would emit them
	in := "ﻻ" + "ﻩ"
	got := Normalize(in, SourceDirect)
	want := "لاه"
	if got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeStripsTatweel(t *testing.T) {
	got := Normalize("عـــدل", SourceDirect)
	if got != "عدل" {
		t.Errorf("expected tatweel stripped, got %q", got)
	}
}

func TestNormalizeDirectIsIdempotent(t *testing.T) {
	inputs := []string{
		"المادة الأولى: يسمى هذا النظام نظام العمل.",
		"نص   متعدد \tالفراغات\r\n\r\n\r\nوأسطر فارغة",
		"Mixed عربي and English 123",
	}
	for _, in := range inputs {
		once := Normalize(in, SourceDirect)
		twice := Normalize(once, SourceDirect)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	in := "سطر  أول\r\n\r\n\r\n\r\nسطر ثان  \n"
	got := Normalize(in, SourceDirect)
	want := "سطر أول\n\nسطر ثان"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeOCRReordersVisualText(t *testing.T) {
	// OCR reads a rendered RTL line left to right, so the Arabic comes in
	// reversed while embedded digits keep their order
	visual := "صن 12 ةداملا"
	got := Normalize(visual, SourceOCR)
	want := "المادة 12 نص"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeOCRLeavesLatinLinesAlone(t *testing.T) {
	in := "plain latin line 42"
	if got := Normalize(in, SourceOCR); got != in {
		t.Errorf("LTR-only line must not be reordered, got %q", got)
	}
}

func TestNeedsRepair(t *testing.T) {
	if !NeedsRepair("ﻕﻘ") {
		t.Error("expected presentation forms to need repair")
	}
	if NeedsRepair("قانون سليم") {
		t.Error("standard letters must not need repair")
	}
}

func TestFragmented(t *testing.T) {
	if !Fragmented("ا ل م ا د ة") {
		t.Error("letter-by-letter output should be fragmented")
	}
	if Fragmented("المادة الأولى من النظام") {
		t.Error("normal text should not be fragmented")
	}
	if Fragmented("") {
		t.Error("empty text should not be fragmented")
	}
}

func TestArtifactDensity(t *testing.T) {
	if d := ArtifactDensity("ﻕﻘﻡ"); d != 1.0 {
		t.Errorf("all-artifact text should have density 1.0, got %f", d)
	}
	if d := ArtifactDensity("نص سليم"); d != 0 {
		t.Errorf("clean text should have density 0, got %f", d)
	}
	if d := ArtifactDensity(""); d != 0 {
		t.Errorf("empty text should have density 0, got %f", d)
	}
}
