package models

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to ProcessingStatus }{
		{StatusRaw, StatusProcessing},
		{StatusRaw, StatusPendingParsing},
		{StatusPendingParsing, StatusProcessing},
		{StatusProcessing, StatusProcessed},
		{StatusProcessing, StatusFailed},
		{StatusProcessed, StatusIndexed},
		{StatusProcessed, StatusFailed},
		{StatusIndexed, StatusProcessing},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to ProcessingStatus }{
		{StatusRaw, StatusIndexed},
		{StatusRaw, StatusProcessed},
		{StatusProcessing, StatusIndexed},
		{StatusProcessed, StatusRaw},
		{StatusIndexed, StatusIndexed},
		{StatusFailed, StatusProcessing},
		{StatusFailed, StatusRaw},
	}
	for _, tr := range forbidden {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

func TestFailedIsTerminal(t *testing.T) {
	for _, to := range []ProcessingStatus{StatusRaw, StatusPendingParsing, StatusProcessing, StatusProcessed, StatusIndexed, StatusFailed} {
		if CanTransition(StatusFailed, to) {
			t.Errorf("failed must be terminal, but failed -> %s is allowed", to)
		}
	}
}

func TestParseProcessingStatus(t *testing.T) {
	if _, err := ParseProcessingStatus("indexed"); err != nil {
		t.Errorf("unexpected error for valid status: %v", err)
	}
	if _, err := ParseProcessingStatus("done"); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := ParseProcessingStatus(""); err == nil {
		t.Error("expected error for empty status")
	}
}

func TestParseLawSourceType(t *testing.T) {
	for _, valid := range []string{"law", "regulation", "code", "directive", "decree"} {
		if _, err := ParseLawSourceType(valid); err != nil {
			t.Errorf("unexpected error for %q: %v", valid, err)
		}
	}
	if _, err := ParseLawSourceType("treaty"); err == nil {
		t.Error("expected error for unknown type")
	}
}
