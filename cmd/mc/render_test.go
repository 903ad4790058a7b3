package main

import (
	"bytes"
	"strings"
	"testing"

	"meetcast/internal/domain"
	"meetcast/internal/replay"
)

func TestRenderSummaryListsCandidates(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, domain.EventSummary{
		Status:      domain.StatusConflict,
		City:        "Taipei",
		DatetimeISO: "2026-10-16T15:00:00Z",
		DurationMin: 30,
		Reason:      "Time slot unavailable",
		Candidates: []domain.SummaryCandidate{
			{DatetimeISO: "2026-10-16T15:30:00Z", AvailableMin: 30},
		},
		RunID: "run-1",
	})
	out := buf.String()
	for _, want := range []string{"Taipei", "30 min", "Alternatives", "2026-10-16T15:30:00Z", "run-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReportShowsFailures(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, replay.Report{
		Results: []replay.Result{
			{Case: replay.Case{ID: "ok", ExpectedStatus: domain.StatusConfirmed}, Summary: domain.EventSummary{Status: domain.StatusConfirmed}, Passed: true},
			{Case: replay.Case{ID: "bad", Input: "Friday", ExpectedStatus: domain.StatusConfirmed}, Summary: domain.EventSummary{Status: domain.StatusClarificationNeeded}, Mismatch: []string{"status clarification_needed"}},
		},
		Passed: 1,
		Failed: 1,
	})
	out := buf.String()
	if !strings.Contains(out, "1/2") || !strings.Contains(out, "50.0%") {
		t.Fatalf("missing totals:\n%s", out)
	}
	if !strings.Contains(out, "bad: status clarification_needed") {
		t.Fatalf("missing mismatch detail:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("truncate long = %q", got)
	}
}
