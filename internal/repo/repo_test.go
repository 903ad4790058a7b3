package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"meetcast/internal/db"
	"meetcast/internal/domain"
	"meetcast/internal/events"
	"meetcast/internal/migrate"
	"meetcast/internal/repo"
)

func newJournal(t *testing.T) (events.Writer, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return events.Writer{DB: conn}, repo.Repo{DB: conn}
}

func sampleRun(id, ts string, status domain.Status) domain.Run {
	answer := "in Taipei"
	return domain.Run{
		ID:                 id,
		TS:                 ts,
		Input:              "Friday 15:00 team sync 30min",
		Answer:             &answer,
		Status:             status,
		Action:             domain.ActionProposeCandidates,
		ClarificationCount: 1,
		ElapsedMS:          12,
		Summary: domain.EventSummary{
			Status:    status,
			City:      "Taipei",
			Attendees: []string{},
			Reason:    "Requested time unavailable",
			Candidates: []domain.SummaryCandidate{
				{DatetimeISO: "2026-10-16T15:30:00Z", AvailableMin: 30},
			},
		},
		Transitions: []domain.Transition{
			{Stage: "extracting", At: ts},
			{Stage: "validating", At: ts, Detail: "missing fields: city"},
			{Stage: "clarifying", At: ts},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil || len(applied) == 0 {
		t.Fatalf("first migrate: applied=%d err=%v", len(applied), err)
	}
	applied, err = migrate.Migrate(ctx, conn)
	if err != nil || len(applied) != 0 {
		t.Fatalf("second migrate: applied=%d err=%v", len(applied), err)
	}
	v, err := migrate.Version(ctx, conn)
	if err != nil || v < 1 {
		t.Fatalf("version = %d err=%v", v, err)
	}
}

func TestRecordAndGetRun(t *testing.T) {
	w, r := newJournal(t)
	ctx := context.Background()
	run := sampleRun("run-1", "2026-10-14T09:00:00Z", domain.StatusConflict)
	run.DegradedNotes = []string{"Weather information unavailable - manual weather check recommended"}
	if err := w.Record(ctx, run); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := r.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != domain.StatusConflict || got.Action != domain.ActionProposeCandidates {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.Answer == nil || *got.Answer != "in Taipei" {
		t.Fatalf("answer = %v", got.Answer)
	}
	if len(got.Summary.Candidates) != 1 || got.Summary.Candidates[0].DatetimeISO != "2026-10-16T15:30:00Z" {
		t.Fatalf("summary = %+v", got.Summary)
	}
	if len(got.DegradedNotes) != 1 {
		t.Fatalf("degraded = %v", got.DegradedNotes)
	}
	if len(got.Transitions) != 3 || got.Transitions[1].Detail != "missing fields: city" {
		t.Fatalf("transitions = %+v", got.Transitions)
	}

	if err := w.Record(ctx, run); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}

func TestGetRunNotFound(t *testing.T) {
	_, r := newJournal(t)
	if _, err := r.GetRun(context.Background(), "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsPagesNewestFirst(t *testing.T) {
	w, r := newJournal(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		status := domain.StatusConfirmed
		if i%2 == 1 {
			status = domain.StatusConflict
		}
		run := sampleRun(fmt.Sprintf("run-%d", i), fmt.Sprintf("2026-10-14T09:0%d:00Z", i), status)
		run.Answer = nil
		if err := w.Record(ctx, run); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	page, err := r.ListRuns(ctx, repo.RunFilters{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "run-4" || page[1].ID != "run-3" {
		t.Fatalf("first page = %v", ids(page))
	}
	if page[0].Transitions != nil {
		t.Fatalf("list should not load transitions")
	}
	last := page[len(page)-1]
	page, err = r.ListRuns(ctx, repo.RunFilters{Limit: 2, CursorTS: last.TS, CursorID: last.ID})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page) != 2 || page[0].ID != "run-2" || page[1].ID != "run-1" {
		t.Fatalf("second page = %v", ids(page))
	}

	conflicts, err := r.ListRuns(ctx, repo.RunFilters{Status: string(domain.StatusConflict)})
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %v", ids(conflicts))
	}

	counts, err := r.CountRunsByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["confirmed"] != 3 || counts["conflict"] != 2 {
		t.Fatalf("counts = %v", counts)
	}
}

func ids(runs []domain.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
