// Package events writes finished runs and their stage transitions to the journal.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"meetcast/internal/domain"
)

type Writer struct {
	DB *sql.DB
}

// Record stores a run and its transitions atomically. Recording the same run
// id twice is an error.
func (w Writer) Record(ctx context.Context, run domain.Run) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	degraded := run.DegradedNotes
	if degraded == nil {
		degraded = []string{}
	}
	degradedJSON, err := json.Marshal(degraded)
	if err != nil {
		return fmt.Errorf("marshal degraded notes: %w", err)
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id,ts,input,answer,status,action,clarification_count,degraded_json,elapsed_ms,summary_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.TS, run.Input, nullablePtr(run.Answer), run.Status, nullable(string(run.Action)),
		run.ClarificationCount, string(degradedJSON), run.ElapsedMS, string(summary)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, t := range run.Transitions {
		if err := w.Append(ctx, tx, run.ID, i, t); err != nil {
			return fmt.Errorf("insert transition %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Append writes one transition row inside an open transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, runID string, seq int, t domain.Transition) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO run_events(run_id,seq,stage,ts,detail) VALUES (?,?,?,?,?)`,
		runID, seq, t.Stage, t.At, nullable(t.Detail))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
