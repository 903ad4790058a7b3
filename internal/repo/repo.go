// Package repo reads the run journal.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meetcast/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// RunFilters narrows ListRuns. The cursor is the (ts, id) of the last run of
// the previous page; runs are returned newest first.
type RunFilters struct {
	Status   string
	Limit    int
	CursorTS string
	CursorID string
}

const runColumns = `id,ts,input,answer,status,COALESCE(action,'') AS action,clarification_count,degraded_json,elapsed_ms,summary_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var (
		run      domain.Run
		answer   sql.NullString
		status   string
		action   string
		degraded string
		summary  string
	)
	if err := row.Scan(&run.ID, &run.TS, &run.Input, &answer, &status, &action,
		&run.ClarificationCount, &degraded, &run.ElapsedMS, &summary); err != nil {
		return run, err
	}
	run.Status = domain.Status(status)
	run.Action = domain.Action(action)
	if answer.Valid {
		a := answer.String
		run.Answer = &a
	}
	if err := json.Unmarshal([]byte(degraded), &run.DegradedNotes); err != nil {
		return run, fmt.Errorf("decode degraded notes of run %s: %w", run.ID, err)
	}
	if len(run.DegradedNotes) == 0 {
		run.DegradedNotes = nil
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return run, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
	}
	return run, nil
}

func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorTS != "" && f.CursorID != "" {
		clauses = append(clauses, "(ts < ? OR (ts = ? AND id < ?))")
		args = append(args, f.CursorTS, f.CursorTS, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + runColumns + ` FROM runs ` + where + ` ORDER BY ts DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

// GetRun returns one run with its stage transitions.
func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	run.Transitions, err = r.ListRunEvents(ctx, id)
	return run, err
}

func (r Repo) ListRunEvents(ctx context.Context, runID string) ([]domain.Transition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage,ts,COALESCE(detail,'') FROM run_events WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(&t.Stage, &t.At, &t.Detail); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountRunsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
