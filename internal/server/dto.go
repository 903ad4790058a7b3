package server

import (
	"meetcast/internal/domain"
)

// Request payloads

type ScheduleRequest struct {
	Text   string  `json:"text" minLength:"1" doc:"Free-text meeting request" example:"Friday 14:00 Taipei meet Alice 60min"`
	Answer *string `json:"answer,omitempty" doc:"Reply to a previous clarification_needed result for the same text" example:"in Taipei"`
}

// Response payloads

type RunResponse struct {
	ID                 string        `json:"id"`
	TS                 string        `json:"ts" format:"date-time"`
	Input              string        `json:"input"`
	Answer             *string       `json:"answer,omitempty"`
	Status             domain.Status `json:"status" enum:"confirmed,adjusted,conflict,clarification_needed,error"`
	Action             domain.Action `json:"action,omitempty"`
	ClarificationCount int           `json:"clarification_count"`
	DegradedNotes      []string      `json:"degraded_notes,omitempty"`
	ElapsedMS          int64         `json:"elapsed_ms"`
}

type paginatedRuns struct {
	Items      []RunResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type StatusResponse struct {
	Mode           string         `json:"mode" enum:"mock,remote"`
	JournalEnabled bool           `json:"journal_enabled"`
	RunCounts      map[string]int `json:"run_counts,omitempty"`
}

func runResponse(r domain.Run) RunResponse {
	return RunResponse{
		ID:                 r.ID,
		TS:                 r.TS,
		Input:              r.Input,
		Answer:             r.Answer,
		Status:             r.Status,
		Action:             r.Action,
		ClarificationCount: r.ClarificationCount,
		DegradedNotes:      r.DegradedNotes,
		ElapsedMS:          r.ElapsedMS,
	}
}
