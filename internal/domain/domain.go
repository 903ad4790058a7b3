package domain

import (
	"time"
)

// Field names a Slot attribute that extraction may leave absent.
type Field string

const (
	FieldCity     Field = "city"
	FieldWhen     Field = "when"
	FieldDuration Field = "duration_min"
)

type Risk string

const (
	RiskLow      Risk = "low"
	RiskModerate Risk = "moderate"
	RiskHigh     Risk = "high"
)

type Action string

const (
	ActionCreate            Action = "create"
	ActionShiftTime         Action = "shift_time"
	ActionSuggestIndoor     Action = "suggest_indoor"
	ActionProposeCandidates Action = "propose_candidates"
	ActionFail              Action = "fail"
)

type Status string

const (
	StatusConfirmed           Status = "confirmed"
	StatusAdjusted            Status = "adjusted"
	StatusConflict            Status = "conflict"
	StatusClarificationNeeded Status = "clarification_needed"
	StatusError               Status = "error"
)

// Slot holds the fields extracted from a request. Nil pointers are absent fields.
type Slot struct {
	City        *string
	When        *time.Time
	DurationMin *int
	Attendees   []string
	Description *string
}

// Has reports whether the given field is present.
func (s Slot) Has(f Field) bool {
	switch f {
	case FieldCity:
		return s.City != nil
	case FieldWhen:
		return s.When != nil
	case FieldDuration:
		return s.DurationMin != nil
	}
	return false
}

// Missing lists required fields that are still absent, in a fixed order.
func (s Slot) Missing() []Field {
	var out []Field
	for _, f := range []Field{FieldCity, FieldWhen, FieldDuration} {
		if !s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy so stages never share pointers.
func (s Slot) Clone() Slot {
	out := Slot{Attendees: append([]string(nil), s.Attendees...)}
	if s.City != nil {
		v := *s.City
		out.City = &v
	}
	if s.When != nil {
		v := *s.When
		out.When = &v
	}
	if s.DurationMin != nil {
		v := *s.DurationMin
		out.DurationMin = &v
	}
	if s.Description != nil {
		v := *s.Description
		out.Description = &v
	}
	return out
}

type TimeShift struct {
	When     time.Time     `json:"when"`
	Offset   time.Duration `json:"offset"`
	ProbRain int           `json:"prob_rain"`
}

type WeatherAssessment struct {
	ProbRain   int        `json:"prob_rain"`
	Risk       Risk       `json:"risk"`
	Note       string     `json:"note"`
	Degraded   bool       `json:"degraded,omitempty"`
	TimeShift  *TimeShift `json:"time_shift,omitempty"`
	IndoorHint *string    `json:"indoor_hint,omitempty"`
}

// CategorizeRisk maps a rain probability onto the fixed 30/60 thresholds.
func CategorizeRisk(probRain int) Risk {
	switch {
	case probRain >= 60:
		return RiskHigh
	case probRain >= 30:
		return RiskModerate
	default:
		return RiskLow
	}
}

type Candidate struct {
	Start        time.Time `json:"start"`
	AvailableMin int       `json:"available_min"`
}

type ConflictInfo struct {
	HasConflict   bool        `json:"has_conflict"`
	Candidates    []Candidate `json:"candidates,omitempty"`
	BlockingUntil *time.Time  `json:"blocking_until,omitempty"`
	Degraded      bool        `json:"degraded,omitempty"`
}

type PolicyDecision struct {
	Action       Action     `json:"action"`
	Reason       string     `json:"reason"`
	Notes        string     `json:"notes,omitempty"`
	AdjustedWhen *time.Time `json:"adjusted_when,omitempty"`
}

// StatusFor maps a decision action onto the summary status.
func StatusFor(a Action) Status {
	switch a {
	case ActionCreate:
		return StatusConfirmed
	case ActionShiftTime, ActionSuggestIndoor:
		return StatusAdjusted
	case ActionProposeCandidates:
		return StatusConflict
	default:
		return StatusError
	}
}

type SummaryCandidate struct {
	DatetimeISO  string `json:"datetime_iso"`
	AvailableMin int    `json:"available_min"`
}

// EventSummary is the single artifact returned to callers.
type EventSummary struct {
	Status        Status             `json:"status" enum:"confirmed,adjusted,conflict,clarification_needed,error"`
	City          string             `json:"city,omitempty"`
	DatetimeISO   string             `json:"datetime_iso,omitempty" format:"date-time"`
	DurationMin   int                `json:"duration_min,omitempty"`
	Attendees     []string           `json:"attendees"`
	Reason        string             `json:"reason"`
	Notes         string             `json:"notes,omitempty"`
	EventID       string             `json:"event_id,omitempty"`
	Action        Action             `json:"action,omitempty"`
	Candidates    []SummaryCandidate `json:"candidates,omitempty"`
	MissingFields []string           `json:"missing_fields,omitempty"`
	RunID         string             `json:"run_id,omitempty"`
}

// Transition is one state change recorded for a run.
type Transition struct {
	Stage  string `json:"stage"`
	At     string `json:"at" format:"date-time"`
	Detail string `json:"detail,omitempty"`
}

// Run is the journal entry for one pipeline evaluation.
type Run struct {
	ID                 string       `json:"id"`
	TS                 string       `json:"ts" format:"date-time"`
	Input              string       `json:"input"`
	Answer             *string      `json:"answer,omitempty"`
	Status             Status       `json:"status"`
	Action             Action       `json:"action,omitempty"`
	ClarificationCount int          `json:"clarification_count"`
	DegradedNotes      []string     `json:"degraded_notes,omitempty"`
	ElapsedMS          int64        `json:"elapsed_ms"`
	Summary            EventSummary `json:"summary"`
	Transitions        []Transition `json:"transitions,omitempty"`
}
