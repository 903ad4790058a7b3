package engine

import (
	"slices"
	"time"

	"meetcast/internal/domain"
)

type Stage string

const (
	StageExtracting Stage = "extracting"
	StageValidating Stage = "validating"
	StageClarifying Stage = "clarifying"
	StageAssessing  Stage = "assessing"
	StageComposing  Stage = "composing"
	StageFinalizing Stage = "finalizing"
	StageFailed     Stage = "failed"
)

// State is the execution state of one run. Stages take a State and return a
// new one; slices are copied before they are extended.
type State struct {
	Stage        Stage
	OriginalText string
	FollowUp     *string
	Now          time.Time

	Slot     domain.Slot
	Missing  []domain.Field
	Defects  []domain.Defect
	Weather  *domain.WeatherAssessment
	Conflict *domain.ConflictInfo
	Decision *domain.PolicyDecision
	EventID  string

	// ClarificationCount is 0 or 1.
	ClarificationCount int
	AwaitingAnswer     bool
	Final              bool
	DegradedNotes      []string
	Notes              []string
	TerminalError      error
	Transitions        []domain.Transition
}

func (s State) terminal() bool {
	return s.Stage == StageFailed || s.Final || s.AwaitingAnswer
}

// text is the request text seen so far, including any follow-up answer.
func (s State) text() string {
	if s.ClarificationCount > 0 && s.FollowUp != nil {
		return s.OriginalText + " " + *s.FollowUp
	}
	return s.OriginalText
}

func (s State) to(next Stage, at time.Time, detail string) State {
	s.Transitions = append(slices.Clone(s.Transitions), domain.Transition{
		Stage:  string(next),
		At:     at.UTC().Format(time.RFC3339Nano),
		Detail: detail,
	})
	s.Stage = next
	return s
}

func (s State) fail(err error, at time.Time) State {
	s.TerminalError = err
	return s.to(StageFailed, at, err.Error())
}

func (s State) degraded(note string) State {
	s.DegradedNotes = append(slices.Clone(s.DegradedNotes), note)
	return s
}

func (s State) note(n string) State {
	s.Notes = append(slices.Clone(s.Notes), n)
	return s
}
