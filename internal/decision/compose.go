// Package decision merges weather and conflict outcomes into one action.
package decision

import (
	"fmt"
	"strings"
	"time"

	"meetcast/internal/domain"
)

const (
	ReasonConflict   = "Requested time unavailable"
	ReasonRain       = "High rain probability detected"
	ReasonRainNoFix  = "High rain probability detected, but no drier time or indoor alternative was found"
	ReasonModerate   = "No conflicts detected; moderate chance of rain"
	ReasonAcceptable = "No conflicts detected and weather conditions acceptable"
)

const timeLayout = "Mon Jan 2 15:04"

// Compose picks exactly one action. A calendar conflict always wins; weather
// then contributes only a note.
func Compose(w domain.WeatherAssessment, c domain.ConflictInfo) domain.PolicyDecision {
	if c.HasConflict {
		notes := []string{candidateNote(c)}
		if n := weatherNote(w); n != "" {
			notes = append(notes, n)
		}
		return domain.PolicyDecision{
			Action: domain.ActionProposeCandidates,
			Reason: ReasonConflict,
			Notes:  strings.Join(notes, " "),
		}
	}

	switch w.Risk {
	case domain.RiskHigh:
		if ts := w.TimeShift; ts != nil {
			adjusted := ts.When
			original := ts.When.Add(-ts.Offset)
			return domain.PolicyDecision{
				Action: domain.ActionShiftTime,
				Reason: ReasonRain,
				Notes: fmt.Sprintf("Moved from %s to %s (%s); rain probability drops from %d%% to %d%%.",
					original.Format(timeLayout), adjusted.Format(timeLayout), signed(ts.Offset), w.ProbRain, ts.ProbRain),
				AdjustedWhen: &adjusted,
			}
		}
		if w.IndoorHint != nil {
			return domain.PolicyDecision{
				Action: domain.ActionSuggestIndoor,
				Reason: ReasonRain,
				Notes:  fmt.Sprintf("%s (%d%% chance of rain).", *w.IndoorHint, w.ProbRain),
			}
		}
		return domain.PolicyDecision{
			Action: domain.ActionCreate,
			Reason: ReasonRainNoFix,
			Notes:  fmt.Sprintf("%d%% chance of rain - bring rain gear.", w.ProbRain),
		}
	case domain.RiskModerate:
		return domain.PolicyDecision{
			Action: domain.ActionCreate,
			Reason: ReasonModerate,
			Notes:  weatherNote(w),
		}
	default:
		return domain.PolicyDecision{
			Action: domain.ActionCreate,
			Reason: ReasonAcceptable,
		}
	}
}

func candidateNote(c domain.ConflictInfo) string {
	var b strings.Builder
	if c.BlockingUntil != nil {
		fmt.Fprintf(&b, "Busy until %s. ", c.BlockingUntil.Format(timeLayout))
	}
	if len(c.Candidates) == 0 {
		b.WriteString("No available alternative slots were found nearby; please propose another time.")
		return b.String()
	}
	starts := make([]string, len(c.Candidates))
	for i, cand := range c.Candidates {
		starts[i] = cand.Start.Format(timeLayout)
	}
	fmt.Fprintf(&b, "Available alternatives: %s.", strings.Join(starts, ", "))
	return b.String()
}

// weatherNote is empty for low risk and for degraded assessments.
func weatherNote(w domain.WeatherAssessment) string {
	if w.Degraded {
		return ""
	}
	switch w.Risk {
	case domain.RiskHigh:
		return fmt.Sprintf("Weather: %d%% chance of rain at the requested time.", w.ProbRain)
	case domain.RiskModerate:
		return fmt.Sprintf("Weather: %d%% chance of rain - bring an umbrella.", w.ProbRain)
	}
	return ""
}

func signed(d time.Duration) string {
	h := int(d / time.Hour)
	if h >= 0 {
		return fmt.Sprintf("+%dh", h)
	}
	return fmt.Sprintf("%dh", h)
}
