// Package conflict detects calendar clashes and proposes alternative slots.
package conflict

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"meetcast/internal/capability"
	"meetcast/internal/domain"
	"meetcast/internal/metrics"
	"meetcast/internal/retry"
)

const (
	DegradedNote = "Calendar service unavailable - manual conflict check recommended"

	DefaultProbeBudget   = 6
	DefaultProbeStep     = 30 * time.Minute
	DefaultMaxCandidates = 3
)

type Resolver struct {
	Calendar      capability.Calendar
	Policy        retry.Policy
	ProbeBudget   int
	ProbeStep     time.Duration
	MaxCandidates int
	Log           zerolog.Logger
	Metrics       *metrics.Metrics
}

// Degraded is the placeholder used when availability cannot be obtained.
// It never reports a conflict.
func Degraded() domain.ConflictInfo {
	return domain.ConflictInfo{HasConflict: false, Degraded: true}
}

// Resolve never fails: capability errors are retried once and then degraded.
func (r Resolver) Resolve(ctx context.Context, when time.Time, durationMin int) domain.ConflictInfo {
	avail, err := r.check(ctx, when, durationMin)
	if err != nil {
		r.Log.Warn().Err(err).Time("when", when).Msg("calendar degraded")
		return Degraded()
	}
	if avail.Available {
		return domain.ConflictInfo{HasConflict: false}
	}

	info := domain.ConflictInfo{
		HasConflict:   true,
		BlockingUntil: avail.BlockingUntil,
		Candidates:    r.candidates(ctx, when, durationMin),
	}
	r.Log.Debug().Int("candidates", len(info.Candidates)).Msg("calendar conflict")
	return info
}

// candidates probes successive steps from the requested time, not from the end
// of the blocking event. Probe failures use up budget and are skipped.
func (r Resolver) candidates(ctx context.Context, when time.Time, durationMin int) []domain.Candidate {
	budget := r.ProbeBudget
	if budget <= 0 {
		budget = DefaultProbeBudget
	}
	step := r.ProbeStep
	if step <= 0 {
		step = DefaultProbeStep
	}
	limit := r.MaxCandidates
	if limit <= 0 || limit > DefaultMaxCandidates {
		limit = DefaultMaxCandidates
	}

	out := []domain.Candidate{}
	for i := 1; i <= budget && len(out) < limit; i++ {
		at := when.Add(time.Duration(i) * step)
		avail, err := r.check(ctx, at, durationMin)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if avail.Available {
			out = append(out, domain.Candidate{Start: at, AvailableMin: durationMin})
		}
	}
	return out
}

func (r Resolver) check(ctx context.Context, when time.Time, durationMin int) (capability.Availability, error) {
	a, err := retry.Do(ctx, r.Policy, func(attempt int, err error, wait time.Duration) {
		r.Metrics.Call(capability.NameCalendar, "check", "retry")
		r.Log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying availability check")
	}, func(ctx context.Context) (capability.Availability, error) {
		return r.Calendar.Check(ctx, when, durationMin)
	})
	if err != nil {
		r.Metrics.Call(capability.NameCalendar, "check", "error")
		return capability.Availability{}, err
	}
	r.Metrics.Call(capability.NameCalendar, "check", "ok")
	return a, nil
}
