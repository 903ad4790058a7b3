// Package weather categorizes rain risk for a slot and proposes remedies.
package weather

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"meetcast/internal/capability"
	"meetcast/internal/domain"
	"meetcast/internal/metrics"
	"meetcast/internal/retry"
)

const DegradedNote = "Weather information unavailable - manual weather check recommended"

// ShiftOffsets are probed in order; the first with acceptable rain wins.
var ShiftOffsets = []time.Duration{2 * time.Hour, -2 * time.Hour, time.Hour, -time.Hour}

var IndoorKeywords = []string{"park", "beach", "outdoor", "picnic", "garden", "terrace", "patio", "plaza"}

var indoorPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(IndoorKeywords, "|") + `)s?\b`)

type Advisor struct {
	Weather capability.Weather
	Policy  retry.Policy
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	// Now, when set, rejects time shifts that land in the past.
	Now func() time.Time
}

// Degraded is the placeholder used when the forecast cannot be obtained.
func Degraded() domain.WeatherAssessment {
	return domain.WeatherAssessment{
		ProbRain: 0,
		Risk:     domain.RiskLow,
		Note:     DegradedNote,
		Degraded: true,
	}
}

// Assess never fails: capability errors are retried once and then degraded.
func (a Advisor) Assess(ctx context.Context, city string, when time.Time, requestText string) domain.WeatherAssessment {
	ctx = capability.WithRequestText(ctx, requestText)
	f, err := a.forecast(ctx, city, when)
	if err != nil {
		a.Log.Warn().Err(err).Str("city", city).Time("when", when).Msg("weather degraded")
		return Degraded()
	}

	wa := domain.WeatherAssessment{
		ProbRain: f.ProbRain,
		Risk:     domain.CategorizeRisk(f.ProbRain),
		Note:     f.Description,
	}
	if wa.Risk != domain.RiskHigh {
		return wa
	}
	wa.TimeShift = a.findShift(ctx, city, when)
	if hint, ok := IndoorHint(requestText); ok {
		wa.IndoorHint = &hint
	}
	a.Log.Debug().
		Int("prob_rain", wa.ProbRain).
		Bool("time_shift", wa.TimeShift != nil).
		Bool("indoor_hint", wa.IndoorHint != nil).
		Msg("high rain risk")
	return wa
}

func (a Advisor) findShift(ctx context.Context, city string, when time.Time) *domain.TimeShift {
	for _, off := range ShiftOffsets {
		at := when.Add(off)
		if a.Now != nil && !at.After(a.Now()) {
			continue
		}
		f, err := a.forecast(ctx, city, at)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if domain.CategorizeRisk(f.ProbRain) != domain.RiskHigh {
			return &domain.TimeShift{When: at, Offset: off, ProbRain: f.ProbRain}
		}
	}
	return nil
}

func (a Advisor) forecast(ctx context.Context, city string, when time.Time) (capability.Forecast, error) {
	f, err := retry.Do(ctx, a.Policy, func(attempt int, err error, wait time.Duration) {
		a.Metrics.Call(capability.NameWeather, "forecast", "retry")
		a.Log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying forecast")
	}, func(ctx context.Context) (capability.Forecast, error) {
		return a.Weather.Forecast(ctx, city, when)
	})
	if err != nil {
		a.Metrics.Call(capability.NameWeather, "forecast", "error")
		return capability.Forecast{}, err
	}
	a.Metrics.Call(capability.NameWeather, "forecast", "ok")
	return f, nil
}

// IndoorHint scans the request text for outdoor-activity keywords.
func IndoorHint(text string) (string, bool) {
	m := indoorPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("Consider an indoor venue instead of the %s", strings.ToLower(m[1])), true
}
