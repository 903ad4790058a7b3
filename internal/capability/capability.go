// Package capability defines the external weather and calendar contracts the
// pipeline depends on. Implementations live in the mock and remote packages
// and report failures as *domain.ServiceError.
package capability

import (
	"context"
	"time"
)

type Forecast struct {
	ProbRain    int    `json:"prob_rain"`
	Description string `json:"description"`
}

type Availability struct {
	Available     bool       `json:"available"`
	BlockingUntil *time.Time `json:"blocking_until,omitempty"`
}

type EventRequest struct {
	City        string    `json:"city"`
	When        time.Time `json:"when"`
	DurationMin int       `json:"duration_min"`
	Attendees   []string  `json:"attendees"`
	Notes       string    `json:"notes,omitempty"`
}

type Weather interface {
	Forecast(ctx context.Context, city string, when time.Time) (Forecast, error)
}

type Calendar interface {
	Check(ctx context.Context, when time.Time, durationMin int) (Availability, error)
	Create(ctx context.Context, req EventRequest) (string, error)
}

type requestTextKey struct{}

// WithRequestText attaches the caller's request text so providers may use it as a hint.
func WithRequestText(ctx context.Context, text string) context.Context {
	return context.WithValue(ctx, requestTextKey{}, text)
}

func RequestText(ctx context.Context) string {
	s, _ := ctx.Value(requestTextKey{}).(string)
	return s
}

const (
	NameWeather  = "weather"
	NameCalendar = "calendar"
)

// ClampProb bounds a provider probability to [0,100].
func ClampProb(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
