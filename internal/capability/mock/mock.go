// Package mock provides deterministic weather and calendar capabilities driven
// by fixed rules, with failure and latency injection for testing degradation.
package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"meetcast/internal/capability"
	"meetcast/internal/domain"
)

// Window raises the rain probability for a weekday time range [Start, End),
// expressed as offsets from midnight.
type Window struct {
	Weekday  time.Weekday
	Start    time.Duration
	End      time.Duration
	ProbRain int
}

// Weather rules apply in order: a keyword in the request text, a weekday
// window, a city, then BaseProb. A keyword with probability 0 is ignored.
type Weather struct {
	BaseProb  int
	Keywords  map[string]int
	Windows   []Window
	Cities    map[string]int
	Fail      bool
	FailTimes int
	Latency   time.Duration

	calls atomic.Int64
}

// DefaultWeather is clear everywhere except Friday 14:00-16:00 and requests
// that mention rain.
func DefaultWeather() *Weather {
	return &Weather{
		BaseProb: 15,
		Keywords: map[string]int{"rain": 70},
		Windows: []Window{
			{Weekday: time.Friday, Start: 14 * time.Hour, End: 16 * time.Hour, ProbRain: 65},
		},
	}
}

func (w *Weather) Calls() int { return int(w.calls.Load()) }

func (w *Weather) Forecast(ctx context.Context, city string, when time.Time) (capability.Forecast, error) {
	n := w.calls.Add(1)
	if err := wait(ctx, w.Latency); err != nil {
		return capability.Forecast{}, serviceErr(capability.NameWeather, "forecast", err)
	}
	if w.Fail || int(n) <= w.FailTimes {
		return capability.Forecast{}, serviceErr(capability.NameWeather, "forecast", errors.New("mock weather service unavailable"))
	}

	if word, p, ok := w.keyword(capability.RequestText(ctx)); ok {
		return capability.Forecast{
			ProbRain:    capability.ClampProb(p),
			Description: fmt.Sprintf("Request mentions %s in %s", word, city),
		}, nil
	}
	offset := sinceMidnight(when)
	for _, win := range w.Windows {
		if when.Weekday() == win.Weekday && offset >= win.Start && offset < win.End {
			return capability.Forecast{
				ProbRain:    capability.ClampProb(win.ProbRain),
				Description: fmt.Sprintf("Typical rainy period in %s on %s", city, when.Format("Monday 15:04")),
			}, nil
		}
	}
	if p, ok := w.Cities[strings.ToLower(city)]; ok {
		return capability.Forecast{
			ProbRain:    capability.ClampProb(p),
			Description: fmt.Sprintf("Seasonal rain expected in %s", city),
		}, nil
	}
	return capability.Forecast{
		ProbRain:    capability.ClampProb(w.BaseProb),
		Description: fmt.Sprintf("Clear weather expected in %s for %s", city, when.Format("Monday 15:04")),
	}, nil
}

func (w *Weather) keyword(text string) (string, int, bool) {
	if len(w.Keywords) == 0 || text == "" {
		return "", 0, false
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, word := range words {
		if p, ok := w.Keywords[word]; ok && p > 0 {
			return word, p, true
		}
	}
	return "", 0, false
}

// Block is a recurring busy period on a weekday starting at Start after midnight.
type Block struct {
	Weekday     time.Weekday
	Start       time.Duration
	DurationMin int
}

type Calendar struct {
	Blocks     []Block
	Fail       bool
	FailTimes  int
	FailCreate bool
	Latency    time.Duration

	checks  atomic.Int64
	mu      sync.Mutex
	created []capability.EventRequest
}

// DefaultCalendar is free except Friday 15:00-15:30.
func DefaultCalendar() *Calendar {
	return &Calendar{
		Blocks: []Block{{Weekday: time.Friday, Start: 15 * time.Hour, DurationMin: 30}},
	}
}

func (c *Calendar) Checks() int { return int(c.checks.Load()) }

// Created returns the events created so far.
func (c *Calendar) Created() []capability.EventRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capability.EventRequest(nil), c.created...)
}

func (c *Calendar) Check(ctx context.Context, when time.Time, durationMin int) (capability.Availability, error) {
	n := c.checks.Add(1)
	if err := wait(ctx, c.Latency); err != nil {
		return capability.Availability{}, serviceErr(capability.NameCalendar, "check", err)
	}
	if c.Fail || int(n) <= c.FailTimes {
		return capability.Availability{}, serviceErr(capability.NameCalendar, "check", errors.New("mock calendar service unavailable"))
	}

	start := when
	end := when.Add(time.Duration(durationMin) * time.Minute)
	var until *time.Time
	for _, b := range c.Blocks {
		if when.Weekday() != b.Weekday {
			continue
		}
		midnight := time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, when.Location())
		bStart := midnight.Add(b.Start)
		bEnd := bStart.Add(time.Duration(b.DurationMin) * time.Minute)
		if start.Before(bEnd) && bStart.Before(end) {
			if until == nil || bEnd.After(*until) {
				u := bEnd
				until = &u
			}
		}
	}
	if until != nil {
		return capability.Availability{Available: false, BlockingUntil: until}, nil
	}
	return capability.Availability{Available: true}, nil
}

func (c *Calendar) Create(ctx context.Context, req capability.EventRequest) (string, error) {
	if err := wait(ctx, c.Latency); err != nil {
		return "", serviceErr(capability.NameCalendar, "create", err)
	}
	if c.Fail || c.FailCreate {
		return "", serviceErr(capability.NameCalendar, "create", errors.New("mock calendar service unavailable"))
	}
	c.mu.Lock()
	c.created = append(c.created, req)
	c.mu.Unlock()
	return "mock-event-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8], nil
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func serviceErr(capName, op string, err error) error {
	return &domain.ServiceError{Capability: capName, Op: op, Err: err}
}
