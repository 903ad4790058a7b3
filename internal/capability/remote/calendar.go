package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"meetcast/internal/capability"
	"meetcast/internal/domain"
)

type CalendarOptions struct {
	BaseURL    string
	Token      string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
}

// Calendar talks to a JSON calendar service exposing
// GET /availability and POST /events.
type Calendar struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func NewCalendar(opts CalendarOptions) (*Calendar, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("calendar base url is required")
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(opts.Timeout)
	if opts.Token != "" {
		c.SetAuthToken(opts.Token)
	}
	return &Calendar{
		client:  c,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
	}, nil
}

type availabilityResponse struct {
	Available     bool    `json:"available"`
	BlockingUntil *string `json:"blocking_until"`
}

type createResponse struct {
	EventID string `json:"event_id"`
}

func (c *Calendar) Check(ctx context.Context, when time.Time, durationMin int) (capability.Availability, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return capability.Availability{}, calendarErr("check", fmt.Errorf("rate limiter: %w", err))
	}
	var out availabilityResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"start":        when.Format(time.RFC3339),
			"duration_min": strconv.Itoa(durationMin),
		}).
		SetResult(&out).
		Get("/availability")
	if err != nil {
		return capability.Availability{}, calendarErr("check", err)
	}
	if resp.IsError() {
		return capability.Availability{}, calendarErr("check", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	a := capability.Availability{Available: out.Available}
	if out.BlockingUntil != nil && *out.BlockingUntil != "" {
		t, err := time.Parse(time.RFC3339, *out.BlockingUntil)
		if err != nil {
			return capability.Availability{}, calendarErr("check", fmt.Errorf("blocking_until: %w", err))
		}
		a.BlockingUntil = &t
	}
	return a, nil
}

func (c *Calendar) Create(ctx context.Context, req capability.EventRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", calendarErr("create", fmt.Errorf("rate limiter: %w", err))
	}
	var out createResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/events")
	if err != nil {
		return "", calendarErr("create", err)
	}
	if resp.IsError() {
		return "", calendarErr("create", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if out.EventID == "" {
		return "", calendarErr("create", errors.New("empty event_id"))
	}
	return out.EventID, nil
}

func calendarErr(op string, err error) error {
	return &domain.ServiceError{Capability: capability.NameCalendar, Op: op, Err: err}
}
