package meetcastsdk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a minimal meetcast HTTP API client.
type Client struct {
	BaseURL string
	Timeout time.Duration

	http *resty.Client
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, Timeout: 30 * time.Second}
}

// Candidate is an alternative start time proposed on a conflict.
type Candidate struct {
	DatetimeISO  string `json:"datetime_iso"`
	AvailableMin int    `json:"available_min"`
}

// Summary is the outcome of one scheduling request.
type Summary struct {
	Status        string      `json:"status"`
	City          string      `json:"city,omitempty"`
	DatetimeISO   string      `json:"datetime_iso,omitempty"`
	DurationMin   int         `json:"duration_min,omitempty"`
	Attendees     []string    `json:"attendees"`
	Reason        string      `json:"reason"`
	Notes         string      `json:"notes,omitempty"`
	EventID       string      `json:"event_id,omitempty"`
	Action        string      `json:"action,omitempty"`
	Candidates    []Candidate `json:"candidates,omitempty"`
	MissingFields []string    `json:"missing_fields,omitempty"`
	RunID         string      `json:"run_id,omitempty"`
}

// NeedsClarification reports whether the request must be resent with an answer.
func (s Summary) NeedsClarification() bool { return s.Status == "clarification_needed" }

// RunItem is one entry of the run journal listing.
type RunItem struct {
	ID                 string   `json:"id"`
	TS                 string   `json:"ts"`
	Input              string   `json:"input"`
	Answer             *string  `json:"answer,omitempty"`
	Status             string   `json:"status"`
	Action             string   `json:"action,omitempty"`
	ClarificationCount int      `json:"clarification_count"`
	DegradedNotes      []string `json:"degraded_notes,omitempty"`
	ElapsedMS          int64    `json:"elapsed_ms"`
}

type Transition struct {
	Stage  string `json:"stage"`
	At     string `json:"at"`
	Detail string `json:"detail,omitempty"`
}

// Run is a journaled run with its summary and stage transitions.
type Run struct {
	RunItem
	Summary     Summary      `json:"summary"`
	Transitions []Transition `json:"transitions,omitempty"`
}

// PaginatedRuns wraps list responses with cursors.
type PaginatedRuns struct {
	Items      []RunItem `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Schedule evaluates a request. Pass a non-nil answer to reply to a previous
// clarification_needed summary for the same text.
func (c *Client) Schedule(ctx context.Context, text string, answer *string) (Summary, error) {
	body := map[string]any{"text": text}
	if answer != nil {
		body["answer"] = *answer
	}
	var resp Summary
	err := c.do(ctx, "POST", "v0/schedule", nil, body, &resp)
	return resp, err
}

// ListRuns returns one page of journaled runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int, cursor, status string) (PaginatedRuns, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if status != "" {
		q.Set("status", status)
	}
	var resp PaginatedRuns
	err := c.do(ctx, "GET", "v0/runs", q, nil, &resp)
	return resp, err
}

// GetRun fetches a run by id.
func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, "GET", "v0/runs/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) client() *resty.Client {
	if c.http == nil {
		c.http = resty.New().
			SetBaseURL(strings.TrimRight(c.BaseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetTimeout(c.Timeout)
	}
	return c.http
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	var apiErr errorEnvelope
	req := c.client().R().
		SetContext(ctx).
		SetResult(out).
		SetError(&apiErr)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, "/"+strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Message,
			Body:       resp.String(),
		}
	}
	return nil
}
