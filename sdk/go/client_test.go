package meetcastsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleWithAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v0/schedule", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "meet Alice tomorrow", body["text"])
		assert.Equal(t, "2pm in Taipei", body["answer"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"confirmed","city":"Taipei","attendees":["Alice"],"reason":"ok","event_id":"mock-event-1a2b3c4d","run_id":"r1"}`))
	}))
	defer srv.Close()

	answer := "2pm in Taipei"
	sum, err := New(srv.URL).Schedule(context.Background(), "meet Alice tomorrow", &answer)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", sum.Status)
	assert.Equal(t, []string{"Alice"}, sum.Attendees)
	assert.False(t, sum.NeedsClarification())
}

func TestListAndGetRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v0/runs":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			assert.Equal(t, "conflict", r.URL.Query().Get("status"))
			w.Write([]byte(`{"items":[{"id":"r2","ts":"2026-10-14T09:01:00Z","input":"x","status":"conflict","clarification_count":0,"elapsed_ms":3}],"next_cursor":"2026-10-14T09:01:00Z|r2"}`))
		case "/v0/runs/r2":
			w.Write([]byte(`{"id":"r2","ts":"2026-10-14T09:01:00Z","input":"x","status":"conflict","clarification_count":0,"elapsed_ms":3,"summary":{"status":"conflict","attendees":[],"reason":"Requested time unavailable","candidates":[{"datetime_iso":"2026-10-16T15:30:00Z","available_min":30}]},"transitions":[{"stage":"extracting","at":"2026-10-14T09:01:00Z"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	page, err := c.ListRuns(context.Background(), 2, "", "conflict")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "2026-10-14T09:01:00Z|r2", page.NextCursor)

	run, err := c.GetRun(context.Background(), "r2")
	require.NoError(t, err)
	assert.Equal(t, "r2", run.ID)
	require.Len(t, run.Summary.Candidates, 1)
	assert.Len(t, run.Transitions, 1)
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"run not found"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetRun(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}
