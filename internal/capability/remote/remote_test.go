package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcast/internal/capability"
	"meetcast/internal/domain"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestWeatherForecastAndGeocodeCache(t *testing.T) {
	var geocodes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/search":
			geocodes.Add(1)
			assert.Equal(t, "Taipei", r.URL.Query().Get("name"))
			writeJSON(w, map[string]any{"results": []map[string]any{{"latitude": 25.05, "longitude": 121.53}}})
		case "/v1/forecast":
			assert.Equal(t, "precipitation_probability", r.URL.Query().Get("hourly"))
			assert.Equal(t, "2026-10-16", r.URL.Query().Get("start_date"))
			writeJSON(w, map[string]any{"hourly": map[string]any{
				"time":                      []string{"2026-10-16T13:00", "2026-10-16T14:00"},
				"precipitation_probability": []int{20, 72},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	wx, err := NewWeather(WeatherOptions{ForecastURL: srv.URL, GeocodeURL: srv.URL, RatePerSec: 100})
	require.NoError(t, err)

	when := time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		f, err := wx.Forecast(context.Background(), "Taipei", when)
		require.NoError(t, err)
		assert.Equal(t, 72, f.ProbRain)
	}
	assert.Equal(t, int32(1), geocodes.Load())
}

func TestWeatherUnknownCityIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	wx, err := NewWeather(WeatherOptions{ForecastURL: srv.URL, GeocodeURL: srv.URL, RatePerSec: 100})
	require.NoError(t, err)
	_, err = wx.Forecast(context.Background(), "Nowhere", time.Now())
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, capability.NameWeather, se.Capability)
}

func TestCalendarCheckAndCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/availability":
			if r.URL.Query().Get("start") == "2026-10-16T15:00:00Z" {
				writeJSON(w, map[string]any{"available": false, "blocking_until": "2026-10-16T15:30:00Z"})
				return
			}
			writeJSON(w, map[string]any{"available": true})
		case r.Method == http.MethodPost && r.URL.Path == "/events":
			var req capability.EventRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Taipei", req.City)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"event_id": "evt-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cal, err := NewCalendar(CalendarOptions{BaseURL: srv.URL, Token: "secret", RatePerSec: 100})
	require.NoError(t, err)

	a, err := cal.Check(context.Background(), time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.False(t, a.Available)
	require.NotNil(t, a.BlockingUntil)
	assert.Equal(t, 30, a.BlockingUntil.Minute())

	a, err = cal.Check(context.Background(), time.Date(2026, 10, 16, 16, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.True(t, a.Available)

	id, err := cal.Create(context.Background(), capability.EventRequest{City: "Taipei", DurationMin: 60})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
}

func TestCalendarServerErrorIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cal, err := NewCalendar(CalendarOptions{BaseURL: srv.URL, RatePerSec: 100})
	require.NoError(t, err)
	_, err = cal.Check(context.Background(), time.Now(), 30)
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "check", se.Op)

	_, err = NewCalendar(CalendarOptions{})
	require.Error(t, err)
}
