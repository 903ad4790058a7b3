// Package remote provides network-backed capabilities: Open-Meteo for
// forecasts and a JSON HTTP calendar service.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"meetcast/internal/capability"
	"meetcast/internal/domain"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com"
	DefaultGeocodeURL  = "https://geocoding-api.open-meteo.com"
)

type WeatherOptions struct {
	ForecastURL string
	GeocodeURL  string
	RatePerSec  float64
	Burst       int
	CacheSize   int
	Timeout     time.Duration
}

type coords struct {
	Lat float64
	Lon float64
}

// Weather reads hourly precipitation probability from Open-Meteo.
// Geocoding results are cached per city.
type Weather struct {
	forecast *resty.Client
	geocode  *resty.Client
	limiter  *rate.Limiter
	cache    *lru.Cache[string, coords]
}

func NewWeather(opts WeatherOptions) (*Weather, error) {
	if opts.ForecastURL == "" {
		opts.ForecastURL = DefaultForecastURL
	}
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = DefaultGeocodeURL
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	cache, err := lru.New[string, coords](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geocode cache: %w", err)
	}
	return &Weather{
		forecast: resty.New().SetBaseURL(opts.ForecastURL).SetTimeout(opts.Timeout),
		geocode:  resty.New().SetBaseURL(opts.GeocodeURL).SetTimeout(opts.Timeout),
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		cache:    cache,
	}, nil
}

type geocodeResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Hourly struct {
		Time                     []string `json:"time"`
		PrecipitationProbability []*int   `json:"precipitation_probability"`
	} `json:"hourly"`
}

func (w *Weather) Forecast(ctx context.Context, city string, when time.Time) (capability.Forecast, error) {
	loc, err := w.locate(ctx, city)
	if err != nil {
		return capability.Forecast{}, weatherErr(err)
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return capability.Forecast{}, weatherErr(fmt.Errorf("rate limiter: %w", err))
	}

	utc := when.UTC()
	day := utc.Format("2006-01-02")
	var out forecastResponse
	resp, err := w.forecast.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":   strconv.FormatFloat(loc.Lat, 'f', 4, 64),
			"longitude":  strconv.FormatFloat(loc.Lon, 'f', 4, 64),
			"hourly":     "precipitation_probability",
			"timezone":   "UTC",
			"start_date": day,
			"end_date":   day,
		}).
		SetResult(&out).
		Get("/v1/forecast")
	if err != nil {
		return capability.Forecast{}, weatherErr(fmt.Errorf("forecast request: %w", err))
	}
	if resp.IsError() {
		return capability.Forecast{}, weatherErr(fmt.Errorf("forecast status %d: %s", resp.StatusCode(), resp.String()))
	}

	slot := utc.Truncate(time.Hour).Format("2006-01-02T15:04")
	for i, ts := range out.Hourly.Time {
		if ts != slot || i >= len(out.Hourly.PrecipitationProbability) {
			continue
		}
		p := out.Hourly.PrecipitationProbability[i]
		if p == nil {
			break
		}
		prob := capability.ClampProb(*p)
		return capability.Forecast{
			ProbRain:    prob,
			Description: fmt.Sprintf("%d%% chance of precipitation in %s at %s UTC", prob, city, slot),
		}, nil
	}
	return capability.Forecast{}, weatherErr(fmt.Errorf("no forecast for %s at %s", city, slot))
}

func (w *Weather) locate(ctx context.Context, city string) (coords, error) {
	key := strings.ToLower(strings.TrimSpace(city))
	if c, ok := w.cache.Get(key); ok {
		return c, nil
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return coords{}, fmt.Errorf("rate limiter: %w", err)
	}
	var out geocodeResponse
	resp, err := w.geocode.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"name": city, "count": "1", "format": "json"}).
		SetResult(&out).
		Get("/v1/search")
	if err != nil {
		return coords{}, fmt.Errorf("geocode request: %w", err)
	}
	if resp.IsError() {
		return coords{}, fmt.Errorf("geocode status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Results) == 0 {
		return coords{}, errors.New("unknown city " + city)
	}
	c := coords{Lat: out.Results[0].Latitude, Lon: out.Results[0].Longitude}
	w.cache.Add(key, c)
	return c, nil
}

func weatherErr(err error) error {
	return &domain.ServiceError{Capability: capability.NameWeather, Op: "forecast", Err: err}
}
