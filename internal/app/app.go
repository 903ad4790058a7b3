// Package app assembles the engine, capabilities and journal from config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"meetcast/internal/capability"
	"meetcast/internal/capability/mock"
	"meetcast/internal/capability/remote"
	"meetcast/internal/config"
	"meetcast/internal/db"
	"meetcast/internal/engine"
	"meetcast/internal/events"
	"meetcast/internal/metrics"
	"meetcast/internal/migrate"
	"meetcast/internal/repo"
)

// App is the runtime shared by the CLI and the HTTP server.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	Engine  engine.Engine
	// Repo is nil when the journal is disabled.
	Repo *repo.Repo

	conn *sql.DB
}

type Options struct {
	Workspace string
	Config    *config.Config
	Log       zerolog.Logger
}

// Open builds capabilities for the configured mode and, when enabled, opens
// and migrates the journal.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	w, c, err := Capabilities(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		Log:     opts.Log,
		Metrics: metrics.New(),
	}
	a.Engine = engine.New(w, c, cfg)
	a.Engine.Log = opts.Log
	a.Engine.Metrics = a.Metrics

	if cfg.Journal.Enabled {
		conn, err := db.Open(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		applied, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		for _, m := range applied {
			opts.Log.Debug().Str("migration", m.Name).Msg("journal migrated")
		}
		a.conn = conn
		a.Repo = &repo.Repo{DB: conn}
		a.Engine.Journal = events.Writer{DB: conn}
	}
	return a, nil
}

func (a *App) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

// Capabilities returns the weather and calendar providers for cfg.
func Capabilities(cfg *config.Config) (capability.Weather, capability.Calendar, error) {
	switch cfg.Capabilities.Mode {
	case "remote":
		rw := cfg.Capabilities.Weather
		w, err := remote.NewWeather(remote.WeatherOptions{
			ForecastURL: rw.ForecastURL,
			GeocodeURL:  rw.GeocodeURL,
			RatePerSec:  rw.RatePerSec,
			CacheSize:   rw.CacheSize,
			Timeout:     cfg.Pipeline.CallTimeout.Std(),
		})
		if err != nil {
			return nil, nil, err
		}
		rc := cfg.Capabilities.Calendar
		c, err := remote.NewCalendar(remote.CalendarOptions{
			BaseURL:    rc.BaseURL,
			Token:      rc.Token,
			RatePerSec: rc.RatePerSec,
			Timeout:    cfg.Pipeline.CallTimeout.Std(),
		})
		if err != nil {
			return nil, nil, err
		}
		return w, c, nil
	case "", "mock":
		w, err := MockWeather(cfg.Mock.Weather)
		if err != nil {
			return nil, nil, err
		}
		c, err := MockCalendar(cfg.Mock.Calendar)
		if err != nil {
			return nil, nil, err
		}
		return w, c, nil
	}
	return nil, nil, fmt.Errorf("unknown capabilities mode %q", cfg.Capabilities.Mode)
}

func MockWeather(mc config.MockWeather) (*mock.Weather, error) {
	w := &mock.Weather{
		BaseProb: mc.BaseProb,
		Fail:     mc.Fail,
		Latency:  mc.Latency.Std(),
	}
	for i, win := range mc.Windows {
		day, err := config.ParseWeekday(win.Weekday)
		if err != nil {
			return nil, fmt.Errorf("mock.weather.windows[%d]: %w", i, err)
		}
		start, err := config.ParseClock(win.Start)
		if err != nil {
			return nil, fmt.Errorf("mock.weather.windows[%d].start: %w", i, err)
		}
		end, err := config.ParseClock(win.End)
		if err != nil {
			return nil, fmt.Errorf("mock.weather.windows[%d].end: %w", i, err)
		}
		w.Windows = append(w.Windows, mock.Window{Weekday: day, Start: start, End: end, ProbRain: win.ProbRain})
	}
	if len(mc.Keywords) > 0 {
		w.Keywords = make(map[string]int, len(mc.Keywords))
		for word, p := range mc.Keywords {
			w.Keywords[strings.ToLower(word)] = p
		}
	}
	if len(mc.Cities) > 0 {
		w.Cities = make(map[string]int, len(mc.Cities))
		for city, p := range mc.Cities {
			w.Cities[strings.ToLower(city)] = p
		}
	}
	return w, nil
}

func MockCalendar(mc config.MockCalendar) (*mock.Calendar, error) {
	c := &mock.Calendar{
		Fail:       mc.Fail,
		FailCreate: mc.FailCreate,
		Latency:    mc.Latency.Std(),
	}
	for i, b := range mc.Blocks {
		day, err := config.ParseWeekday(b.Weekday)
		if err != nil {
			return nil, fmt.Errorf("mock.calendar.blocks[%d]: %w", i, err)
		}
		start, err := config.ParseClock(b.Start)
		if err != nil {
			return nil, fmt.Errorf("mock.calendar.blocks[%d].start: %w", i, err)
		}
		c.Blocks = append(c.Blocks, mock.Block{Weekday: day, Start: start, DurationMin: b.DurationMin})
	}
	return c, nil
}
