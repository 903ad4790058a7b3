package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcast/internal/app"
	"meetcast/internal/capability/mock"
	"meetcast/internal/capability/remote"
	"meetcast/internal/config"
	"meetcast/internal/domain"
	"meetcast/internal/repo"
)

func TestMockCapabilitiesFromDefaultConfig(t *testing.T) {
	cfg := config.Default()
	w, c, err := app.Capabilities(cfg)
	require.NoError(t, err)

	mw, ok := w.(*mock.Weather)
	require.True(t, ok)
	assert.Equal(t, 15, mw.BaseProb)
	assert.Equal(t, map[string]int{"rain": 70}, mw.Keywords)
	require.Len(t, mw.Windows, 1)
	assert.Equal(t, mock.Window{Weekday: time.Friday, Start: 14 * time.Hour, End: 16 * time.Hour, ProbRain: 65}, mw.Windows[0])

	mc, ok := c.(*mock.Calendar)
	require.True(t, ok)
	assert.Equal(t, []mock.Block{{Weekday: time.Friday, Start: 15 * time.Hour, DurationMin: 30}}, mc.Blocks)
}

func TestMockWeatherLowercasesCities(t *testing.T) {
	w, err := app.MockWeather(config.MockWeather{BaseProb: 10, Cities: map[string]int{"London": 80}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"london": 80}, w.Cities)

	_, err = app.MockWeather(config.MockWeather{Windows: []config.MockWindow{{Weekday: "someday", Start: "10:00", End: "11:00"}}})
	assert.Error(t, err)
}

func TestRemoteCapabilities(t *testing.T) {
	cfg := config.Default()
	cfg.Capabilities.Mode = "remote"
	cfg.Capabilities.Calendar.BaseURL = "http://calendar.invalid"
	w, c, err := app.Capabilities(cfg)
	require.NoError(t, err)
	assert.IsType(t, &remote.Weather{}, w)
	assert.IsType(t, &remote.Calendar{}, c)

	cfg.Capabilities.Calendar.BaseURL = ""
	_, _, err = app.Capabilities(cfg)
	assert.Error(t, err)
}

func TestOpenRecordsRunsInJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Timezone = "UTC"
	ctx := context.Background()

	a, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), Config: cfg, Log: zerolog.Nop()})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Repo)

	sum := a.Engine.Run(ctx, "tomorrow 10:00 Taipei sync with Alice 30 min", nil)
	require.Equal(t, domain.StatusConfirmed, sum.Status, sum.Reason)

	runs, err := a.Repo.ListRuns(ctx, repo.RunFilters{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sum.RunID, runs[0].ID)

	run, err := a.Repo.GetRun(ctx, sum.RunID)
	require.NoError(t, err)
	assert.NotEmpty(t, run.Transitions)
	assert.Equal(t, sum.EventID, run.Summary.EventID)
}

func TestOpenWithoutJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Journal.Enabled = false
	a, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg, Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Nil(t, a.Repo)
	assert.Nil(t, a.Engine.Journal)
	assert.NoError(t, a.Close())
}
