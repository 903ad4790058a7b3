package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcast/internal/capability/mock"
	"meetcast/internal/config"
	"meetcast/internal/domain"
	"meetcast/internal/engine"
)

func testEngine(t *testing.T) engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Timezone = "UTC"
	cfg.Pipeline.RetryDelay = config.Duration(time.Millisecond)
	return engine.New(mock.DefaultWeather(), mock.DefaultCalendar(), cfg)
}

func TestGoldenDataset(t *testing.T) {
	cases, err := LoadFile("testdata/golden.jsonl")
	require.NoError(t, err)
	require.Len(t, cases, 5)

	report := Evaluate(context.Background(), testEngine(t), cases)
	for _, r := range report.Results {
		assert.True(t, r.Passed, "%s: %v (%s)", r.Case.ID, r.Mismatch, r.Summary.Reason)
	}
	assert.Equal(t, 5, report.Passed)
	assert.InDelta(t, 100.0, report.SuccessRate(), 0.001)
}

func TestEvaluateReportsMismatch(t *testing.T) {
	cases := []Case{{
		ID:             "wrong",
		Input:          "Friday 10:00 Taipei meet Alice 60min",
		Now:            "2026-10-14T09:00:00Z",
		ExpectedStatus: domain.StatusConflict,
		ExpectedAction: domain.ActionProposeCandidates,
	}}
	report := Evaluate(context.Background(), testEngine(t), cases)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Passed)
	assert.Len(t, report.Results[0].Mismatch, 2)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.SuccessRate())
}

func TestLoadValidatesLines(t *testing.T) {
	_, err := Load(strings.NewReader(`{"id":"a","input":"x"}`))
	assert.ErrorContains(t, err, "expected_status")

	_, err = Load(strings.NewReader("\n" + `{"id":"a","input":"x","expected_status":"confirmed","now":"yesterday"}`))
	assert.ErrorContains(t, err, "line 2")

	cases, err := Load(strings.NewReader(`{"input":"x","expected_status":"error"}`))
	require.NoError(t, err)
	assert.Equal(t, "case-1", cases[0].ID)
}
