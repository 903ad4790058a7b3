package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcast/internal/capability/mock"
	"meetcast/internal/retry"
)

var fast = retry.Policy{Timeout: 100 * time.Millisecond, Delay: time.Millisecond, MaxRetries: 1}

func friday(hour, minute int) time.Time {
	return time.Date(2026, 10, 16, hour, minute, 0, 0, time.UTC)
}

func resolver(c *mock.Calendar) Resolver {
	return Resolver{Calendar: c, Policy: fast, Log: zerolog.Nop()}
}

func TestResolveNoConflict(t *testing.T) {
	info := resolver(mock.DefaultCalendar()).Resolve(context.Background(), friday(10, 0), 60)
	assert.False(t, info.HasConflict)
	assert.False(t, info.Degraded)
	assert.Empty(t, info.Candidates)
}

func TestResolveConflictProposesThreeCandidates(t *testing.T) {
	info := resolver(mock.DefaultCalendar()).Resolve(context.Background(), friday(15, 0), 30)
	require.True(t, info.HasConflict)
	require.NotNil(t, info.BlockingUntil)
	assert.Equal(t, friday(15, 30), *info.BlockingUntil)
	require.Len(t, info.Candidates, 3)
	assert.Equal(t, friday(15, 30), info.Candidates[0].Start)
	assert.Equal(t, friday(16, 0), info.Candidates[1].Start)
	assert.Equal(t, friday(16, 30), info.Candidates[2].Start)
}

func TestCandidatesAreOrderedAndFitTheDuration(t *testing.T) {
	cal := &mock.Calendar{Blocks: []mock.Block{
		{Weekday: time.Friday, Start: 15 * time.Hour, DurationMin: 30},
		{Weekday: time.Friday, Start: 16*time.Hour + 30*time.Minute, DurationMin: 60},
	}}
	info := resolver(cal).Resolve(context.Background(), friday(15, 0), 60)
	require.True(t, info.HasConflict)
	require.NotEmpty(t, info.Candidates)
	assert.LessOrEqual(t, len(info.Candidates), 3)
	for i, c := range info.Candidates {
		assert.GreaterOrEqual(t, c.AvailableMin, 60)
		if i > 0 {
			assert.True(t, c.Start.After(info.Candidates[i-1].Start))
		}
		a, err := cal.Check(context.Background(), c.Start, 60)
		require.NoError(t, err)
		assert.True(t, a.Available, c.Start)
	}
}

func TestProbeBudgetBoundsCandidates(t *testing.T) {
	cal := &mock.Calendar{Blocks: []mock.Block{{Weekday: time.Friday, Start: 15 * time.Hour, DurationMin: 180}}}
	r := resolver(cal)
	r.ProbeBudget = 6
	info := r.Resolve(context.Background(), friday(15, 0), 30)
	require.True(t, info.HasConflict)
	require.Len(t, info.Candidates, 1)
	assert.Equal(t, friday(18, 0), info.Candidates[0].Start)
	assert.Equal(t, 7, cal.Checks())
}

func TestCandidateLimitNeverExceedsThree(t *testing.T) {
	cal := mock.DefaultCalendar()
	r := resolver(cal)
	r.MaxCandidates = 5
	info := r.Resolve(context.Background(), friday(15, 0), 30)
	require.True(t, info.HasConflict)
	assert.Len(t, info.Candidates, 3)
}

func TestResolveDegradesWithoutFabricatingConflict(t *testing.T) {
	cal := &mock.Calendar{Fail: true}
	info := resolver(cal).Resolve(context.Background(), friday(15, 0), 30)
	assert.False(t, info.HasConflict)
	assert.True(t, info.Degraded)
	assert.Empty(t, info.Candidates)
	assert.Equal(t, 2, cal.Checks())
}
