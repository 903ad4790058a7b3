package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcast/internal/domain"
)

var now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func validSlot() domain.Slot {
	city := "Taipei"
	when := now.Add(48 * time.Hour)
	dur := 60
	return domain.Slot{City: &city, When: &when, DurationMin: &dur}
}

func TestValidSlotHasNoDefects(t *testing.T) {
	assert.Empty(t, Validate(validSlot(), now))
	for _, d := range []int{5, 480} {
		s := validSlot()
		s.DurationMin = &d
		assert.Empty(t, Validate(s, now), "duration %d", d)
	}
}

func TestEachViolationYieldsExactlyItsDefect(t *testing.T) {
	past := validSlot()
	p := now.Add(-time.Minute)
	past.When = &p

	nowSlot := validSlot()
	n := now
	nowSlot.When = &n

	short := validSlot()
	s := 4
	short.DurationMin = &s

	long := validSlot()
	l := 481
	long.DurationMin = &l

	empty := validSlot()
	e := "  "
	empty.City = &e

	cases := []struct {
		name string
		slot domain.Slot
		want domain.DefectKind
	}{
		{"past", past, domain.DefectPastDatetime},
		{"now", nowSlot, domain.DefectPastDatetime},
		{"short", short, domain.DefectDurationOutOfRange},
		{"long", long, domain.DefectDurationOutOfRange},
		{"empty city", empty, domain.DefectEmptyCity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defects := Validate(tc.slot, now)
			require.Len(t, defects, 1)
			assert.Equal(t, tc.want, defects[0].Kind)
		})
	}
}

func TestAbsentFieldsAreNotDefects(t *testing.T) {
	assert.Empty(t, Validate(domain.Slot{}, now))
	assert.False(t, Complete([]domain.Field{domain.FieldCity}, nil))
	assert.True(t, Complete(nil, nil))
}

func TestApplyDurationDefault(t *testing.T) {
	s := validSlot()
	s.DurationMin = nil

	filled, missing := ApplyDurationDefault(s, "Friday 14:00 Taipei")
	assert.Empty(t, missing)
	require.NotNil(t, filled.DurationMin)
	assert.Equal(t, DefaultDuration, *filled.DurationMin)
	assert.Nil(t, s.DurationMin)

	kept, missing := ApplyDurationDefault(s, "Friday 14:00 Taipei for a few minutes")
	assert.Nil(t, kept.DurationMin)
	assert.Equal(t, []domain.Field{domain.FieldDuration}, missing)
}

func TestFormatExamplesNameTheField(t *testing.T) {
	assert.Contains(t, FormatExample(domain.FieldCity), "location")
	assert.Contains(t, FormatExample(domain.FieldWhen), "time")
	assert.Contains(t, FormatExample(domain.FieldDuration), "duration")
	assert.Contains(t, DefectExample(domain.Defect{Kind: domain.DefectPastDatetime, Message: "x"}), "future")
}
