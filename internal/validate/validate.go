// Package validate enforces Slot invariants and reports named defects.
package validate

import (
	"fmt"
	"strings"
	"time"

	"meetcast/internal/domain"
	"meetcast/internal/parse"
)

const (
	MinDuration     = 5
	MaxDuration     = 480
	DefaultDuration = 60
)

// Validate checks the fields that are present. Absent fields are not defects.
func Validate(slot domain.Slot, now time.Time) []domain.Defect {
	var defects []domain.Defect
	if slot.City != nil && strings.TrimSpace(*slot.City) == "" {
		defects = append(defects, domain.Defect{
			Kind:    domain.DefectEmptyCity,
			Field:   domain.FieldCity,
			Message: "city must not be empty",
		})
	}
	if slot.When != nil && !slot.When.After(now) {
		defects = append(defects, domain.Defect{
			Kind:    domain.DefectPastDatetime,
			Field:   domain.FieldWhen,
			Message: fmt.Sprintf("%s is not in the future", slot.When.Format(time.RFC3339)),
		})
	}
	if slot.DurationMin != nil && (*slot.DurationMin < MinDuration || *slot.DurationMin > MaxDuration) {
		defects = append(defects, domain.Defect{
			Kind:    domain.DefectDurationOutOfRange,
			Field:   domain.FieldDuration,
			Message: fmt.Sprintf("duration %d min is outside %d-%d", *slot.DurationMin, MinDuration, MaxDuration),
		})
	}
	return defects
}

// Complete reports whether a Slot can proceed to assessment.
func Complete(missing []domain.Field, defects []domain.Defect) bool {
	return len(missing) == 0 && len(defects) == 0
}

// ApplyDurationDefault fills a 60 minute duration when the request text carries
// no duration phrase at all. A phrase that failed to parse leaves it absent.
func ApplyDurationDefault(slot domain.Slot, text string) (domain.Slot, []domain.Field) {
	if slot.DurationMin == nil && !parse.HasDurationCue(text) {
		slot = slot.Clone()
		d := DefaultDuration
		slot.DurationMin = &d
	}
	return slot, slot.Missing()
}

// TimeOfDayExample is shown when the request names a day but no time.
const TimeOfDayExample = `time: the day is set, add a time of day, e.g. "14:00", "3pm" or "morning"`

// FormatExample returns the guidance shown for a field the caller must supply.
func FormatExample(f domain.Field) string {
	switch f {
	case domain.FieldCity:
		return `location: add a city, e.g. "in Taipei" or "in New York"`
	case domain.FieldWhen:
		return `time: add a day and time, e.g. "Friday 14:00", "tomorrow 3pm" or "2026-10-20 10:30"`
	case domain.FieldDuration:
		return `duration: add a length, e.g. "30 min", "1.5 hours" or "half an hour"`
	}
	return string(f)
}

// DefectExample returns the guidance shown for a defect the caller must fix.
func DefectExample(d domain.Defect) string {
	switch d.Kind {
	case domain.DefectPastDatetime:
		return `time: ` + d.Message + `; choose a future time, e.g. "tomorrow 10:00"`
	case domain.DefectDurationOutOfRange:
		return `duration: ` + d.Message + fmt.Sprintf(`; use %d to %d minutes, e.g. "45 min"`, MinDuration, MaxDuration)
	case domain.DefectEmptyCity:
		return `location: ` + d.Message + `; e.g. "in London"`
	}
	return d.Message
}
