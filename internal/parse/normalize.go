// Package parse turns free-text meeting requests into partial Slots.
//
// Extraction is rule based and deterministic: the same text and reference
// time always produce the same Slot.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	clockPattern    = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	meridiemPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)
	isoDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	durationPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(minutes|minute|mins|min|hours|hour|hrs|hr|h)\b`)
	halfHourPattern = regexp.MustCompile(`(?i)\bhalf\s+an?\s+hour\b`)
	oneHourPattern  = regexp.MustCompile(`(?i)\b(an|one)\s+hour\b`)
	durationCue     = regexp.MustCompile(`(?i)(\d\s*(minutes|minute|mins|min|hours|hour|hrs|hr|h)\b)|\b(minutes|minute|mins|min|hours|hour|hrs|hr)\b`)
	weekdayPattern  = regexp.MustCompile(`(?i)\b(next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	todayPattern    = regexp.MustCompile(`(?i)\btoday\b`)
	tomorrowPattern = regexp.MustCompile(`(?i)\btomorrow\b`)
	namedTimes      = []struct {
		pattern *regexp.Regexp
		hour    int
	}{
		{regexp.MustCompile(`(?i)\bmorning\b`), 9},
		{regexp.MustCompile(`(?i)\bafternoon\b`), 14},
		{regexp.MustCompile(`(?i)\bevening\b`), 18},
	}
)

// spanPatterns are the spans the Normalizer owns; the extractor blanks them
// before looking for names, cities and description words.
var spanPatterns = []*regexp.Regexp{
	isoDatePattern,
	clockPattern,
	meridiemPattern,
	durationPattern,
	halfHourPattern,
	oneHourPattern,
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// TimeOfDay finds an explicit clock time or a named time of day.
// Explicit times win over named ones.
func TimeOfDay(text string) (hour, minute int, ok bool) {
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h, ok := applyMeridiem(h, m[3]); ok && mm < 60 {
			return h, mm, true
		}
	}
	if m := meridiemPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h, ok := applyMeridiem(h, m[2]); ok {
			return h, 0, true
		}
	}
	for _, nt := range namedTimes {
		if nt.pattern.MatchString(text) {
			return nt.hour, 0, true
		}
	}
	return 0, 0, false
}

func applyMeridiem(hour int, meridiem string) (int, bool) {
	switch strings.ToLower(meridiem) {
	case "":
		return hour, hour >= 0 && hour < 24
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 0, true
		}
		return hour, true
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 12, true
		}
		return hour + 12, true
	}
	return 0, false
}

// ResolveWhen converts the date and time references in text into an absolute
// timestamp relative to ref. A date with no time of day is not recognized.
func ResolveWhen(text string, ref time.Time) (time.Time, bool) {
	hour, minute, ok := TimeOfDay(text)
	if !ok {
		return time.Time{}, false
	}
	if todayPattern.MatchString(text) {
		return atClock(ref, hour, minute), true
	}
	if tomorrowPattern.MatchString(text) {
		return atClock(ref.AddDate(0, 0, 1), hour, minute), true
	}
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		if d, err := time.ParseInLocation("2006-01-02", m[1], ref.Location()); err == nil {
			return atClock(d, hour, minute), true
		}
	}
	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[2])]
		ahead := (int(target) - int(ref.Weekday()) + 7) % 7
		if ahead == 0 {
			// Same weekday as today only counts when the time is still ahead.
			if m[1] != "" || !atClock(ref, hour, minute).After(ref) {
				ahead = 7
			}
		}
		return atClock(ref.AddDate(0, 0, ahead), hour, minute), true
	}
	at := atClock(ref, hour, minute)
	if !at.After(ref) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// HasDateReference reports whether text names a day without necessarily naming a time.
func HasDateReference(text string) bool {
	return todayPattern.MatchString(text) ||
		tomorrowPattern.MatchString(text) ||
		isoDatePattern.MatchString(text) ||
		weekdayPattern.MatchString(text)
}

// ParseDuration returns the duration in whole minutes.
// Fractional values are rounded to the nearest minute.
func ParseDuration(text string) (int, bool) {
	if m := durationPattern.FindStringSubmatch(text); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		switch strings.ToLower(m[2]) {
		case "hours", "hour", "hrs", "hr", "h":
			return int(math.Round(amount * 60)), true
		default:
			return int(math.Round(amount)), true
		}
	}
	if halfHourPattern.MatchString(text) {
		return 30, true
	}
	if oneHourPattern.MatchString(text) {
		return 60, true
	}
	return 0, false
}

// HasDurationCue reports whether any duration unit appears in text,
// recognized or not.
func HasDurationCue(text string) bool {
	return durationCue.MatchString(text)
}
