package parse

import (
	"strings"
	"time"
	"unicode"

	"meetcast/internal/domain"
)

// KnownCities are matched before the capitalized-word fallback. Multi-word
// names come first so "New York" is not read as "New".
var KnownCities = []string{
	"New York",
	"San Francisco",
	"Los Angeles",
	"Hong Kong",
	"Taipei",
	"Taichung",
	"Kaohsiung",
	"Tokyo",
	"Seoul",
	"Singapore",
	"London",
	"Paris",
	"Berlin",
	"Sydney",
}

var attendeeMarkers = map[string]bool{"meet": true, "with": true}

var connectors = map[string]bool{"and": true, "&": true}

// keywords are never taken as a city or an attendee name.
var keywords = setOf(
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"today", "tomorrow", "tonight", "morning", "afternoon", "evening", "noon", "next", "this",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
	"meet", "meeting", "with", "and", "at", "in", "on", "for", "the", "a", "an",
	"am", "pm", "min", "mins", "minutes", "hour", "hours", "half",
	"schedule", "book", "plan", "set", "up", "please", "let's", "lets", "can", "we", "i",
	"team", "sync", "call", "standup", "review", "lunch", "dinner", "breakfast", "coffee",
	"picnic", "park", "beach", "outdoor", "garden", "terrace", "patio", "plaza",
)

// dateWords are consumed by the Normalizer and never become description.
var dateWords = setOf(
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"today", "tomorrow", "morning", "afternoon", "evening", "next",
)

// edgeFillers are trimmed from both ends of the leftover description.
var edgeFillers = setOf("at", "in", "on", "for", "the", "a", "an", "and", "with", "meet", "to", "of")

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

type token struct {
	word  string
	lower string
	used  bool
}

// Extract pulls a partial Slot out of text. It never fails: anything it cannot
// find is reported in the returned missing fields.
func Extract(text string, ref time.Time) (domain.Slot, []domain.Field) {
	var slot domain.Slot

	if when, ok := ResolveWhen(text, ref); ok {
		slot.When = &when
	}
	if minutes, ok := ParseDuration(text); ok {
		slot.DurationMin = &minutes
	}

	tokens := tokenize(blankSpans(text))
	slot.Attendees = extractAttendees(tokens)
	if city, ok := extractCity(tokens); ok {
		slot.City = &city
	}
	if desc, ok := leftover(tokens); ok {
		slot.Description = &desc
	}
	return slot, slot.Missing()
}

// Merge re-extracts the original text joined with a follow-up answer and fills
// only the fields the original extraction left absent. Fields listed in
// replace were rejected by validation; they take the answer's value alone.
func Merge(original, followUp string, ref time.Time, replace ...domain.Field) (domain.Slot, []domain.Field) {
	first, _ := Extract(original, ref)
	combined, _ := Extract(original+" "+followUp, ref)

	merged := first.Clone()
	replaced := map[domain.Field]bool{}
	if len(replace) > 0 {
		answer, _ := Extract(followUp, ref)
		for _, f := range replace {
			replaced[f] = true
			switch f {
			case domain.FieldCity:
				merged.City = answer.City
			case domain.FieldWhen:
				merged.When = answer.When
			case domain.FieldDuration:
				merged.DurationMin = answer.DurationMin
			}
		}
	}
	if merged.City == nil && !replaced[domain.FieldCity] {
		merged.City = combined.City
	}
	if merged.When == nil && !replaced[domain.FieldWhen] {
		merged.When = combined.When
	}
	if merged.DurationMin == nil && !replaced[domain.FieldDuration] {
		merged.DurationMin = combined.DurationMin
	}
	if len(merged.Attendees) == 0 {
		merged.Attendees = combined.Attendees
	}
	if merged.Description == nil {
		merged.Description = combined.Description
	}
	return merged, merged.Missing()
}

func blankSpans(text string) string {
	for _, p := range spanPatterns {
		text = p.ReplaceAllString(text, " ")
	}
	return text
}

func tokenize(text string) []*token {
	fields := strings.Fields(text)
	out := make([]*token, 0, len(fields))
	for _, f := range fields {
		word := f
		if word != "&" {
			word = strings.TrimFunc(f, func(r rune) bool {
				return unicode.IsPunct(r) && r != '\''
			})
		}
		if word == "" {
			continue
		}
		out = append(out, &token{word: word, lower: strings.ToLower(word)})
	}
	return out
}

func extractAttendees(tokens []*token) []string {
	names := []string{}
	for i := 0; i < len(tokens); i++ {
		if !attendeeMarkers[tokens[i].lower] {
			continue
		}
		j := i + 1
		var found []int
		for j < len(tokens) {
			t := tokens[j]
			if connectors[t.lower] && len(found) > 0 {
				j++
				continue
			}
			if !isName(t.word, 2) || cityAt(tokens, j) != "" {
				break
			}
			found = append(found, j)
			j++
		}
		if len(found) == 0 {
			continue
		}
		tokens[i].used = true
		for k := i + 1; k <= found[len(found)-1]; k++ {
			tokens[k].used = true
		}
		for _, k := range found {
			names = append(names, tokens[k].word)
		}
		i = found[len(found)-1]
	}
	return names
}

func extractCity(tokens []*token) (string, bool) {
	for i := range tokens {
		if tokens[i].used {
			continue
		}
		if city := cityAt(tokens, i); city != "" {
			for k := 0; k < len(strings.Fields(city)); k++ {
				tokens[i+k].used = true
			}
			return city, true
		}
	}
	for _, t := range tokens {
		if t.used {
			continue
		}
		if isName(t.word, 3) {
			t.used = true
			return t.word, true
		}
	}
	return "", false
}

// cityAt returns the known city starting at token i, matched case-insensitively.
func cityAt(tokens []*token, i int) string {
	for _, city := range KnownCities {
		parts := strings.Fields(city)
		if i+len(parts) > len(tokens) {
			continue
		}
		match := true
		for k, p := range parts {
			if tokens[i+k].used || !strings.EqualFold(tokens[i+k].word, p) {
				match = false
				break
			}
		}
		if match {
			return city
		}
	}
	return ""
}

// isName reports whether w looks like a proper noun of at least minLen runes
// that is not a keyword. Attendees after meet/with may be as short as "Li".
func isName(w string, minLen int) bool {
	runes := []rune(w)
	if len(runes) < minLen || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return !keywords[strings.ToLower(w)]
}

func leftover(tokens []*token) (string, bool) {
	var words []string
	for _, t := range tokens {
		if t.used || dateWords[t.lower] {
			continue
		}
		words = append(words, t.word)
	}
	for len(words) > 0 && edgeFillers[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && edgeFillers[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return "", false
	}
	return strings.Join(words, " "), true
}
