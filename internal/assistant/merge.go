package assistant

import (
	"regexp"
	"strings"
)

// Slot merging reconciles freshly extracted entities with the accumulated
// context. Guards keep low-confidence extractions from clobbering confirmed
// slots and keep the AI fallback's output from cross-contaminating date and
// time.

// FirstAvailable is the sentinel stored when the user expresses a flexible
// time preference ("anytime", "asap"). It survives through confirmation and
// is never auto-resolved to a concrete slot.
const FirstAvailable = "first available"

var flexibleTimePhrases = []string{
	"anytime", "any time", "whenever", "available", "asap",
	"as soon as", "earliest",
}

var anytimePatterns = compileAll(
	`any\s*time`,
	`when\w*\s+available`,
	`earliest\s+available`,
	`first\s+available`,
	`whenever`,
	`any\s+open\w*\s+slot`,
	`any\s+opening`,
	`as\s+soon\s+as\s+possible`,
	`asap`,
	`fit\s+me\s+in`,
	`earliest\s+appointment`,
)

var monthNameAnywhere = regexp.MustCompile(
	`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)

// SlotWrite records an accepted slot update so the caller can append it to
// the session's per-slot history.
type SlotWrite struct {
	Slot  string
	Value string
}

// MergeEntities writes accepted entity values into the context and returns
// the writes that happened. turnStartPhase and turnStartPerson are the
// values in effect before this turn began: once a person is locked in
// outside of an explicit re-ask, new noisy extractions must not clobber it.
func MergeEntities(c *Context, ents Entities, turnStartPhase Phase, turnStartPerson string) []SlotWrite {
	var writes []SlotWrite

	if ents.Person != "" && personAcceptable(ents.Person, turnStartPhase, turnStartPerson) {
		if c.Person != ents.Person {
			c.Person = ents.Person
			writes = append(writes, SlotWrite{SlotPerson, ents.Person})
		}
	}
	if ents.Date != "" && c.Date != ents.Date {
		c.Date = ents.Date
		writes = append(writes, SlotWrite{SlotDate, ents.Date})
	}
	if ents.Time != "" && c.Time != ents.Time {
		c.Time = ents.Time
		writes = append(writes, SlotWrite{SlotTime, ents.Time})
	}
	return writes
}

// personAcceptable applies the person guard chain.
func personAcceptable(candidate string, turnStartPhase Phase, turnStartPerson string) bool {
	lower := strings.ToLower(strings.TrimSpace(candidate))
	if len(lower) <= 2 {
		return false
	}
	if domainWords[lower] || affirmativeResponses[lower] || noisyWords[lower] || temporalWords[lower] {
		return false
	}
	if looksLikeTime(lower) || looksLikeDate(lower) {
		return false
	}
	// A confirmed person is only replaceable while a person-asking phase is
	// active.
	if turnStartPerson != "" && !personAskingPhases[turnStartPhase] {
		return false
	}
	return true
}

// looksLikeTime reports whether the value is a clock or am/pm expression.
func looksLikeTime(s string) bool {
	return timeOfDayPattern.MatchString(strings.TrimSpace(s)) || clockPattern.MatchString(s)
}

// looksLikeDate reports whether the value names a month or carries an ISO
// date.
func looksLikeDate(s string) bool {
	return monthNameAnywhere.MatchString(s) || isoDatePattern.MatchString(s)
}

// SanitizeAISlots validates the AI fallback's output before it may be
// merged: literal null strings become empty, a date that reads like a time
// is dropped (and vice versa), and flexible time phrases normalize to the
// FirstAvailable sentinel.
func SanitizeAISlots(raw map[string]string) map[string]string {
	clean := make(map[string]string, len(raw))
	for slot, value := range raw {
		value = strings.TrimSpace(value)
		switch strings.ToLower(value) {
		case "", "null", "unknown":
			continue
		}

		switch slot {
		case SlotDate:
			if timeOfDayPattern.MatchString(strings.ToLower(value)) {
				continue
			}
		case SlotTime:
			lower := strings.ToLower(value)
			if monthNameAnywhere.MatchString(lower) || isoDatePattern.MatchString(value) {
				continue
			}
			if isFlexibleTime(lower) {
				value = FirstAvailable
			}
		case SlotPerson:
			if isoDatePattern.MatchString(value) || clockPattern.MatchString(value) {
				continue
			}
		}
		clean[slot] = value
	}
	return clean
}

func isFlexibleTime(lower string) bool {
	for _, phrase := range flexibleTimePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// DetectFlexibleTime reports whether the utterance as a whole asks for the
// first open slot ("fit me in", "as soon as possible").
func DetectFlexibleTime(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range anytimePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}
