package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Deterministic entity extraction. Person, date and time are extracted
// independently from one utterance; each returns empty when nothing matched
// so the layered pipeline (temporal resolver, then AI fallback) can fill the
// gaps.

// temporalWords should never be part of a person name.
var temporalWords = wordSet(
	"next", "last", "this", "tomorrow", "today", "yesterday",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
	"week", "month", "year", "am", "pm", "morning", "afternoon", "evening", "night",
)

// stopWords are prepositions, conjunctions, auxiliaries and greetings.
var stopWords = wordSet(
	"with", "for", "at", "on", "in", "the", "and", "or", "but", "because", "as",
	"hi", "hello", "hey", "can", "could", "would", "will", "shall", "must", "should",
	"may", "might", "do", "does", "did", "has", "have", "had", "is", "am", "are",
	"was", "were", "be", "been", "being", "you", "your", "me", "my", "i", "we", "us",
	"please", "thanks", "thank", "want", "need", "like", "help", "an", "a", "to", "from",
	"by", "of", "it", "its", "they", "their", "them", "there", "here", "where", "when", "how",
)

// domainWords are scheduling vocabulary that must not be mistaken for names.
var domainWords = wordSet(
	"appointment", "schedule", "book", "make", "set", "get", "find",
	"check", "show", "list", "cancel", "reschedule", "time", "date",
	"meeting", "consultation", "session", "visit", "call", "talk",
	"availability", "availibility", "available", "free", "busy", "slot", "opening",
)

// affirmativeResponses are single words that answer a confirmation question,
// never a name.
var affirmativeResponses = wordSet(
	"yes", "no", "okay", "ok", "sure", "correct", "right", "thanks", "thank", "please",
)

// noisyWords extend the person rejection list with gerunds, number words and
// pronouns the extractor has historically misread as names.
var noisyWords = wordSet(
	"feeling", "anytime", "anything", "something", "nothing", "anyone", "someone",
	"nobody", "everybody", "everyone", "whenever", "whatever", "however", "anywhere",
	"going", "looking", "thinking", "trying", "hoping", "planning", "wanting", "needing",
	"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
	"first", "second", "third", "fourth", "fifth", "last", "next", "this", "that",
	"these", "those", "there", "here", "today", "tomorrow", "yesterday",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"another", "new", "what", "ai",
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

var monthAbbrevs = []string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

const honorific = `(?:(dr|mr|mrs|ms|miss|prof)\.?\s+)?`
const nameToken = `([A-Za-z][a-z]+)`

var personPatterns = []*regexp.Regexp{
	// Order matters: "of"/"for" covers "availability of John" and
	// "appointment for Alice"; "with"/"see" cover the scheduling phrasings.
	regexp.MustCompile(`(?:of|for)\s+` + honorific + nameToken + `(?:\s+` + nameToken + `)?`),
	regexp.MustCompile(`with\s+` + honorific + nameToken + `(?:\s+` + nameToken + `)?`),
	regexp.MustCompile(`see\s+` + honorific + nameToken + `(?:\s+` + nameToken + `)?`),
}

var (
	time12Pattern     = regexp.MustCompile(`(\d{1,2})[:.h](\d{2})\s*(am|pm|a\.m\.|p\.m\.)`)
	timeHourPattern   = regexp.MustCompile(`(\d{1,2})\s*(am|pm|a\.m\.|p\.m\.)`)
	timeOfDayPattern  = regexp.MustCompile(`^\d{1,2}(:\d{2})?\s*(am|pm|a\.m\.|p\.m\.)?$`)
	isoDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	clockPattern      = regexp.MustCompile(`\d{1,2}:\d{2}`)
	bareYearPattern   = regexp.MustCompile(`\b(20\d{2})\b`)
	leadingNumPattern = regexp.MustCompile(`^\d+`)
)

// ExtractEntities pulls person, date and time from one utterance. The
// reference time supplies the year for dates given without one.
func ExtractEntities(text string, now time.Time) Entities {
	var ents Entities

	words := strings.Fields(text)

	// A single token that is not a stop/temporal/domain word is assumed to
	// be a direct name answer to a previous "who" question.
	if len(words) == 1 && !isReservedWord(strings.ToLower(words[0])) {
		ents.Person = titleCase(words[0])
		ents.Date = extractDate(text, now)
		ents.Time = extractTime(text)
		return ents
	}

	ents.Person = extractPerson(text)
	ents.Date = extractDate(text, now)
	ents.Time = extractTime(text)
	return ents
}

// extractPerson tries the preposition patterns first, then falls back to the
// first plausible name token in the utterance.
func extractPerson(text string) string {
	lower := strings.ToLower(text)

	for _, p := range personPatterns {
		m := p.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		title, first, last := m[1], m[2], m[3]
		if isReservedWord(first) {
			continue
		}
		var parts []string
		if title != "" {
			parts = append(parts, titleCase(title)+".")
		}
		parts = append(parts, titleCase(first))
		if last != "" && !isReservedWord(last) {
			parts = append(parts, titleCase(last))
		}
		return strings.Join(parts, " ")
	}

	// Token scan fallback: first word that is not reserved, not numeric and
	// not an ordinal ("15th", "3rd", "1st").
	for _, word := range strings.Fields(text) {
		lw := strings.ToLower(word)
		if isReservedWord(lw) {
			continue
		}
		if leadingNumPattern.MatchString(word) {
			continue
		}
		if strings.HasSuffix(lw, "th") || strings.HasSuffix(lw, "rd") || strings.HasSuffix(lw, "st") {
			continue
		}
		return titleCase(word)
	}
	return ""
}

// extractDate matches explicit month-name dates in both orders, with and
// without a year. A missing year defaults to the current calendar year.
func extractDate(text string, now time.Time) string {
	lower := strings.ToLower(text)

	for i, month := range append(append([]string{}, monthNames...), monthAbbrevs...) {
		monthNum := i%12 + 1

		// "June 15, 2023" / "June 15th 2023"
		withYearMD := regexp.MustCompile(month + `\s+(\d{1,2})(st|nd|rd|th)?(?:,|\s)\s*(\d{4})`)
		// "15 June 2023" / "15th of June, 2023"
		withYearDM := regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)?\s+(?:of\s+)?` + month + `(?:,|\s)\s*(\d{4})`)

		if m := withYearMD.FindStringSubmatch(lower); m != nil {
			if d := formatDate(m[3], monthNum, m[1]); d != "" {
				return d
			}
		}
		if m := withYearDM.FindStringSubmatch(lower); m != nil {
			if d := formatDate(m[3], monthNum, m[1]); d != "" {
				return d
			}
		}

		// Same shapes without a year.
		noYearMD := regexp.MustCompile(month + `\s+(\d{1,2})(st|nd|rd|th)?`)
		noYearDM := regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)?\s+(?:of\s+)?` + month)

		if m := noYearMD.FindStringSubmatch(lower); m != nil {
			if d := formatDate(strconv.Itoa(now.Year()), monthNum, m[1]); d != "" {
				return d
			}
		}
		if m := noYearDM.FindStringSubmatch(lower); m != nil {
			if d := formatDate(strconv.Itoa(now.Year()), monthNum, m[1]); d != "" {
				return d
			}
		}
	}
	return ""
}

// extractYearOnly catches a bare year ("2025") when nothing else matched;
// it resolves to January 1st of that year.
func extractYearOnly(text string) string {
	if m := bareYearPattern.FindStringSubmatch(text); m != nil {
		return m[1] + "-01-01"
	}
	return ""
}

func formatDate(year string, month int, day string) string {
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return ""
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, month, d)
}

// extractTime returns a zero-padded 24-hour HH:MM. The full 12-hour pattern
// with minutes takes priority over the bare "hour + am/pm" form.
func extractTime(text string) string {
	lower := strings.ToLower(text)

	if m := time12Pattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour >= 1 && hour <= 12 && minute <= 59 {
			return fmt.Sprintf("%02d:%02d", to24(hour, m[3]), minute)
		}
	}

	if m := timeHourPattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			return fmt.Sprintf("%02d:00", to24(hour, m[2]))
		}
	}
	return ""
}

// to24 converts a 12-hour hour with am/pm marker: 12am maps to 0, any pm
// hour below 12 adds 12.
func to24(hour int, period string) int {
	switch {
	case strings.HasPrefix(period, "p") && hour < 12:
		return hour + 12
	case strings.HasPrefix(period, "a") && hour == 12:
		return 0
	}
	return hour
}

func isReservedWord(w string) bool {
	return stopWords[w] || temporalWords[w] || domainWords[w]
}

// nameLikeTokens reports whether every token could plausibly belong to a
// name: no scheduling vocabulary, stop words, confirmations or time talk.
func nameLikeTokens(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	for _, w := range fields {
		lw := strings.ToLower(strings.Trim(w, `.,!?'"`))
		if lw == "" || isReservedWord(lw) || affirmativeResponses[lw] || noisyWords[lw] {
			return false
		}
	}
	return true
}

func titleCase(w string) string {
	w = strings.Trim(w, `.,!?'"`)
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}

func wordSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}
