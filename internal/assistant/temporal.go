package assistant

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Temporal resolution turns relative natural-language date expressions into
// calendar dates. It works on the whole utterance because relative
// expressions need a reference point.

const (
	// StorageDateLayout is the unambiguous form kept in context and handed
	// to persistence.
	StorageDateLayout = "2006-01-02"
	// DisplayDateLayout is what the user sees: "Monday, January 2, 2006".
	DisplayDateLayout = "Monday, January 2, 2006"
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var (
	inUnitsPattern     = regexp.MustCompile(`in\s+(\d+)\s+(day|days|week|weeks|month|months)`)
	afterUnitsPattern  = regexp.MustCompile(`after\s+(\d+)\s+(day|days|week|weeks|month|months)`)
	fromNowPattern     = regexp.MustCompile(`(\d+)\s+(day|days|week|weeks|month|months)\s+from\s+now`)
	fromDatePattern    = regexp.MustCompile(`(\d+)\s+(day|days|week|weeks|month|months)\s+from\s+(.+)`)
	weekdayNamePattern = `(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`
	nextDayPattern     = regexp.MustCompile(`next\s+` + weekdayNamePattern)
	thisDayPattern     = regexp.MustCompile(`this\s+` + weekdayNamePattern)
	bareDayPattern     = regexp.MustCompile(`\b` + weekdayNamePattern + `\b`)
)

// ResolveRelativeDate parses a relative date expression against the given
// reference time. The bool result is false when no pattern matched.
func ResolveRelativeDate(text string, now time.Time) (time.Time, bool) {
	text = strings.ToLower(text)
	today := truncateToDay(now)

	switch {
	case strings.Contains(text, "tomorrow"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(text, "today"):
		return today, true
	case strings.Contains(text, "yesterday"):
		return today.AddDate(0, 0, -1), true
	}

	// "next <weekday>" always advances to a future occurrence: an offset of
	// zero wraps a full week.
	if m := nextDayPattern.FindStringSubmatch(text); m != nil {
		ahead := daysAhead(today, weekdays[m[1]])
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}

	// "this <weekday>" resolves to today itself when the day matches,
	// otherwise the nearest future occurrence this week.
	if m := thisDayPattern.FindStringSubmatch(text); m != nil {
		return today.AddDate(0, 0, daysAhead(today, weekdays[m[1]])), true
	}

	// A bare weekday name, only when neither "next" nor "this" qualifies
	// it: nearest occurrence, today if it is today.
	if m := bareDayPattern.FindStringSubmatch(text); m != nil {
		return today.AddDate(0, 0, daysAhead(today, weekdays[m[1]])), true
	}

	for _, p := range []*regexp.Regexp{inUnitsPattern, afterUnitsPattern, fromNowPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			n, _ := strconv.Atoi(m[1])
			return addUnits(today, n, m[2]), true
		}
	}

	// "N units from <base-date>": the base clause goes through the
	// permissive free-text parser before the offset is applied.
	if m := fromDatePattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		base, ok := ParseFuzzyDate(strings.TrimSpace(m[3]), now)
		if !ok {
			return time.Time{}, false
		}
		return addUnits(base, n, m[2]), true
	}

	// Calendar-boundary phrases, computed from the true first/last day of
	// the relevant month.
	year, month := today.Year(), today.Month()
	switch {
	case strings.Contains(text, "end of next month"):
		first := time.Date(year, month, 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0)
		return first.AddDate(0, 1, -1), true
	case strings.Contains(text, "beginning of next month"), strings.Contains(text, "start of next month"):
		return time.Date(year, month, 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0), true
	case strings.Contains(text, "end of month"), strings.Contains(text, "end of the month"):
		return time.Date(year, month, 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, -1), true
	case strings.Contains(text, "beginning of month"), strings.Contains(text, "start of month"):
		return time.Date(year, month, 1, 0, 0, 0, 0, today.Location()), true
	}

	return time.Time{}, false
}

// ParseFuzzyDate is the permissive free-text date parser used for base-date
// clauses and for round-tripping display strings. It accepts the storage
// form, the display form, common textual layouts and month-name extraction,
// falling back to the relative resolver for expressions like "tomorrow".
func ParseFuzzyDate(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)

	layouts := []string{
		StorageDateLayout,
		DisplayDateLayout,
		"January 2, 2006",
		"January 2 2006",
		"2 January 2006",
		"Jan 2, 2006",
		"Jan 2 2006",
		"01/02/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return truncateToDay(t), true
		}
		// Case differences ("june 11") defeat time.Parse; retry titled.
		if t, err := time.Parse(layout, titleWords(text)); err == nil {
			return truncateToDay(t), true
		}
	}

	if d := extractDate(text, now); d != "" {
		t, err := time.Parse(StorageDateLayout, d)
		if err == nil {
			return t, true
		}
	}

	// Avoid infinite recursion: only simple relative words reach here.
	lower := strings.ToLower(text)
	if strings.Contains(lower, "from") {
		return time.Time{}, false
	}
	return ResolveRelativeDate(lower, now)
}

func addUnits(base time.Time, n int, unit string) time.Time {
	switch strings.TrimSuffix(unit, "s") {
	case "day":
		return base.AddDate(0, 0, n)
	case "week":
		return base.AddDate(0, 0, n*7)
	case "month":
		return base.AddDate(0, n, 0)
	}
	return base
}

// daysAhead computes the forward offset to the target weekday, zero when
// today already is that weekday.
func daysAhead(today time.Time, target time.Weekday) int {
	return (int(target) - int(today.Weekday()) + 7) % 7
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatDisplayDate renders a storage-form date for the user. Unparseable
// input is returned unchanged.
func FormatDisplayDate(date string) string {
	t, err := time.Parse(StorageDateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(DisplayDateLayout)
}

// FormatDisplayTime converts HH:MM (24-hour) into a 12-hour display form.
// The "first available" sentinel and unparseable values pass through.
func FormatDisplayTime(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
