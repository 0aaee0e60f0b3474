// Package appointments persists booked appointments and per-person
// availability windows.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/appointly/assistant/internal/assistant"
)

// ErrNotFound is returned when a cancellation targets an appointment that
// does not exist.
var ErrNotFound = errors.New("appointments: no matching appointment")

const dateLayout = "2006-01-02"

// businessHours are the assumed open slots for a person with no explicit
// availability windows: weekdays, on the hour.
var businessHours = []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"}

var bareHourPattern = regexp.MustCompile(`(\d{1,2})`)

// normalizeTime turns user-shaped time strings ("15:00", "3pm", "3 PM")
// into HH:MM 24-hour form.
func normalizeTime(raw string) (string, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if t, err := time.Parse("15:04", raw); err == nil {
		return t.Format("15:04"), nil
	}
	if t, err := time.Parse("3:04 pm", raw); err == nil {
		return t.Format("15:04"), nil
	}

	switch {
	case strings.Contains(raw, "pm"):
		m := bareHourPattern.FindStringSubmatch(raw)
		if m == nil {
			return "", fmt.Errorf("appointments: unparseable time %q", raw)
		}
		hour, _ := strconv.Atoi(m[1])
		if hour < 12 {
			hour += 12
		}
		return fmt.Sprintf("%02d:00", hour), nil
	case strings.Contains(raw, "am"):
		m := bareHourPattern.FindStringSubmatch(raw)
		if m == nil {
			return "", fmt.Errorf("appointments: unparseable time %q", raw)
		}
		hour, _ := strconv.Atoi(m[1])
		if hour == 12 {
			hour = 0
		}
		return fmt.Sprintf("%02d:00", hour), nil
	}
	if !strings.Contains(raw, ":") {
		if t, err := time.Parse("15:04", raw+":00"); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("appointments: unparseable time %q", raw)
}

func displayTime(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

// withinBusinessHours mirrors the default assumption for people without
// explicit windows: weekdays nine to five.
func withinBusinessHours(date time.Time, hhmm string) bool {
	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return false
	}
	return t.Hour() >= 9 && t.Hour() < 17
}

// InMemoryStore keeps appointments in process. It backs tests and
// deployments without a database.
type InMemoryStore struct {
	mu    sync.RWMutex
	appts []assistant.Appointment
}

// NewInMemoryStore returns an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Add(_ context.Context, person, date, timeStr string) error {
	normalized, err := s.resolveTime(person, date, timeStr)
	if err != nil {
		return err
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("appointments: unparseable date %q", date)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		// An exact duplicate booking counts as success.
		if a.Person == person && a.Date == date && a.Time == normalized {
			return nil
		}
	}
	s.appts = append(s.appts, assistant.Appointment{Person: person, Date: date, Time: normalized})
	return nil
}

func (s *InMemoryStore) Cancel(_ context.Context, person, date, timeStr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := ""
	if timeStr != "" && timeStr != assistant.FirstAvailable {
		if n, err := normalizeTime(timeStr); err == nil {
			normalized = n
		}
	}

	for i, a := range s.appts {
		if a.Person != person || a.Date != date {
			continue
		}
		if normalized != "" && a.Time != normalized {
			continue
		}
		s.appts = append(s.appts[:i], s.appts[i+1:]...)
		return nil
	}
	return ErrNotFound
}

func (s *InMemoryStore) CheckAvailability(_ context.Context, person, date, timeStr string) (bool, error) {
	normalized, err := normalizeTime(timeStr)
	if err != nil {
		return false, err
	}
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return false, fmt.Errorf("appointments: unparseable date %q", date)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appts {
		if a.Person == person && a.Date == date && a.Time == normalized {
			return false, nil
		}
	}
	return withinBusinessHours(day, normalized), nil
}

func (s *InMemoryStore) AvailableTimes(_ context.Context, person, date string) ([]string, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: unparseable date %q", date)
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	s.mu.RLock()
	booked := make(map[string]bool)
	for _, a := range s.appts {
		if a.Person == person && a.Date == date {
			booked[a.Time] = true
		}
	}
	s.mu.RUnlock()

	var out []string
	for _, slot := range businessHours {
		if !booked[slot] {
			out = append(out, displayTime(slot))
		}
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, person, date string) ([]assistant.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []assistant.Appointment
	for _, a := range s.appts {
		if person != "" && a.Person != person {
			continue
		}
		if date != "" && a.Date != date {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

// resolveTime maps the flexible-time sentinel onto the first open slot of
// the requested day before normalizing.
func (s *InMemoryStore) resolveTime(person, date, timeStr string) (string, error) {
	if timeStr != assistant.FirstAvailable {
		return normalizeTime(timeStr)
	}
	slots, err := s.AvailableTimes(context.Background(), person, date)
	if err != nil || len(slots) == 0 {
		return businessHours[0], nil
	}
	return normalizeTime(slots[0])
}
