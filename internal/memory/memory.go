// Package memory holds per-session conversation memory: the turn history,
// per-slot entity history, discussed topics and asked questions that the
// assistant consults across turns.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Turn is one user/assistant exchange together with the intent the turn
// resolved to.
type Turn struct {
	User   string    `json:"user"`
	AI     string    `json:"ai"`
	Intent string    `json:"intent,omitempty"`
	At     time.Time `json:"at"`
}

// Store is the session-memory contract. Implementations must tolerate
// unknown session IDs by returning empty results, not errors.
type Store interface {
	RecordTurn(ctx context.Context, sessionID string, turn Turn) error
	Turns(ctx context.Context, sessionID string) ([]Turn, error)

	// RecordEntity appends a slot value to the session's per-slot history,
	// deduplicating an immediate repeat of the latest value.
	RecordEntity(ctx context.Context, sessionID, slot, value string) error
	LatestEntities(ctx context.Context, sessionID string) (map[string]string, error)

	RecordTopic(ctx context.Context, sessionID, topic string) error
	Topics(ctx context.Context, sessionID string) ([]string, error)

	RecordQuestion(ctx context.Context, sessionID, question string) error
	HasSimilarQuestion(ctx context.Context, sessionID, question string) (bool, error)

	// PreviousIntent returns the most recent appointment intent within the
	// last maxHistory turns, or "" when none is found.
	PreviousIntent(ctx context.Context, sessionID string, maxHistory int) (string, error)
}

// similarQuestion is the shared containment check: either question being a
// substring of the other counts as a repeat.
func similarQuestion(asked, question string) bool {
	asked = strings.ToLower(strings.TrimSpace(asked))
	question = strings.ToLower(strings.TrimSpace(question))
	if asked == "" || question == "" {
		return false
	}
	return strings.Contains(asked, question) || strings.Contains(question, asked)
}

func previousIntentFrom(turns []Turn, maxHistory int) string {
	if maxHistory <= 0 {
		maxHistory = 5
	}
	start := len(turns) - maxHistory
	if start < 0 {
		start = 0
	}
	for i := len(turns) - 1; i >= start; i-- {
		if turns[i].Intent != "" && turns[i].Intent != "unknown" {
			return turns[i].Intent
		}
	}
	return ""
}

// InMemoryStore keeps session memory in process maps. It backs tests and
// deployments without Redis.
type InMemoryStore struct {
	mu        sync.RWMutex
	turns     map[string][]Turn
	entities  map[string]map[string][]string
	topics    map[string][]string
	questions map[string][]string
}

// NewInMemoryStore returns an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:     make(map[string][]Turn),
		entities:  make(map[string]map[string][]string),
		topics:    make(map[string][]string),
		questions: make(map[string][]string),
	}
}

func (s *InMemoryStore) RecordTurn(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *InMemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *InMemoryStore) RecordEntity(_ context.Context, sessionID, slot, value string) error {
	if value == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities[sessionID] == nil {
		s.entities[sessionID] = make(map[string][]string)
	}
	history := s.entities[sessionID][slot]
	if n := len(history); n > 0 && history[n-1] == value {
		return nil
	}
	s.entities[sessionID][slot] = append(history, value)
	return nil
}

// EntityHistory returns every value the slot has held this session, in the
// order they were accepted.
func (s *InMemoryStore) EntityHistory(_ context.Context, sessionID, slot string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.entities[sessionID][slot]
	out := make([]string, len(history))
	copy(out, history)
	return out, nil
}

func (s *InMemoryStore) LatestEntities(_ context.Context, sessionID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for slot, history := range s.entities[sessionID] {
		if len(history) > 0 {
			out[slot] = history[len(history)-1]
		}
	}
	return out, nil
}

func (s *InMemoryStore) RecordTopic(_ context.Context, sessionID, topic string) error {
	if topic == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics[sessionID] {
		if t == topic {
			return nil
		}
	}
	s.topics[sessionID] = append(s.topics[sessionID], topic)
	return nil
}

func (s *InMemoryStore) Topics(_ context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := s.topics[sessionID]
	out := make([]string, len(topics))
	copy(out, topics)
	return out, nil
}

func (s *InMemoryStore) RecordQuestion(_ context.Context, sessionID, question string) error {
	if strings.TrimSpace(question) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[sessionID] = append(s.questions[sessionID], question)
	return nil
}

func (s *InMemoryStore) HasSimilarQuestion(_ context.Context, sessionID, question string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asked := range s.questions[sessionID] {
		if similarQuestion(asked, question) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) PreviousIntent(_ context.Context, sessionID string, maxHistory int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return previousIntentFrom(s.turns[sessionID], maxHistory), nil
}
