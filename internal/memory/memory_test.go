package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryTurns(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{User: "hi", AI: "hello", Intent: "unknown", At: time.Now()}))
	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{User: "schedule", AI: "who with?", Intent: "schedule_appointment", At: time.Now()}))

	turns, err := s.Turns(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].User)

	// Unknown sessions return empty, never an error.
	turns, err = s.Turns(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

// An immediate repeat of the latest value for a slot is not recorded twice.
func TestInMemoryEntityDedup(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "Sarah"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "date", "2025-06-12"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "time", ""))

	latest, err := s.LatestEntities(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"person": "Sarah", "date": "2025-06-12"}, latest)

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Equal(t, []string{"John", "Sarah"}, s.entities["s-1"]["person"])
}

func TestInMemoryTopics(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordTopic(ctx, "s-1", "appointment"))
	require.NoError(t, s.RecordTopic(ctx, "s-1", "appointment"))
	require.NoError(t, s.RecordTopic(ctx, "s-1", "health"))

	topics, err := s.Topics(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"appointment", "health"}, topics)
}

func TestSimilarQuestion(t *testing.T) {
	tests := []struct {
		asked    string
		question string
		want     bool
	}{
		{"what is gravity", "what is gravity", true},
		{"what is gravity", "what is gravity exactly", true},
		{"tell me about what is gravity", "what is gravity", true},
		{"what is gravity", "what is entropy", false},
		{"", "what is gravity", false},
		{"what is gravity", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, similarQuestion(tt.asked, tt.question),
			"asked=%q question=%q", tt.asked, tt.question)
	}
}

func TestInMemoryHasSimilarQuestion(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordQuestion(ctx, "s-1", "what is gravity"))

	seen, err := s.HasSimilarQuestion(ctx, "s-1", "What is gravity?  ")
	require.NoError(t, err)
	assert.True(t, seen, "case and surrounding text do not defeat the check")

	seen, err = s.HasSimilarQuestion(ctx, "s-1", "what is entropy")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPreviousIntentFrom(t *testing.T) {
	turns := []Turn{
		{Intent: "schedule_appointment"},
		{Intent: "unknown"},
		{Intent: ""},
	}
	assert.Equal(t, "schedule_appointment", previousIntentFrom(turns, 5))

	// Outside the lookback window nothing is found.
	assert.Equal(t, "", previousIntentFrom(turns, 2))

	assert.Equal(t, "", previousIntentFrom(nil, 5))

	// A non-positive window falls back to the default of five.
	turns = []Turn{{Intent: "cancel_appointment"}, {Intent: "unknown"}}
	assert.Equal(t, "cancel_appointment", previousIntentFrom(turns, 0))
}

func TestInMemoryPreviousIntent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{Intent: "check_availability"}))
	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{Intent: "unknown"}))

	got, err := s.PreviousIntent(ctx, "s-1", 5)
	require.NoError(t, err)
	assert.Equal(t, "check_availability", got)
}
