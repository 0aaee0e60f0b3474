package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, nil, time.Hour), mr
}

func TestRedisStoreTurns(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	at := time.Date(2025, time.June, 11, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{User: "hi", AI: "hello", Intent: "unknown", At: at}))
	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{User: "schedule", AI: "who with?", Intent: "schedule_appointment", At: at}))

	turns, err := s.Turns(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].User)
	assert.Equal(t, "schedule_appointment", turns[1].Intent)
	assert.True(t, turns[0].At.Equal(at))

	turns, err = s.Turns(ctx, "unknown-session")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisStoreTurnsTTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, s.RecordTurn(context.Background(), "s-1", Turn{User: "hi"}))

	ttl := mr.TTL("session:s-1:turns")
	assert.Equal(t, time.Hour, ttl)
}

func TestRedisStoreEntities(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "date", "2025-06-12"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "time", ""))

	latest, err := s.LatestEntities(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"person": "John", "date": "2025-06-12"}, latest)
}

// Every accepted value is kept per slot, most recent last, alongside the
// latest-value hash.
func TestRedisStoreEntityHistory(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))
	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "Sarah"))

	history, err := s.EntityHistory(ctx, "s-1", "person")
	require.NoError(t, err)
	assert.Equal(t, []string{"John", "Sarah"}, history)

	latest, err := s.LatestEntities(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Sarah", latest["person"])

	ttl := mr.TTL("session:s-1:entities:person")
	assert.Equal(t, time.Hour, ttl)

	history, err = s.EntityHistory(ctx, "s-1", "date")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedisStoreTopics(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTopic(ctx, "s-1", "appointment"))
	require.NoError(t, s.RecordTopic(ctx, "s-1", "appointment"))
	require.NoError(t, s.RecordTopic(ctx, "s-1", "health"))

	topics, err := s.Topics(ctx, "s-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"appointment", "health"}, topics)
}

func TestRedisStoreQuestions(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordQuestion(ctx, "s-1", "what is gravity"))

	seen, err := s.HasSimilarQuestion(ctx, "s-1", "what is gravity exactly")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.HasSimilarQuestion(ctx, "s-1", "what is entropy")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisStorePreviousIntent(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{Intent: "cancel_appointment"}))
	require.NoError(t, s.RecordTurn(ctx, "s-1", Turn{Intent: "unknown"}))

	got, err := s.PreviousIntent(ctx, "s-1", 5)
	require.NoError(t, err)
	assert.Equal(t, "cancel_appointment", got)
}

// Sessions are isolated from each other.
func TestRedisStoreSessionIsolation(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEntity(ctx, "s-1", "person", "John"))

	latest, err := s.LatestEntities(ctx, "s-2")
	require.NoError(t, err)
	assert.Empty(t, latest)
}
