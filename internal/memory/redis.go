package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSessionTTL bounds how long an idle session's memory survives.
const DefaultSessionTTL = 24 * time.Hour

// RedisStore persists session memory in Redis so sessions survive restarts
// and can be shared across instances. Every key carries the session TTL,
// refreshed on write.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStore wraps the given client. A zero ttl falls back to
// DefaultSessionTTL.
func NewRedisStore(client *redis.Client, tracer trace.Tracer, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("memory: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("assistant.internal.memory")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{redis: client, tracer: tracer, ttl: ttl}
}

func turnsKey(sessionID string) string     { return fmt.Sprintf("session:%s:turns", sessionID) }
func entitiesKey(sessionID string) string  { return fmt.Sprintf("session:%s:entities", sessionID) }
func topicsKey(sessionID string) string    { return fmt.Sprintf("session:%s:topics", sessionID) }
func questionsKey(sessionID string) string { return fmt.Sprintf("session:%s:questions", sessionID) }

func entityHistoryKey(sessionID, slot string) string {
	return fmt.Sprintf("session:%s:entities:%s", sessionID, slot)
}

func (s *RedisStore) RecordTurn(ctx context.Context, sessionID string, turn Turn) error {
	ctx, span := s.tracer.Start(ctx, "memory.record_turn")
	defer span.End()

	data, err := json.Marshal(turn)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to marshal turn: %w", err)
	}
	key := turnsKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to persist turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "memory.load_turns")
	defer span.End()

	raw, err := s.redis.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("memory: failed to load turns: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) RecordEntity(ctx context.Context, sessionID, slot, value string) error {
	if value == "" {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "memory.record_entity")
	defer span.End()

	key := entitiesKey(sessionID)

	// Skip an immediate repeat of the latest value for this slot.
	latest, err := s.redis.HGet(ctx, key, slot).Result()
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to read entity: %w", err)
	}
	if latest == value {
		return nil
	}

	// The hash keeps the latest value per slot; the list keeps the full
	// history of accepted values, most recent last.
	histKey := entityHistoryKey(sessionID, slot)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, slot, value)
	pipe.Expire(ctx, key, s.ttl)
	pipe.RPush(ctx, histKey, value)
	pipe.Expire(ctx, histKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to persist entity: %w", err)
	}
	return nil
}

// EntityHistory returns every value the slot has held this session, in the
// order they were accepted.
func (s *RedisStore) EntityHistory(ctx context.Context, sessionID, slot string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "memory.entity_history")
	defer span.End()

	values, err := s.redis.LRange(ctx, entityHistoryKey(sessionID, slot), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("memory: failed to load entity history: %w", err)
	}
	return values, nil
}

func (s *RedisStore) LatestEntities(ctx context.Context, sessionID string) (map[string]string, error) {
	ctx, span := s.tracer.Start(ctx, "memory.load_entities")
	defer span.End()

	values, err := s.redis.HGetAll(ctx, entitiesKey(sessionID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("memory: failed to load entities: %w", err)
	}
	return values, nil
}

func (s *RedisStore) RecordTopic(ctx context.Context, sessionID, topic string) error {
	if topic == "" {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "memory.record_topic")
	defer span.End()

	key := topicsKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.SAdd(ctx, key, topic)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to persist topic: %w", err)
	}
	return nil
}

func (s *RedisStore) Topics(ctx context.Context, sessionID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "memory.load_topics")
	defer span.End()

	topics, err := s.redis.SMembers(ctx, topicsKey(sessionID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("memory: failed to load topics: %w", err)
	}
	return topics, nil
}

func (s *RedisStore) RecordQuestion(ctx context.Context, sessionID, question string) error {
	if question == "" {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "memory.record_question")
	defer span.End()

	key := questionsKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, question)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to persist question: %w", err)
	}
	return nil
}

func (s *RedisStore) HasSimilarQuestion(ctx context.Context, sessionID, question string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "memory.similar_question")
	defer span.End()

	asked, err := s.redis.LRange(ctx, questionsKey(sessionID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("memory: failed to load questions: %w", err)
	}
	for _, q := range asked {
		if similarQuestion(q, question) {
			return true, nil
		}
	}
	return false, nil
}

func (s *RedisStore) PreviousIntent(ctx context.Context, sessionID string, maxHistory int) (string, error) {
	turns, err := s.Turns(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return previousIntentFrom(turns, maxHistory), nil
}
