package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "chat_session:"

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type redisSetter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps conversations in Redis so sessions survive API restarts.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStore wires a Redis-backed Store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("hrconsult.internal.session"),
		ttl:    ttl,
	}
}

func (s *RedisStore) Create(ctx context.Context, sessionID string) (*Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()

	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, s.redis, conv); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return conv, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	conv, err := s.load(ctx, s.redis, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return conv, err
}

// Update applies patch under WATCH so concurrent turns do not lose counter increments.
func (s *RedisStore) Update(ctx context.Context, sessionID string, patch Patch) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "session.update")
	defer span.End()

	key := sessionKey(sessionID)
	var updated *Conversation
	txf := func(tx *redis.Tx) error {
		conv, err := s.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		patch.apply(conv, time.Now().UTC())
		data, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("session: marshal conversation: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = conv
		return nil
	}

	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			return nil, fmt.Errorf("session: update conversation: %w", err)
		}
		return nil, err
	}
	return nil, errors.New("session: update conversation: too much contention")
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) save(ctx context.Context, cmd redisSetter, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("session: marshal conversation: %w", err)
	}
	if err := cmd.Set(ctx, sessionKey(conv.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: persist conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, cmd redisGetter, sessionID string) (*Conversation, error) {
	data, err := cmd.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("session: decode conversation: %w", err)
	}
	return &conv, nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
