package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	messageLogKeyPrefix = "chat_messages:"
	defaultLogTTL       = 24 * time.Hour
)

// RedisLog stores message history as a capped Redis list per conversation.
type RedisLog struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

func NewRedisLog(redisClient *redis.Client, ttl time.Duration) *RedisLog {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLogTTL
	}
	return &RedisLog{
		redis:       redisClient,
		tracer:      otel.Tracer("hrconsult.internal.conversation.log"),
		ttl:         ttl,
		maxMessages: 250,
	}
}

func (l *RedisLog) Append(ctx context.Context, conversationID, role, content string, tokens int, metadata map[string]string) (Message, error) {
	if conversationID == "" {
		return Message{}, ErrMissingConversationID
	}
	if !validRole(role) {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		Metadata:       copyMetadata(metadata),
		Timestamp:      time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("conversation: marshal message: %w", err)
	}

	ctx, span := l.tracer.Start(ctx, "conversation.log.append")
	defer span.End()

	key := messageLogKey(conversationID)
	pipe := l.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, l.ttl)
	if l.maxMessages > 0 {
		pipe.LTrim(ctx, key, -l.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return Message{}, fmt.Errorf("conversation: append message: %w", err)
	}
	return msg, nil
}

func (l *RedisLog) List(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}

	ctx, span := l.tracer.Start(ctx, "conversation.log.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := l.redis.LRange(ctx, messageLogKey(conversationID), start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func messageLogKey(conversationID string) string {
	return messageLogKeyPrefix + conversationID
}
