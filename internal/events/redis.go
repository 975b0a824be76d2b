package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStream appends events to a Redis stream with XADD. The stream is
// trimmed approximately to MaxLen entries.
type RedisStream struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStream(client redis.Cmdable, stream string, maxLen int64) *RedisStream {
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisClient parses a redis:// or rediss:// URL and checks the
// connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *RedisStream) Publish(ctx context.Context, e Event) error {
	return s.client.XAdd(ctx, s.args(e)).Err()
}

func (s *RedisStream) args(e Event) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: []interface{}{
			"event", string(e.Type),
			"ticket_id", e.TicketID,
			"agent_id", e.AgentID,
			"status", string(e.Status),
			"via", e.Via,
			"at", e.At.UTC().Format(time.RFC3339Nano),
		},
	}
}
