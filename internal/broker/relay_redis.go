package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRelay fans events out over Redis pub/sub channels named
// <prefix>:challenge:<sessionID>.
type RedisRelay struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRelay(rdb *redis.Client, prefix string) *RedisRelay {
	return &RedisRelay{rdb: rdb, prefix: prefix}
}

// DialRedis parses a redis:// URL and returns a relay over a new client.
func DialRedis(url, prefix string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisRelay(redis.NewClient(opts), prefix), nil
}

func (r *RedisRelay) Publish(ctx context.Context, sessionID string, data []byte) error {
	return r.rdb.Publish(ctx, topic(r.prefix, ":", sessionID), data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(sessionID string, data []byte)) error {
	ps := r.rdb.PSubscribe(ctx, topic(r.prefix, ":", "*"))
	defer ps.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if id, ok := sessionFromTopic(r.prefix, ":", msg.Channel); ok {
				deliver(id, []byte(msg.Payload))
			}
		}
	}
}

func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRelay) Close() error {
	return r.rdb.Close()
}
