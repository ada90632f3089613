// README: Redis pub/sub push channel; one channel per identity.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type RedisChannel struct {
	Client *redis.Client
	Prefix string
}

// Topic returns the pub/sub channel name for identity.
func (c *RedisChannel) Topic(identity string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "trip-events"
	}
	return prefix + ":" + identity
}

func (c *RedisChannel) Open(ctx context.Context, identity string) (Stream, error) {
	ps := c.Client.Subscribe(ctx, c.Topic(identity))
	// wait for the subscription confirmation so publishes after Open are not missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.Topic(identity), err)
	}
	return &redisStream{ps: ps}, nil
}

type redisStream struct {
	ps   *redis.PubSub
	once sync.Once
}

func (s *redisStream) Next(ctx context.Context) (Message, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func (s *redisStream) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
