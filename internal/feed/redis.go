package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis fans signals out over Redis pub/sub so several server processes share one feed.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) channel(userID string) string {
	return r.prefix + userID
}

func (r *Redis) Publish(ctx context.Context, userID string) error {
	const op = "feed.redis.Publish"

	if err := r.client.Publish(ctx, r.channel(userID), "changed").Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, userID string) (<-chan struct{}, func(), error) {
	const op = "feed.redis.Subscribe"

	pubsub := r.client.Subscribe(ctx, r.channel(userID))

	// Wait for the confirmation so no publish is missed after we return.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	ch := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		defer close(ch)
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				notify(ch)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	return ch, unsubscribe, nil
}
