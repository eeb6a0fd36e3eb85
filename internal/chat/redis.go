package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "chat:"

// RedisBroker relays room broadcasts over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis and checks the connection.
func NewRedisBroker(ctx context.Context, addr, password string) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("chat: connecting to redis at %s: %w", addr, err)
	}
	return &RedisBroker{client: client}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, room string, payload []byte) error {
	if err := b.client.Publish(ctx, channelPrefix+room, payload).Err(); err != nil {
		return fmt.Errorf("chat: publishing to %s: %w", room, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, deliver func(room string, payload []byte)) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("chat: subscribing: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(strings.TrimPrefix(msg.Channel, channelPrefix), []byte(msg.Payload))
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
