package messaging

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisPubSub adapts a go-redis client to PubSubClient.
type GoRedisPubSub struct {
	client redis.UniversalClient
}

// NewGoRedisPubSub wraps client.
func NewGoRedisPubSub(client redis.UniversalClient) *GoRedisPubSub {
	return &GoRedisPubSub{client: client}
}

// Publish implements PubSubClient.
func (p *GoRedisPubSub) Publish(ctx context.Context, channel, payload string) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscribe implements PubSubClient. The subscription is confirmed before
// returning so a bad connection fails at startup.
func (p *GoRedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan PubSubMessage, error) {
	sub := p.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan PubSubMessage)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- PubSubMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
