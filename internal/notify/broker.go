package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Broker is the real-time transport behind the dispatcher: a pub/sub channel
// keyed by recipient. Delivery is best effort; the persisted notification
// row remains the source of truth.
type Broker interface {
	Publish(ctx context.Context, recipientID int64, payload []byte) error
	Subscribe(ctx context.Context, recipientID int64) (<-chan []byte, func(), error)
	Close() error
}

type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(url, password string, db int) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if password != "" {
		opt.Password = password
	}
	opt.DB = db

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBroker{client: client}, nil
}

func channelFor(recipientID int64) string {
	return fmt.Sprintf("notify.user.%d", recipientID)
}

func (b *RedisBroker) Publish(ctx context.Context, recipientID int64, payload []byte) error {
	return b.client.Publish(ctx, channelFor(recipientID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, recipientID int64) (<-chan []byte, func(), error) {
	sub := b.client.Subscribe(ctx, channelFor(recipientID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
