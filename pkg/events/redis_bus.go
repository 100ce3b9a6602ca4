package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tgbridge/pkg/logger"
)

// RedisBus publishes events on Redis pub/sub channels named
// <prefix><type> and delivers everything under the prefix to local
// subscribers, so several bridge processes share one stream.
type RedisBus struct {
	*subscribers

	log    *logger.Logger
	client *redis.Client
	prefix string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pubsub *redis.PubSub
}

// RedisBusConfig configures the Redis bus.
type RedisBusConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisBus connects to Redis.
func NewRedisBus(log *logger.Logger, cfg *RedisBusConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return NewRedisBusWithClient(log, client, cfg.Prefix), nil
}

// NewRedisBusWithClient wraps an existing client.
func NewRedisBusWithClient(log *logger.Logger, client *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "tgbridge:events:"
	}
	ctx, cancel := context.WithCancel(context.Background())
	log.Info("Redis event bus initialized", zap.String("prefix", prefix))
	return &RedisBus{
		subscribers: newSubscribers(log),
		log:         log,
		client:      client,
		prefix:      prefix,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to the event channels.
func (b *RedisBus) Start() error {
	b.log.Info("Starting Redis event bus")
	b.pubsub = b.client.PSubscribe(b.ctx, b.prefix+"*")
	b.wg.Add(1)
	go b.process()
	return nil
}

// Stop unsubscribes and closes the client.
func (b *RedisBus) Stop() error {
	b.log.Info("Stopping Redis event bus")
	b.cancel()
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	b.wg.Wait()
	return b.client.Close()
}

// Publish sends ev to Redis. Local delivery happens when it comes back
// through the subscription.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+string(ev.Type), data).Err(); err != nil {
		b.incrementErrors()
		return fmt.Errorf("publishing to Redis: %w", err)
	}
	b.incrementPublished()
	return nil
}

func (b *RedisBus) process() {
	defer b.wg.Done()
	ch := b.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.incrementErrors()
				b.log.Error("Failed to unmarshal event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			b.deliver(b.ctx, ev)
		case <-b.ctx.Done():
			return
		}
	}
}
