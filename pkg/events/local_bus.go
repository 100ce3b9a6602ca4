package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tgbridge/pkg/logger"
)

// LocalBus delivers events in process through a buffered channel.
type LocalBus struct {
	*subscribers

	log    *logger.Logger
	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocalBus creates a local bus.
func NewLocalBus(log *logger.Logger, bufferSize int) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalBus{
		subscribers: newSubscribers(log),
		log:         log,
		queue:       make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the delivery loop.
func (b *LocalBus) Start() error {
	b.log.Info("Starting event bus")
	b.wg.Add(1)
	go b.process()
	return nil
}

// Stop stops delivery and waits for the loop to exit.
func (b *LocalBus) Stop() error {
	b.log.Info("Stopping event bus")
	b.cancel()
	b.wg.Wait()
	return nil
}

// Publish queues ev for delivery.
func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	if b.ctx.Err() != nil {
		return fmt.Errorf("event bus is shutting down")
	}
	select {
	case b.queue <- ev:
		b.incrementPublished()
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout publishing event")
	}
}

func (b *LocalBus) process() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.log.Debug("Delivering event",
				zap.String("type", string(ev.Type)),
				zap.String("channel_id", ev.ChannelID))
			b.deliver(b.ctx, ev)
		case <-b.ctx.Done():
			return
		}
	}
}
