package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tgbridge/pkg/logger"
)

// AMQPBus publishes events to a RabbitMQ topic exchange with the event
// type as routing key. Local subscribers are served in process.
type AMQPBus struct {
	*LocalBus

	log      *logger.Logger
	conn     *amqp.Connection
	exchange string
}

// AMQPBusConfig configures the RabbitMQ bus.
type AMQPBusConfig struct {
	URL      string
	Exchange string
}

// NewAMQPBus dials RabbitMQ and declares a durable topic exchange.
func NewAMQPBus(log *logger.Logger, cfg *AMQPBusConfig) (*AMQPBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err)
	}

	log.Info("RabbitMQ event bus initialized", zap.String("exchange", cfg.Exchange))
	return &AMQPBus{
		LocalBus: NewLocalBus(log, 100),
		log:      log,
		conn:     conn,
		exchange: cfg.Exchange,
	}, nil
}

// Publish sends ev to the exchange and to local subscribers.
func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		b.incrementErrors()
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, b.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Body:         body,
	})
	if err != nil {
		b.incrementErrors()
		return fmt.Errorf("publishing to RabbitMQ: %w", err)
	}
	b.log.Debug("Published event", zap.String("type", string(ev.Type)), zap.String("exchange", b.exchange))

	return b.LocalBus.Publish(ctx, ev)
}

// Stop stops local delivery and closes the connection.
func (b *AMQPBus) Stop() error {
	_ = b.LocalBus.Stop()
	done := make(chan error, 1)
	go func() { done <- b.conn.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout closing RabbitMQ connection")
	}
}
