package events

import (
	"context"

	"go.uber.org/fx"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
)

// Module provides the event bus, also exposed as a Publisher.
var Module = fx.Module("events",
	fx.Provide(
		NewEventBus,
		func(b Bus) Publisher { return b },
	),
)

// NewEventBus creates the configured bus and ties it to the app lifecycle.
func NewEventBus(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) (Bus, error) {
	bus, err := NewBus(log.Named("events"), &Config{
		Backend:       Backend(cfg.Events.Backend),
		BufferSize:    100,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Prefix:        cfg.Events.Prefix,
		AMQPURL:       cfg.Events.AMQPURL,
		AMQPExchange:  cfg.Events.AMQPExchange,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return bus.Start() },
		OnStop:  func(ctx context.Context) error { return bus.Stop() },
	})
	return bus, nil
}
