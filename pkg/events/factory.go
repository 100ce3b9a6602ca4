package events

import (
	"fmt"

	"tgbridge/pkg/logger"
)

// Backend names an event bus implementation.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendRedis Backend = "redis"
	BackendAMQP  Backend = "amqp"
)

// Config configures the bus.
type Config struct {
	Backend    Backend
	BufferSize int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string

	AMQPURL      string
	AMQPExchange string
}

// NewBus creates a bus for cfg.
func NewBus(log *logger.Logger, cfg *Config) (Bus, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalBus(log, cfg.BufferSize), nil
	case BackendRedis:
		return NewRedisBus(log, &RedisBusConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
	case BackendAMQP:
		return NewAMQPBus(log, &AMQPBusConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
	default:
		return nil, fmt.Errorf("unknown event backend: %s", cfg.Backend)
	}
}
