package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tgbridge/pkg/logger"
)

// subscribers is the in-process fan-out shared by every backend.
type subscribers struct {
	log *logger.Logger

	mu       sync.RWMutex
	next     int
	handlers map[int]Handler

	metricsLock sync.Mutex
	published   uint64
	delivered   uint64
	errors      uint64
}

func newSubscribers(log *logger.Logger) *subscribers {
	return &subscribers{log: log, handlers: make(map[int]Handler)}
}

func (s *subscribers) Subscribe(h Handler) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) deliver(ctx context.Context, ev Event) {
	s.mu.RLock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		s.call(ctx, h, ev)
	}
	s.metricsLock.Lock()
	s.delivered += uint64(len(handlers))
	s.metricsLock.Unlock()
}

func (s *subscribers) call(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.incrementErrors()
			s.log.Error("Event handler panicked",
				zap.String("type", string(ev.Type)),
				zap.Any("panic", r))
		}
	}()
	h(ctx, ev)
}

func (s *subscribers) incrementPublished() {
	s.metricsLock.Lock()
	s.published++
	s.metricsLock.Unlock()
}

func (s *subscribers) incrementErrors() {
	s.metricsLock.Lock()
	s.errors++
	s.metricsLock.Unlock()
}

func (s *subscribers) GetMetrics() map[string]uint64 {
	s.metricsLock.Lock()
	defer s.metricsLock.Unlock()
	return map[string]uint64{
		"published": s.published,
		"delivered": s.delivered,
		"errors":    s.errors,
	}
}
