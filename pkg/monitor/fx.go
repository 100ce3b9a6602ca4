package monitor

import (
	"context"
	"time"

	"go.uber.org/fx"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/config"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/transport"
)

// Module provides the monitor.
var Module = fx.Module("monitor",
	fx.Provide(NewMonitor),
)

// exploreDelay lets the web client finish booting before exploration.
const exploreDelay = 2 * time.Second

// NewMonitor creates the monitor for fx. When disabled it is returned but
// never scheduled.
func NewMonitor(lc fx.Lifecycle, cfg *config.Config, tr *transport.Transport, pub events.Publisher, log *logger.Logger) (*Monitor, error) {
	m := New(log, tr, pub, apperr.Lang(cfg.WebClient.Locale))
	if !cfg.Monitor.Enabled {
		return m, nil
	}
	if err := m.Schedule(cfg.Monitor.Schedule); err != nil {
		return nil, err
	}

	tr.OnReady(func(context.Context) {
		go func() {
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(exploreDelay):
			}
			ctx, cancel := context.WithTimeout(m.ctx, time.Minute)
			defer cancel()
			_, _ = m.Explore(ctx)
		}()
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return m.Start() },
		OnStop:  func(ctx context.Context) error { return m.Stop() },
	})
	return m, nil
}
