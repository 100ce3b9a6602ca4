package gateway

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tgbridge/pkg/bridge"
	"tgbridge/pkg/config"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/monitor"
	"tgbridge/pkg/resolver"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/workflow"
)

// Module provides the gateway server for fx dependency injection.
var Module = fx.Module("gateway",
	fx.Provide(ProvideServer),
	fx.Invoke(registerLifecycle),
)

// ProvideServer collects the exposed components.
func ProvideServer(
	cfg *config.Config,
	log *logger.Logger,
	b *bridge.Bridge,
	flows *workflow.Manager,
	engine *resolver.Engine,
	tokens *tokenstore.Store,
	tr *transport.Transport,
	bus events.Bus,
	mon *monitor.Monitor,
) *Server {
	return NewServer(cfg, log, Deps{
		Bridge:    b,
		Workflows: flows,
		Resolver:  engine,
		Tokens:    tokens,
		Transport: tr,
		Events:    bus,
		Monitor:   mon,
	})
}

func registerLifecycle(lc fx.Lifecycle, s *Server, cfg *config.Config, log *logger.Logger) {
	if !cfg.Gateway.Enabled || cfg.Gateway.Port == 0 {
		log.Info("Gateway server disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting gateway",
				zap.String("host", cfg.Gateway.Host),
				zap.Int("port", cfg.Gateway.Port),
			)
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Stop(shutdownCtx)
		},
	})
}
