package transport

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/transport/cdpconn"
)

// Module provides the transport and, in cdp mode, keeps a browser page
// attached to it.
var Module = fx.Module("transport",
	fx.Provide(ProvideTransport),
	fx.Invoke(registerBrowserLink),
)

// redialDelay is the pause before reconnecting a lost browser link.
const redialDelay = 5 * time.Second

// ProvideTransport builds the transport from the transport config section.
func ProvideTransport(cfg *config.Config, lc fx.Lifecycle, log *logger.Logger) *Transport {
	t := New(log, Options{
		RoundTripTimeout: cfg.RoundTripTimeout(),
		QueueSize:        cfg.Transport.QueueSize,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return t.Close() },
	})
	return t
}

func registerBrowserLink(lc fx.Lifecycle, cfg *config.Config, t *Transport, log *logger.Logger) {
	if cfg.WebClient.Link != "cdp" {
		log.Info("Waiting for a WebView shell to attach", zap.String("link", cfg.WebClient.Link))
		return
	}

	opts := cdpconn.Options{
		ChromePath: cfg.Browser.ChromePath,
		DebugURL:   cfg.Browser.DebugURL,
		DebugPort:  cfg.Browser.DebugPort,
		Headless:   cfg.Browser.Headless,
		UserData:   cfg.Browser.UserData,
		StartURL:   cfg.WebClient.URL,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				keepBrowserLink(ctx, t, log, opts)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// keepBrowserLink dials the browser and redials whenever the page link drops.
func keepBrowserLink(ctx context.Context, t *Transport, log *logger.Logger, opts cdpconn.Options) {
	for {
		conn, err := cdpconn.Dial(ctx, log, opts)
		if err != nil {
			log.Error("Browser link failed", zap.Error(err))
		} else {
			t.Attach(ctx, conn)
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.Detached():
				log.Warn("Browser link lost, reconnecting")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}
