package bridge

import (
	"context"

	"go.uber.org/fx"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/config"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/login"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/workflow"
)

// Module provides the bridge and installs its handlers.
var Module = fx.Module("bridge",
	fx.Provide(func(cfg *config.Config, tr *transport.Transport, tokens *tokenstore.Store, auth *login.Client, flows *workflow.Manager, pub events.Publisher, log *logger.Logger) *Bridge {
		b := New(tr, tokens, auth, flows, pub, log)
		b.SetLanguage(apperr.Lang(cfg.WebClient.Locale))
		return b
	}),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, b *Bridge) {
	b.Register()
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			b.Stop()
			return nil
		},
	})
}
