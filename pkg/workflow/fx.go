package workflow

import (
	"time"

	"go.uber.org/fx"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/config"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/resolver"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
)

// Module provides the workflow manager.
var Module = fx.Module("workflow",
	fx.Provide(ProvideManager),
)

// ProvideManager builds a manager from the workflow config section.
func ProvideManager(cfg *config.Config, engine *resolver.Engine, tokens *tokenstore.Store, tr *transport.Transport, pub events.Publisher, log *logger.Logger) *Manager {
	opts := DefaultOptions()
	opts.Retry = apperr.RetryPolicy{
		MaxRetries: cfg.Workflow.MaxRetries,
		BaseDelay:  time.Duration(cfg.Workflow.BaseDelayMS) * time.Millisecond,
	}
	opts.JoinSettle = time.Duration(cfg.Workflow.JoinSettleMS) * time.Millisecond
	opts.Lang = apperr.Lang(cfg.WebClient.Locale)
	return New(engine, tokens, tr, pub, log, opts)
}
