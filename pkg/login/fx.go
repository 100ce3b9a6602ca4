package login

import (
	"time"

	"go.uber.org/fx"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/tokenstore"
)

// Module provides the login client.
var Module = fx.Module("login",
	fx.Provide(func(cfg *config.Config, tokens *tokenstore.Store, log *logger.Logger) *Client {
		return NewClient(
			cfg.Backend.BaseURL,
			cfg.Backend.LoginPath,
			time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
			tokens,
			log,
		)
	}),
)
