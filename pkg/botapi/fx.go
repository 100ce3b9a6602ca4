package botapi

import (
	"time"

	"go.uber.org/fx"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/tokenstore"
)

// Module provides the Bot API client.
var Module = fx.Module("botapi",
	fx.Provide(func(cfg *config.Config, log *logger.Logger) (*Client, error) {
		return New(Options{
			Endpoint: cfg.BotAPI.Endpoint,
			Proxy:    cfg.BotAPI.Proxy,
			Timeout:  time.Duration(cfg.BotAPI.TimeoutSeconds) * time.Second,
		}, log)
	}),
	fx.Invoke(func(c *Client, tokens *tokenstore.Store) {
		c.TrackCredential(tokens)
	}),
)
