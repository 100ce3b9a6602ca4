package tokenstore

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
)

// Module provides the token store and seeds the bot credential from config.
var Module = fx.Module("tokenstore",
	fx.Provide(New),
	fx.Invoke(registerConfigSeed),
)

// registerConfigSeed copies bot_api.token into the store at startup and
// whenever the config file changes. An empty value never clears a stored one.
func registerConfigSeed(lc fx.Lifecycle, s *Store, cfg *config.Config, watcher *config.Watcher, log *logger.Logger) {
	seed := func(ctx context.Context, c *config.Config) {
		if c.BotAPI.Token == "" {
			return
		}
		if current, ok := s.BotToken(ctx); ok && current == c.BotAPI.Token {
			return
		}
		if s.SetBotToken(ctx, c.BotAPI.Token) {
			log.Info("Bot credential seeded from config", zap.Bool("configured", true))
		}
	}

	watcher.AddHandler(func(c *config.Config) error {
		seed(context.Background(), c)
		return nil
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			seed(ctx, cfg)
			return nil
		},
	})
}
