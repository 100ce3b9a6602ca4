package resolver

import (
	"time"

	"go.uber.org/fx"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/botapi"
	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
)

// Module provides the resolution engine over the shared transport.
var Module = fx.Module("resolver",
	fx.Provide(ProvideEngine),
)

// ProvideEngine wires the engine to the Bot API client and the transport.
func ProvideEngine(cfg *config.Config, tokens *tokenstore.Store, chats *botapi.Client, tr *transport.Transport, log *logger.Logger) *Engine {
	ladder := DefaultLadder(tr, LadderOptions{
		LinkSettle: time.Duration(cfg.Workflow.LinkSettleMS) * time.Millisecond,
	})
	e := New(tokens, chats, tr, ladder, log)
	e.SetLanguage(apperr.Lang(cfg.WebClient.Locale))
	return e
}
