// Package bridge wires inbound messages from the embedded web client to the
// login, token and workflow components, and exposes the host actions the
// surrounding UI triggers.
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/login"
	"tgbridge/pkg/protocol"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/workflow"
)

// ErrNoChannel is returned by actions called without a channel id.
var ErrNoChannel = errors.New("channel id is required")

// Authenticator exchanges an identity for a session token.
type Authenticator interface {
	LoginWithIdentity(ctx context.Context, id login.Identity) login.Result
}

// Bridge routes embedded-client messages.
type Bridge struct {
	tr     *transport.Transport
	tokens *tokenstore.Store
	auth   Authenticator
	flows  *workflow.Manager
	events events.Publisher
	log    *logger.Logger
	lang   language.Tag

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge. Call Register to install its handlers.
func New(tr *transport.Transport, tokens *tokenstore.Store, auth Authenticator, flows *workflow.Manager, pub events.Publisher, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		tr:     tr,
		tokens: tokens,
		auth:   auth,
		flows:  flows,
		events: pub,
		log:    log.Named("bridge"),
		lang:   language.English,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetLanguage selects the language of alert texts.
func (b *Bridge) SetLanguage(tag language.Tag) {
	b.lang = tag
}

// Register installs the inbound handlers on the transport.
func (b *Bridge) Register() {
	b.tr.Handle(protocol.KindLog, b.handleLog)
	b.tr.Handle(protocol.KindSendTgAuthData, b.handleAuthData)
	b.tr.Handle(protocol.KindCheckTgToken, b.handleCheckToken)
	b.tr.Handle(protocol.KindProvideUserInfo, b.handleUserInfo)
	b.tr.Handle(protocol.KindRequestUserInfo, b.handleRequestUserInfo)
	b.tr.Handle(protocol.KindLogout, b.handleLogout)
	b.tr.Handle(protocol.KindInitializeChannel, b.handleInitialize)
	b.tr.Handle(protocol.KindPreviewChannelRequest, b.handlePreview)
	b.tr.Handle(protocol.KindJoinChannelRequest, b.handleJoin)
	b.tr.Handle(protocol.KindJoinChannelResult, b.handleJoinResult)
	b.tr.Handle(protocol.KindJoinStatusResult, b.handleJoinStatus)
	b.tr.Handle(protocol.KindChannelSessionReady, b.handleSessionReady)
	b.tr.Handle(protocol.KindChannelInitFailed, b.handleInitFailed)

	b.tr.OnReady(func(ctx context.Context) { b.PushToken(ctx) })
	b.tr.OnAppTabsChange(func(show bool) {
		b.publish(events.New(events.TypeAppTabs, "", map[string]any{"show": show}))
	})
}

// Stop cancels background work and waits for it.
func (b *Bridge) Stop() {
	b.cancel()
	b.wg.Wait()
}

// Wait blocks until background work started so far has finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// async runs fn off the dispatch loop.
func (b *Bridge) async(name string, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("Background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn(b.ctx)
	}()
}

// OpenSettings asks the web client to show its settings screen.
func (b *Bridge) OpenSettings(ctx context.Context) error {
	return b.tr.Send(ctx, protocol.OpenSettings())
}

// NavigateToChannel asks the web client to open channelID.
func (b *Bridge) NavigateToChannel(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ErrNoChannel
	}
	return b.tr.Send(ctx, protocol.ToChannel(channelID))
}

// PushToken sends the stored session token to the web client. It reports
// whether a token existed.
func (b *Bridge) PushToken(ctx context.Context) bool {
	token, ok := b.tokens.GetToken(ctx)
	if !ok {
		return false
	}
	if err := b.tr.Send(ctx, protocol.UploadToken(token)); err != nil {
		b.log.Warn("Pushing session token failed", zap.Error(err))
		return false
	}
	return true
}

// Login exchanges id for a session token and hands the token to the web
// client.
func (b *Bridge) Login(ctx context.Context, id login.Identity) login.Result {
	res := b.auth.LoginWithIdentity(ctx, id)
	if !res.Success {
		b.log.Warn("Login failed", zap.String("error", res.Error))
		return res
	}
	if err := b.tr.Send(ctx, protocol.UploadToken(res.Token)); err != nil {
		b.log.Warn("Uploading session token failed", zap.Error(err))
	}
	b.publish(events.New(events.TypeAuth, "", map[string]any{"loggedIn": true}))
	return res
}

// Logout clears the session token.
func (b *Bridge) Logout(ctx context.Context) bool {
	if !b.tokens.ClearToken(ctx) {
		return false
	}
	b.publish(events.New(events.TypeAuth, "", map[string]any{"loggedIn": false}))
	return true
}

// Initialize runs channel initialization and reports the outcome to the web
// client.
func (b *Bridge) Initialize(ctx context.Context, channelID string) workflow.State {
	return b.flows.Initialize(ctx, channelID, workflow.Callbacks{
		OnSuccess: func(st workflow.State) {
			b.send(ctx, protocol.Outbound{
				Type: protocol.KindChannelSessionReady,
				Data: protocol.SessionReady{ChannelID: st.ChannelID, ChannelInfo: st.ChannelInfo},
			})
		},
		OnError: func(st workflow.State) {
			b.send(ctx, protocol.Outbound{
				Type: protocol.KindChannelInitFailed,
				Data: protocol.InitFailed{
					ChannelID:  st.ChannelID,
					Error:      st.Error,
					ErrorCode:  string(st.ErrorCode),
					RetryCount: st.RetryCount,
				},
			})
		},
		OnAlert: b.alert,
	})
}

// Join runs the join workflow for channelID.
func (b *Bridge) Join(ctx context.Context, channelID string) workflow.State {
	return b.flows.Join(ctx, channelID, workflow.Callbacks{OnAlert: b.alert})
}

// Preview runs the preview workflow for channelID.
func (b *Bridge) Preview(ctx context.Context, channelID string) workflow.State {
	return b.flows.Preview(ctx, channelID, workflow.Callbacks{})
}

func (b *Bridge) alert(msg string) {
	b.log.Warn("Alert", zap.String("message", msg))
	b.publish(events.New(events.TypeAlert, "", map[string]any{"message": msg}))
}

func (b *Bridge) send(ctx context.Context, out protocol.Outbound) {
	if err := b.tr.Send(ctx, out); err != nil {
		b.log.Warn("Sending to web client failed", zap.String("type", string(out.Type)), zap.Error(err))
	}
}

func (b *Bridge) publish(ev events.Event) {
	if err := b.events.Publish(b.ctx, ev); err != nil {
		b.log.Debug("Publishing event failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (b *Bridge) reloginText() string {
	return apperr.Text(apperr.MsgReloginRequired, b.lang)
}
