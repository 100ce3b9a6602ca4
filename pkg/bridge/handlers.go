package bridge

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"tgbridge/pkg/events"
	"tgbridge/pkg/login"
	"tgbridge/pkg/protocol"
)

func identityOf(a protocol.AuthData) login.Identity {
	return login.Identity{
		ID:             a.UserID(),
		Phone:          a.Phone,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		ProfilePicture: a.ProfilePicture,
		Nick:           a.Nick,
		Username:       a.Username,
	}
}

func (b *Bridge) handleLog(_ context.Context, msg protocol.Inbound) {
	var args protocol.LogData
	if _, err := msg.Decode(&args); err != nil {
		b.log.Debug("Web client log", zap.ByteString("raw", msg.Data))
		return
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		var s string
		if err := json.Unmarshal(a, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, string(a))
	}
	b.log.Info("Web client log", zap.String("message", strings.Join(parts, " ")))
}

func (b *Bridge) handleAuthData(_ context.Context, msg protocol.Inbound) {
	var auth protocol.AuthData
	ok, err := msg.Decode(&auth)
	if err != nil || !ok {
		b.log.Warn("Invalid auth data", zap.Error(err))
		return
	}
	id := identityOf(auth)
	b.async("login", func(ctx context.Context) { b.Login(ctx, id) })
}

func (b *Bridge) handleCheckToken(ctx context.Context, _ protocol.Inbound) {
	if b.PushToken(ctx) {
		return
	}
	b.send(ctx, protocol.RequestUserInfo())
}

func (b *Bridge) handleUserInfo(_ context.Context, msg protocol.Inbound) {
	var info protocol.UserInfo
	ok, err := msg.Decode(&info)
	if err != nil {
		b.log.Warn("Invalid user info", zap.Error(err))
		return
	}
	if !ok || info.UserID() == "" {
		b.log.Warn("No stored user on the web client", zap.String("hint", b.reloginText()))
		return
	}
	id := identityOf(info)
	b.async("login", func(ctx context.Context) { b.Login(ctx, id) })
}

func (b *Bridge) handleRequestUserInfo(context.Context, protocol.Inbound) {
	b.log.Debug("Web client requested user info")
}

func (b *Bridge) handleLogout(ctx context.Context, _ protocol.Inbound) {
	if b.Logout(ctx) {
		b.log.Info("Session token cleared on logout")
	}
}

func (b *Bridge) handleInitialize(_ context.Context, msg protocol.Inbound) {
	channelID := msg.Channel()
	if channelID == "" {
		b.log.Warn("initializeChannel without channel id")
		return
	}
	b.async("initialize", func(ctx context.Context) { b.Initialize(ctx, channelID) })
}

func (b *Bridge) handlePreview(_ context.Context, msg protocol.Inbound) {
	channelID := msg.Channel()
	if channelID == "" {
		b.log.Warn("Preview request without channel id")
		return
	}
	b.async("preview", func(ctx context.Context) { b.Preview(ctx, channelID) })
}

func (b *Bridge) handleJoin(_ context.Context, msg protocol.Inbound) {
	channelID := msg.Channel()
	if channelID == "" {
		b.log.Warn("Join request without channel id")
		return
	}
	b.async("join", func(ctx context.Context) { b.Join(ctx, channelID) })
}

// handleJoinResult sees results that no round trip was waiting for.
func (b *Bridge) handleJoinResult(_ context.Context, msg protocol.Inbound) {
	var res protocol.JoinResult
	if _, err := msg.Decode(&res); err != nil {
		b.log.Warn("Invalid join result", zap.Error(err))
		return
	}
	b.log.Info("Join result",
		zap.String("channel_id", res.ChannelID.String()),
		zap.Bool("success", res.Success),
		zap.String("method", res.Method),
		zap.String("error", res.Error))
	b.publish(events.New(events.TypeJoinResult, res.ChannelID.String(), map[string]any{
		"success": res.Success,
		"method":  res.Method,
		"error":   res.Error,
	}))
}

func (b *Bridge) handleJoinStatus(_ context.Context, msg protocol.Inbound) {
	var st protocol.JoinStatus
	if _, err := msg.Decode(&st); err != nil {
		b.log.Warn("Invalid join status", zap.Error(err))
		return
	}
	b.log.Debug("Join status",
		zap.String("channel_id", st.ChannelID.String()),
		zap.Bool("joined", st.IsJoined))
}

func (b *Bridge) handleSessionReady(_ context.Context, msg protocol.Inbound) {
	channelID := msg.Channel()
	b.log.Info("Channel session ready", zap.String("channel_id", channelID))
	b.publish(events.New(events.TypeSessionReady, channelID, nil))
}

func (b *Bridge) handleInitFailed(_ context.Context, msg protocol.Inbound) {
	var failed struct {
		Error      string `json:"error"`
		ErrorCode  string `json:"errorCode"`
		RetryCount int    `json:"retryCount"`
	}
	if _, err := msg.Decode(&failed); err != nil {
		b.log.Warn("Invalid init failure", zap.Error(err))
		return
	}
	channelID := msg.Channel()
	b.log.Warn("Channel initialization failed",
		zap.String("channel_id", channelID),
		zap.String("error", failed.Error),
		zap.Int("retry_count", failed.RetryCount))
	b.publish(events.New(events.TypeInitFailed, channelID, map[string]any{
		"error":      failed.Error,
		"errorCode":  failed.ErrorCode,
		"retryCount": failed.RetryCount,
	}))
}
