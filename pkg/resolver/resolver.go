// Package resolver turns channel ids into channel metadata and drives the
// join ladder against the embedded web client.
package resolver

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/botapi"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/protocol"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/webscript"
)

// ChannelInfo is the result of a successful resolution. It is built fresh
// for every call.
type ChannelInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Username    string `json:"username,omitempty"`
	Description string `json:"description,omitempty"`
	MemberCount *int   `json:"memberCount,omitempty"`
	IsPrivate   bool   `json:"isPrivate"`
	IsChannel   bool   `json:"isChannel"`
	IsGroup     bool   `json:"isGroup"`
	Photo       *Photo `json:"photo,omitempty"`
}

// Photo holds chat photo file ids.
type Photo struct {
	Small string `json:"small"`
	Big   string `json:"big"`
}

// Result is the outcome of a resolution.
type Result struct {
	Success     bool         `json:"success"`
	ChannelInfo *ChannelInfo `json:"channelInfo,omitempty"`
	Error       string       `json:"error,omitempty"`
	ErrorCode   apperr.Kind  `json:"errorCode,omitempty"`
}

// Permission reports whether the bot can read a channel.
type Permission struct {
	HasAccess    bool   `json:"hasAccess"`
	NeedsSession bool   `json:"needsSession"`
	Error        string `json:"error,omitempty"`
}

// BotInfo identifies the configured bot.
type BotInfo struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ChatSource reads chats through the Bot API.
type ChatSource interface {
	Chat(ctx context.Context, token, channelID string) (*botapi.Chat, error)
	Me(ctx context.Context, token string) (*botapi.Bot, error)
}

// Page is the embedded web client as seen through the transport.
type Page interface {
	Evaluate(ctx context.Context, probe webscript.Probe, out any) error
	Click(ctx context.Context, selector string) (bool, error)
	IsReady() bool
	Request(ctx context.Context, out protocol.Outbound) (protocol.Inbound, error)
}

// Engine resolves channels and runs the join ladder.
type Engine struct {
	tokens *tokenstore.Store
	chats  ChatSource
	page   Page
	ladder Ladder
	lang   language.Tag
	log    *logger.Logger
}

// New creates an engine. A nil ladder uses DefaultLadder.
func New(tokens *tokenstore.Store, chats ChatSource, page Page, ladder Ladder, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if ladder == nil {
		ladder = DefaultLadder(page, LadderOptions{})
	}
	return &Engine{
		tokens: tokens,
		chats:  chats,
		page:   page,
		ladder: ladder,
		lang:   language.English,
		log:    log.Named("resolver"),
	}
}

// SetLanguage selects the language of generated titles and texts.
func (e *Engine) SetLanguage(tag language.Tag) {
	e.lang = tag
}

// ResolveChannel returns channel metadata. Without a bot credential it
// returns deterministic mock data and makes no network call.
func (e *Engine) ResolveChannel(ctx context.Context, channelID string) Result {
	botToken, ok := e.tokens.BotToken(ctx)
	if !ok {
		e.log.Debug("No bot credential, using mock channel info", zap.String("channel_id", channelID))
		return Result{Success: true, ChannelInfo: mockChannel(channelID, e.lang)}
	}

	chat, err := e.chats.Chat(ctx, botToken, channelID)
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, ChannelInfo: e.fromChat(chat)}
}

// InitializeChannel resolves a channel on behalf of a logged-in user.
func (e *Engine) InitializeChannel(ctx context.Context, channelID string) Result {
	if _, ok := e.tokens.GetToken(ctx); !ok {
		e.log.Info("Cannot initialize channel, user not logged in", zap.String("channel_id", channelID))
		return Result{
			Error:     apperr.Text(apperr.MsgUserNotLoggedIn, e.lang),
			ErrorCode: apperr.KindUnauthorized,
		}
	}
	return e.ResolveChannel(ctx, channelID)
}

// FullInfo refreshes channel details for a logged-in user. API rejections
// are all reported as UNKNOWN_ERROR.
func (e *Engine) FullInfo(ctx context.Context, channelID string) Result {
	if _, ok := e.tokens.GetToken(ctx); !ok {
		return Result{
			Error:     apperr.Text(apperr.MsgUserNotLoggedIn, e.lang),
			ErrorCode: apperr.KindUnauthorized,
		}
	}

	res := e.ResolveChannel(ctx, channelID)
	if !res.Success && res.ErrorCode != apperr.KindNetwork {
		res.ErrorCode = apperr.KindUnknown
	}
	return res
}

// Preview returns lightweight channel data for the preview prompt.
func (e *Engine) Preview(ctx context.Context, channelID string) Result {
	botToken, ok := e.tokens.BotToken(ctx)
	if !ok {
		return Result{Success: true, ChannelInfo: mockPreview(channelID, e.lang)}
	}

	chat, err := e.chats.Chat(ctx, botToken, channelID)
	if err != nil {
		e.log.Warn("Preview lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return failure(err)
	}
	return Result{Success: true, ChannelInfo: e.fromChat(chat)}
}

// BotInfo returns the configured bot's identity.
func (e *Engine) BotInfo(ctx context.Context) (*BotInfo, bool) {
	botToken, ok := e.tokens.BotToken(ctx)
	if !ok {
		return nil, false
	}
	bot, err := e.chats.Me(ctx, botToken)
	if err != nil {
		e.log.Warn("getMe failed", zap.Error(err))
		return nil, false
	}
	return &BotInfo{Username: bot.Username, Name: bot.FirstName}, true
}

// CheckPermission reports whether the bot can read channelID and whether a
// user session in the web client is needed instead.
func (e *Engine) CheckPermission(ctx context.Context, channelID string) Permission {
	botToken, ok := e.tokens.BotToken(ctx)
	if !ok {
		return Permission{NeedsSession: true}
	}

	if _, err := e.chats.Chat(ctx, botToken, channelID); err != nil {
		kind := apperr.Classify(err)
		switch kind {
		case apperr.KindChannelNotFound:
			return Permission{Error: apperr.Message(kind, e.lang)}
		case apperr.KindChannelPrivate:
			return Permission{NeedsSession: true, Error: apperr.Message(kind, e.lang)}
		default:
			return Permission{NeedsSession: true, Error: err.Error()}
		}
	}
	return Permission{HasAccess: true}
}

// Join runs the join ladder for channelID.
func (e *Engine) Join(ctx context.Context, channelID string) JoinOutcome {
	return e.ladder.Run(ctx, e.log, channelID, e.lang)
}

func (e *Engine) fromChat(chat *botapi.Chat) *ChannelInfo {
	title := chat.Title
	if title == "" {
		title = chat.FirstName
	}
	if title == "" {
		title = apperr.Text(apperr.MsgUnknownChannel, e.lang)
	}

	info := &ChannelInfo{
		ID:          strconv.FormatInt(chat.ID, 10),
		Title:       title,
		Username:    chat.Username,
		Description: chat.Description,
		MemberCount: chat.MemberCount,
		IsPrivate:   chat.Username == "",
		IsChannel:   chat.Type == "channel",
		IsGroup:     chat.Type == "group" || chat.Type == "supergroup",
	}
	if chat.PhotoSmall != "" || chat.PhotoBig != "" {
		info.Photo = &Photo{Small: chat.PhotoSmall, Big: chat.PhotoBig}
	}
	return info
}

func failure(err error) Result {
	return Result{Error: err.Error(), ErrorCode: apperr.Classify(err)}
}
