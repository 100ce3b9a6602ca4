// Package botapi reads channel metadata through the official Telegram Bot
// API. Failures come back as *apperr.Error values with the kind already
// mapped from the API error code.
package botapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/tokenstore"
)

// Chat is the subset of getChat the resolver needs.
type Chat struct {
	ID          int64
	Type        string
	Title       string
	FirstName   string
	Username    string
	Description string
	InviteLink  string
	PhotoSmall  string
	PhotoBig    string
	// MemberCount is nil when getChatMembersCount failed.
	MemberCount *int
}

// Bot identifies the bot behind a credential.
type Bot struct {
	ID        int64
	Username  string
	FirstName string
}

// Options configures the client.
type Options struct {
	// Endpoint is a format string taking the token and the method name.
	Endpoint string
	Proxy    string
	Timeout  time.Duration
}

// Client caches one authenticated API handle per credential.
type Client struct {
	endpoint string
	http     *http.Client
	log      *logger.Logger

	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI
}

// New creates a client.
func New(opts Options, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing bot api proxy: %w", err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		log.Info("Bot API proxy enabled", zap.String("proxy", proxyURL.Redacted()))
	}

	return &Client{
		endpoint: opts.Endpoint,
		http:     httpClient,
		log:      log.Named("botapi"),
		bots:     make(map[string]*tgbotapi.BotAPI),
	}, nil
}

// bot returns the handle for token. Creating a handle calls getMe, so an
// invalid credential fails here.
func (c *Client) bot(ctx context.Context, token string) (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	b, ok := c.bots[token]
	c.mu.Unlock()
	if ok {
		return b, nil
	}

	b, err := call(ctx, func() (*tgbotapi.BotAPI, error) {
		return tgbotapi.NewBotAPIWithClient(token, c.endpoint, c.http)
	})
	if err != nil {
		return nil, mapError(err, "getMe")
	}

	c.mu.Lock()
	c.bots[token] = b
	c.mu.Unlock()
	return b, nil
}

// Reset drops every cached handle.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.bots)
}

// TrackCredential drops cached handles whenever the stored bot credential
// is replaced or cleared.
func (c *Client) TrackCredential(tokens *tokenstore.Store) {
	tokens.OnChange(func(ch tokenstore.Change) {
		if ch.Key != tokenstore.BotTokenKey {
			return
		}
		c.Reset()
		c.log.Debug("Bot credential changed, dropped cached handles", zap.Bool("present", ch.Present))
	})
}

// Me returns the bot identity.
func (c *Client) Me(ctx context.Context, token string) (*Bot, error) {
	b, err := c.bot(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Bot{ID: b.Self.ID, Username: b.Self.UserName, FirstName: b.Self.FirstName}, nil
}

// Chat calls getChat and then getChatMembersCount for channelID.
func (c *Client) Chat(ctx context.Context, token, channelID string) (*Chat, error) {
	b, err := c.bot(ctx, token)
	if err != nil {
		return nil, err
	}

	ref := ChatConfig(channelID)
	chat, err := call(ctx, func() (tgbotapi.Chat, error) {
		return b.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: ref})
	})
	if err != nil {
		c.log.Debug("getChat failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil, mapError(err, "getChat")
	}

	out := &Chat{
		ID:          chat.ID,
		Type:        chat.Type,
		Title:       chat.Title,
		FirstName:   chat.FirstName,
		Username:    chat.UserName,
		Description: chat.Description,
		InviteLink:  chat.InviteLink,
	}
	if chat.Photo != nil {
		out.PhotoSmall = chat.Photo.SmallFileID
		out.PhotoBig = chat.Photo.BigFileID
	}

	count, err := call(ctx, func() (int, error) {
		return b.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{ChatConfig: ref})
	})
	if err != nil {
		c.log.Debug("getChatMembersCount failed", zap.String("channel_id", channelID), zap.Error(err))
	} else {
		out.MemberCount = &count
	}
	return out, nil
}

// ChatConfig addresses a chat by numeric id or by @username.
func ChatConfig(channelID string) tgbotapi.ChatConfig {
	id := strings.TrimSpace(channelID)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return tgbotapi.ChatConfig{ChatID: n}
	}
	if !strings.HasPrefix(id, "@") {
		id = "@" + id
	}
	return tgbotapi.ChatConfig{SuperGroupUsername: id}
}

// call runs fn, which cannot be cancelled, and stops waiting when ctx ends.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func mapError(err error, method string) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apperr.Wrap(apperr.FromStatus(apiErr.Code), err, method+": "+apiErr.Message)
	}
	// Anything that is not an API reply never reached Telegram.
	return apperr.Wrap(apperr.KindNetwork, err, method)
}
