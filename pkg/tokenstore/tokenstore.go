// Package tokenstore persists the backend session token and the optional
// Telegram bot credential. Callers never see storage errors: failures are
// logged and reported as absent or unsuccessful.
package tokenstore

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tgbridge/pkg/logger"
	"tgbridge/pkg/state"
)

// Storage keys shared with the embedded web client.
const (
	SessionTokenKey = "tgToken"
	BotTokenKey     = "telegramBotToken"
)

// Store reads and writes credentials through a state.KV.
type Store struct {
	kv  state.KV
	log *logger.Logger

	mu        sync.RWMutex
	observers []func(Change)
}

// Change describes a credential mutation.
type Change struct {
	Key     string
	Present bool
}

// New creates a token store over kv.
func New(kv state.KV, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{kv: kv, log: log.Named("tokenstore")}
}

// OnChange registers an observer called after each successful mutation.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	observers := append([]func(Change){}, s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(c)
	}
}

// GetToken returns the session token, if one is stored.
func (s *Store) GetToken(ctx context.Context) (string, bool) {
	return s.get(ctx, SessionTokenKey)
}

// SaveToken stores the session token. Empty tokens are rejected.
func (s *Store) SaveToken(ctx context.Context, token string) bool {
	return s.set(ctx, SessionTokenKey, token)
}

// ClearToken removes the session token. Clearing an absent token succeeds.
func (s *Store) ClearToken(ctx context.Context) bool {
	return s.clear(ctx, SessionTokenKey)
}

// BotToken returns the bot credential, if one is configured.
func (s *Store) BotToken(ctx context.Context) (string, bool) {
	return s.get(ctx, BotTokenKey)
}

// SetBotToken stores the bot credential. Empty credentials are rejected.
func (s *Store) SetBotToken(ctx context.Context, token string) bool {
	return s.set(ctx, BotTokenKey, strings.TrimSpace(token))
}

// ClearBotToken removes the bot credential.
func (s *Store) ClearBotToken(ctx context.Context) bool {
	return s.clear(ctx, BotTokenKey)
}

// IsBotTokenConfigured reports whether a bot credential is stored.
func (s *Store) IsBotTokenConfigured(ctx context.Context) bool {
	_, ok := s.BotToken(ctx)
	return ok
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("Reading credential failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *Store) set(ctx context.Context, key, value string) bool {
	if value == "" {
		s.log.Warn("Refusing to store empty credential", zap.String("key", key))
		return false
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.log.Error("Storing credential failed", zap.String("key", key), zap.Error(err))
		return false
	}
	s.notify(Change{Key: key, Present: true})
	return true
}

func (s *Store) clear(ctx context.Context, key string) bool {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.Error("Clearing credential failed", zap.String("key", key), zap.Error(err))
		return false
	}
	s.notify(Change{Key: key, Present: false})
	return true
}
