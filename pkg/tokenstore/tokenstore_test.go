package tokenstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/state"
)

type failingKV struct{ state.KV }

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}
func (failingKV) Set(context.Context, string, string) error { return errors.New("disk on fire") }
func (failingKV) Delete(context.Context, string) error      { return errors.New("disk on fire") }

func TestSessionTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(state.NewMemoryStore(), nil)

	_, ok := s.GetToken(ctx)
	assert.False(t, ok)

	require.True(t, s.SaveToken(ctx, "tok-1"))
	tok, ok := s.GetToken(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	require.True(t, s.SaveToken(ctx, "tok-2"))
	tok, _ = s.GetToken(ctx)
	assert.Equal(t, "tok-2", tok, "last write wins")

	assert.True(t, s.ClearToken(ctx))
	assert.True(t, s.ClearToken(ctx), "clearing twice is fine")
	_, ok = s.GetToken(ctx)
	assert.False(t, ok)
}

func TestSaveTokenRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(state.NewMemoryStore(), nil)
	assert.False(t, s.SaveToken(ctx, ""))
	assert.False(t, s.SetBotToken(ctx, "   "))
}

func TestBotTokenIndependentOfSession(t *testing.T) {
	ctx := context.Background()
	s := New(state.NewMemoryStore(), nil)

	assert.False(t, s.IsBotTokenConfigured(ctx))
	require.True(t, s.SetBotToken(ctx, " 123:abc "))
	assert.True(t, s.IsBotTokenConfigured(ctx))

	bot, _ := s.BotToken(ctx)
	assert.Equal(t, "123:abc", bot)

	_, ok := s.GetToken(ctx)
	assert.False(t, ok)

	require.True(t, s.ClearBotToken(ctx))
	assert.False(t, s.IsBotTokenConfigured(ctx))
}

func TestBackendFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	s := New(failingKV{}, nil)

	_, ok := s.GetToken(ctx)
	assert.False(t, ok)
	assert.False(t, s.SaveToken(ctx, "tok"))
	assert.False(t, s.ClearToken(ctx))
	assert.False(t, s.IsBotTokenConfigured(ctx))
}

func TestObserversSeeChanges(t *testing.T) {
	ctx := context.Background()
	s := New(state.NewMemoryStore(), nil)

	var seen []Change
	s.OnChange(func(c Change) { seen = append(seen, c) })

	s.SaveToken(ctx, "tok")
	s.ClearToken(ctx)
	s.SaveToken(ctx, "")

	assert.Equal(t, []Change{
		{Key: SessionTokenKey, Present: true},
		{Key: SessionTokenKey, Present: false},
	}, seen)
}
