package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/botapi"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/state"
	"tgbridge/pkg/tokenstore"
)

type fakeChats struct {
	chat  *botapi.Chat
	err   error
	bot   *botapi.Bot
	calls int
}

func (f *fakeChats) Chat(_ context.Context, _, _ string) (*botapi.Chat, error) {
	f.calls++
	return f.chat, f.err
}

func (f *fakeChats) Me(context.Context, string) (*botapi.Bot, error) {
	f.calls++
	if f.bot == nil {
		return nil, apperr.New(apperr.KindUnauthorized, "no bot")
	}
	return f.bot, nil
}

func newEngine(t *testing.T, chats *fakeChats, botToken, session string) *Engine {
	t.Helper()
	tokens := tokenstore.New(state.NewMemoryStore(), logger.NewNop())
	ctx := context.Background()
	if botToken != "" {
		require.True(t, tokens.SetBotToken(ctx, botToken))
	}
	if session != "" {
		require.True(t, tokens.SaveToken(ctx, session))
	}
	return New(tokens, chats, &fakePage{}, Ladder{}, logger.NewNop())
}

func TestResolveWithoutCredentialIsMock(t *testing.T) {
	chats := &fakeChats{}
	e := newEngine(t, chats, "", "")

	res := e.ResolveChannel(context.Background(), "-1002581211950")
	require.True(t, res.Success)
	assert.Equal(t, "-1002581211950", res.ChannelInfo.ID)
	assert.Equal(t, "test", res.ChannelInfo.Title)
	assert.Equal(t, "test_channel", res.ChannelInfo.Username)
	assert.True(t, res.ChannelInfo.IsChannel)
	require.NotNil(t, res.ChannelInfo.MemberCount)
	assert.Zero(t, chats.calls, "no network without credential")

	again := e.ResolveChannel(context.Background(), "-1002581211950")
	assert.Equal(t, *res.ChannelInfo.MemberCount, *again.ChannelInfo.MemberCount)
	assert.NotSame(t, res.ChannelInfo, again.ChannelInfo)
}

func TestMockForOtherChannels(t *testing.T) {
	e := newEngine(t, &fakeChats{}, "", "")

	res := e.ResolveChannel(context.Background(), "-10042")
	require.True(t, res.Success)
	assert.Equal(t, "Channel -10042", res.ChannelInfo.Title)
	assert.Equal(t, "channel_-10042", res.ChannelInfo.Username)

	count := *res.ChannelInfo.MemberCount
	assert.GreaterOrEqual(t, count, 100)
	assert.Less(t, count, 10100)
}

func TestResolveWithCredential(t *testing.T) {
	members := 55
	chats := &fakeChats{chat: &botapi.Chat{
		ID: -100123, Type: "channel", Title: "News", Username: "news",
		MemberCount: &members, PhotoSmall: "s",
	}}
	e := newEngine(t, chats, "123:abc", "")

	res := e.ResolveChannel(context.Background(), "-100123")
	require.True(t, res.Success)
	assert.Equal(t, &ChannelInfo{
		ID: "-100123", Title: "News", Username: "news", MemberCount: &members,
		IsChannel: true, Photo: &Photo{Small: "s"},
	}, res.ChannelInfo)
	assert.Equal(t, 1, chats.calls)
}

func TestResolveMapsErrors(t *testing.T) {
	chats := &fakeChats{err: apperr.New(apperr.KindChannelPrivate, "forbidden")}
	e := newEngine(t, chats, "t", "")

	res := e.ResolveChannel(context.Background(), "-1")
	assert.False(t, res.Success)
	assert.Equal(t, apperr.KindChannelPrivate, res.ErrorCode)
	assert.Nil(t, res.ChannelInfo)
}

func TestPrivateGroupFromChat(t *testing.T) {
	chats := &fakeChats{chat: &botapi.Chat{ID: -5, Type: "supergroup", FirstName: "Fallback"}}
	e := newEngine(t, chats, "t", "")

	info := e.ResolveChannel(context.Background(), "-5").ChannelInfo
	assert.Equal(t, "Fallback", info.Title)
	assert.True(t, info.IsPrivate)
	assert.True(t, info.IsGroup)
	assert.False(t, info.IsChannel)
}

func TestInitializeRequiresSession(t *testing.T) {
	e := newEngine(t, &fakeChats{}, "", "")
	res := e.InitializeChannel(context.Background(), "-1")
	assert.False(t, res.Success)
	assert.Equal(t, apperr.KindUnauthorized, res.ErrorCode)

	e = newEngine(t, &fakeChats{}, "", "session")
	assert.True(t, e.InitializeChannel(context.Background(), "-1").Success)
}

func TestFullInfoCollapsesAPIErrors(t *testing.T) {
	e := newEngine(t, &fakeChats{err: apperr.New(apperr.KindChannelNotFound, "x")}, "t", "session")
	assert.Equal(t, apperr.KindUnknown, e.FullInfo(context.Background(), "-1").ErrorCode)

	e = newEngine(t, &fakeChats{err: apperr.New(apperr.KindNetwork, "x")}, "t", "session")
	assert.Equal(t, apperr.KindNetwork, e.FullInfo(context.Background(), "-1").ErrorCode)
}

func TestPreviewMock(t *testing.T) {
	e := newEngine(t, &fakeChats{}, "", "")

	res := e.Preview(context.Background(), "-7")
	require.True(t, res.Success)
	assert.Equal(t, "preview_channel", res.ChannelInfo.Username)
	assert.Equal(t, 1000, *res.ChannelInfo.MemberCount)
	assert.Equal(t, "Channel preview", res.ChannelInfo.Title)
}

func TestBotInfo(t *testing.T) {
	_, ok := newEngine(t, &fakeChats{}, "", "").BotInfo(context.Background())
	assert.False(t, ok)

	e := newEngine(t, &fakeChats{bot: &botapi.Bot{Username: "b", FirstName: "B"}}, "t", "")
	info, ok := e.BotInfo(context.Background())
	require.True(t, ok)
	assert.Equal(t, &BotInfo{Username: "b", Name: "B"}, info)
}

func TestCheckPermission(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Permission{NeedsSession: true}, newEngine(t, &fakeChats{}, "", "").CheckPermission(ctx, "-1"))
	assert.Equal(t, Permission{HasAccess: true},
		newEngine(t, &fakeChats{chat: &botapi.Chat{}}, "t", "").CheckPermission(ctx, "-1"))

	p := newEngine(t, &fakeChats{err: apperr.New(apperr.KindChannelPrivate, "x")}, "t", "").CheckPermission(ctx, "-1")
	assert.True(t, p.NeedsSession)
	assert.NotEmpty(t, p.Error)

	p = newEngine(t, &fakeChats{err: apperr.New(apperr.KindChannelNotFound, "x")}, "t", "").CheckPermission(ctx, "-1")
	assert.False(t, p.NeedsSession)
	assert.False(t, p.HasAccess)
}
