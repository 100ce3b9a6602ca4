package botapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/state"
	"tgbridge/pkg/tokenstore"
)

const meReply = `{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Bridge","username":"bridge_bot"}}`

// fakeAPI answers Bot API methods by name; the path is /bot<token>/<method>.
func fakeAPI(t *testing.T, replies map[string]string) (*Client, *int32) {
	t.Helper()
	var getMe int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if method == "getMe" {
			atomic.AddInt32(&getMe, 1)
		}
		body, ok := replies[method]
		if !ok {
			body = `{"ok":false,"error_code":500,"description":"unexpected"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{Endpoint: srv.URL + "/bot%s/%s"}, logger.NewNop())
	require.NoError(t, err)
	return c, &getMe
}

func TestChat(t *testing.T) {
	c, getMe := fakeAPI(t, map[string]string{
		"getMe":               meReply,
		"getChat":             `{"ok":true,"result":{"id":-100123,"type":"channel","title":"News","username":"news","description":"d","photo":{"small_file_id":"s","big_file_id":"b"}}}`,
		"getChatMembersCount": `{"ok":true,"result":321}`,
	})

	chat, err := c.Chat(context.Background(), "123:abc", "-100123")
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), chat.ID)
	assert.Equal(t, "channel", chat.Type)
	assert.Equal(t, "News", chat.Title)
	assert.Equal(t, "news", chat.Username)
	assert.Equal(t, "s", chat.PhotoSmall)
	require.NotNil(t, chat.MemberCount)
	assert.Equal(t, 321, *chat.MemberCount)

	_, err = c.Chat(context.Background(), "123:abc", "-100123")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(getMe), "handle is cached per credential")
}

func TestChatWithoutMemberCount(t *testing.T) {
	c, _ := fakeAPI(t, map[string]string{
		"getMe":   meReply,
		"getChat": `{"ok":true,"result":{"id":-1,"type":"supergroup","title":"G"}}`,
	})

	chat, err := c.Chat(context.Background(), "t", "-1")
	require.NoError(t, err)
	assert.Nil(t, chat.MemberCount)
}

func TestChatErrorMapping(t *testing.T) {
	tests := []struct {
		code int
		want apperr.Kind
	}{
		{400, apperr.KindChannelNotFound},
		{404, apperr.KindChannelNotFound},
		{403, apperr.KindChannelPrivate},
		{401, apperr.KindUnauthorized},
		{429, apperr.KindUnknown},
	}

	for _, tt := range tests {
		c, _ := fakeAPI(t, map[string]string{
			"getMe":   meReply,
			"getChat": `{"ok":false,"error_code":` + strconv.Itoa(tt.code) + `,"description":"nope"}`,
		})
		_, err := c.Chat(context.Background(), "t", "@somewhere")
		require.Error(t, err)
		assert.Equal(t, tt.want, apperr.Classify(err), "code %d", tt.code)
	}
}

func TestInvalidCredential(t *testing.T) {
	c, _ := fakeAPI(t, map[string]string{
		"getMe": `{"ok":false,"error_code":401,"description":"Unauthorized"}`,
	})

	_, err := c.Me(context.Background(), "bad")
	assert.Equal(t, apperr.KindUnauthorized, apperr.Classify(err))
}

func TestUnreachableAPIIsNetworkError(t *testing.T) {
	c, err := New(Options{Endpoint: "http://127.0.0.1:1/bot%s/%s"}, logger.NewNop())
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "t", "-1")
	assert.Equal(t, apperr.KindNetwork, apperr.Classify(err))
}

func TestMe(t *testing.T) {
	c, _ := fakeAPI(t, map[string]string{"getMe": meReply})

	bot, err := c.Me(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "bridge_bot", bot.Username)
	assert.Equal(t, "Bridge", bot.FirstName)
}

func TestChatConfig(t *testing.T) {
	assert.Equal(t, int64(-1002581211950), ChatConfig("-1002581211950").ChatID)
	assert.Equal(t, "@news", ChatConfig("@news").SuperGroupUsername)
	assert.Equal(t, "@news", ChatConfig("news").SuperGroupUsername)
}

func TestInvalidProxy(t *testing.T) {
	_, err := New(Options{Proxy: "://bad"}, logger.NewNop())
	assert.Error(t, err)
}

func TestCredentialChangeDropsCachedHandles(t *testing.T) {
	c, getMe := fakeAPI(t, map[string]string{"getMe": meReply})
	tokens := tokenstore.New(state.NewMemoryStore(), logger.NewNop())
	c.TrackCredential(tokens)
	ctx := context.Background()

	_, err := c.Me(ctx, "123:abc")
	require.NoError(t, err)
	_, err = c.Me(ctx, "123:abc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(getMe))

	require.True(t, tokens.SaveToken(ctx, "session"))
	_, err = c.Me(ctx, "123:abc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(getMe), "session token changes keep the cache")

	require.True(t, tokens.ClearBotToken(ctx))
	_, err = c.Me(ctx, "123:abc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(getMe), "clearing the credential drops the handle")

	require.True(t, tokens.SetBotToken(ctx, "456:def"))
	_, err = c.Me(ctx, "123:abc")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(getMe))
}
