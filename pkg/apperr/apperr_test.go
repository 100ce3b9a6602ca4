package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestIsRecoverable(t *testing.T) {
	recoverable := map[Kind]bool{
		KindNetwork: true,
		KindUnknown: true,
	}
	for _, k := range Kinds {
		assert.Equal(t, recoverable[k], IsRecoverable(k), k)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Kind(""), Classify(nil))
	assert.Equal(t, KindChannelPrivate, Classify(New(KindChannelPrivate, "no")))
	assert.Equal(t, KindUnauthorized, Classify(fmt.Errorf("outer: %w", New(KindUnauthorized, ""))))
	assert.Equal(t, KindNetwork, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindNetwork, Classify(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, KindUnknown, Classify(errors.New("boom")))
}

func TestFromStatus(t *testing.T) {
	cases := map[int]Kind{
		400: KindChannelNotFound,
		401: KindUnauthorized,
		403: KindChannelPrivate,
		404: KindChannelNotFound,
		429: KindUnknown,
		500: KindUnknown,
	}
	for code, want := range cases {
		assert.Equal(t, want, FromStatus(code), code)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 2*time.Second, p.Delay(0))
	assert.Equal(t, 4*time.Second, p.Delay(1))
	assert.Equal(t, 6*time.Second, p.Delay(2))

	assert.True(t, p.ShouldRetry(KindNetwork, 0))
	assert.True(t, p.ShouldRetry(KindUnknown, 2))
	assert.False(t, p.ShouldRetry(KindNetwork, 3))
	assert.False(t, p.ShouldRetry(KindChannelPrivate, 0))
	assert.False(t, p.ShouldRetry(KindChannelNotFound, 0))
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("eof")
	err := Wrap(KindNetwork, cause, "getChat")
	assert.Equal(t, "NETWORK_ERROR: getChat: eof", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "UNKNOWN_ERROR", New(KindUnknown, "").Error())
}

func TestMessages(t *testing.T) {
	zh := Lang("zh-CN,zh;q=0.9")
	en := Lang("en-US")

	assert.Equal(t, "频道不存在", Message(KindChannelNotFound, zh))
	assert.Equal(t, "Channel does not exist", Message(KindChannelNotFound, en))
	assert.Equal(t, "未找到加入按钮或链接", Text(MsgJoinNotFound, zh))
	assert.Equal(t, language.English, Lang(), "no preference falls back to English")
	assert.Equal(t, language.English, Lang("not a tag!!"))

	for _, k := range Kinds {
		assert.NotEmpty(t, Message(k, zh), k)
		assert.NotEmpty(t, Message(k, en), k)
	}
}

func TestMessageCatalogsMatch(t *testing.T) {
	en := messageCatalog[language.English]
	zh := messageCatalog[language.SimplifiedChinese]
	assert.Len(t, zh, len(en))
	for id, text := range en {
		assert.NotEmpty(t, text, id)
		assert.NotEmpty(t, zh[id], id)
	}
}
