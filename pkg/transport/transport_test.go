package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/protocol"
	"tgbridge/pkg/transport/transporttest"
	"tgbridge/pkg/webscript"
)

func newAttached(t *testing.T, opts Options) (*Transport, *transporttest.Pipe) {
	t.Helper()
	tr := New(logger.NewNop(), opts)
	pipe := transporttest.NewPipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tr.Attach(ctx, pipe)
	return tr, pipe
}

func TestDispatchInvokesExactlyOneHandler(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())

	calls := map[protocol.Kind]int{}
	for _, k := range protocol.InboundKinds() {
		kind := k
		tr.Handle(kind, func(context.Context, protocol.Inbound) { calls[kind]++ })
	}

	ctx := context.Background()
	for _, k := range protocol.InboundKinds() {
		raw, _ := json.Marshal(map[string]any{"type": k, "data": true})
		tr.Dispatch(ctx, raw)

		for other, n := range calls {
			if other == k {
				assert.Equal(t, 1, n, k)
			} else {
				assert.Equal(t, 0, n, "dispatching %s touched %s", k, other)
			}
		}
		calls = map[protocol.Kind]int{}
	}
}

func TestDispatchSurvivesGarbage(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())
	called := false
	tr.Handle(protocol.KindLog, func(context.Context, protocol.Inbound) { called = true })

	for _, raw := range []string{"", "{", "null", `{"type":"mystery"}`, `{"type":42}`} {
		assert.NotPanics(t, func() { tr.Dispatch(context.Background(), []byte(raw)) }, raw)
	}
	assert.False(t, called)
	assert.False(t, tr.IsReady())
	assert.True(t, tr.ShowAppTabs())
}

func TestHandlerPanicIsContained(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())
	tr.Handle(protocol.KindLog, func(context.Context, protocol.Inbound) { panic("boom") })
	assert.NotPanics(t, func() { tr.Dispatch(context.Background(), []byte(`{"type":"log"}`)) })
}

func TestCriticalMessagesWaitForReady(t *testing.T) {
	tr, pipe := newAttached(t, DefaultOptions())
	ctx := context.Background()

	require.NoError(t, tr.Send(ctx, protocol.UploadToken("T")))
	require.NoError(t, tr.Send(ctx, protocol.InitializeChannel("-1")))
	err := tr.Send(ctx, protocol.Outbound{Type: protocol.KindAppTabsChanged})
	assert.ErrorIs(t, err, ErrDropped)

	assert.Empty(t, pipe.Posted())
	assert.Equal(t, 2, tr.QueueLen())

	readied := make(chan struct{})
	tr.OnReady(func(context.Context) { close(readied) })
	pipe.Inject(`{"type":"ready"}`)

	select {
	case <-readied:
	case <-time.After(time.Second):
		t.Fatal("ready not observed")
	}

	assert.Equal(t, []protocol.Kind{protocol.KindUploadToken, protocol.KindInitializeChannel}, pipe.Posted())
	assert.Equal(t, 0, tr.QueueLen())

	require.NoError(t, tr.Send(ctx, protocol.OpenSettings()))
	assert.Equal(t, protocol.KindOpenSettings, pipe.Posted()[2])
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	tr := New(logger.NewNop(), Options{QueueSize: 2})
	ctx := context.Background()

	require.NoError(t, tr.Send(ctx, protocol.ToChannel("a")))
	require.NoError(t, tr.Send(ctx, protocol.ToChannel("b")))
	require.NoError(t, tr.Send(ctx, protocol.ToChannel("c")))
	assert.Equal(t, 2, tr.QueueLen())
}

func TestToChannelResetsReadiness(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())
	pipe := transporttest.NewPipe()
	tr.Attach(context.Background(), pipe)

	tr.Dispatch(context.Background(), []byte(`{"type":"ready"}`))
	require.True(t, tr.IsReady())

	require.NoError(t, tr.Send(context.Background(), protocol.ToChannel("-100")))
	assert.False(t, tr.IsReady())

	require.NoError(t, tr.Send(context.Background(), protocol.UploadToken("T")))
	assert.Equal(t, 1, tr.QueueLen())
}

func TestShowAppTabsOwnedByTransport(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())

	var seen []bool
	tr.OnAppTabsChange(func(show bool) { seen = append(seen, show) })

	ctx := context.Background()
	tr.Dispatch(ctx, []byte(`{"type":"setShowAppTabs","data":false}`))
	assert.False(t, tr.ShowAppTabs())
	tr.Dispatch(ctx, []byte(`{"type":"setShowAppTabs","data":false}`))
	tr.Dispatch(ctx, []byte(`{"type":"setShowAppTabs","data":true}`))
	tr.Dispatch(ctx, []byte(`{"type":"setShowAppTabs","data":"yes"}`))

	assert.True(t, tr.ShowAppTabs())
	assert.Equal(t, []bool{false, true}, seen)
}

func TestRequestRoundTrip(t *testing.T) {
	tr, pipe := newAttached(t, DefaultOptions())
	tr.Dispatch(context.Background(), []byte(`{"type":"ready"}`))

	pipe.OnPost(func(out protocol.Outbound) {
		if out.Type == protocol.KindCheckJoinStatus {
			pipe.InjectJSON(map[string]any{
				"type":      protocol.KindJoinStatusResult,
				"requestId": out.RequestID,
				"data":      map[string]any{"channelId": "-1", "isJoined": true},
			})
		}
	})

	reply, err := tr.Request(context.Background(), protocol.CheckJoinStatus("-1", ""))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindJoinStatusResult, reply.Type)

	var status protocol.JoinStatus
	_, err = reply.Decode(&status)
	require.NoError(t, err)
	assert.True(t, status.IsJoined)
}

func TestRequestTimesOutAsNetworkError(t *testing.T) {
	tr, _ := newAttached(t, Options{RoundTripTimeout: 30 * time.Millisecond})
	tr.Dispatch(context.Background(), []byte(`{"type":"ready"}`))

	_, err := tr.Request(context.Background(), protocol.CheckJoinStatus("-1", ""))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.Classify(err))
}

func TestEvaluateDecodesResult(t *testing.T) {
	tr, pipe := newAttached(t, DefaultOptions())
	pipe.RespondJSON("window.location.href.match", webscript.CurrentChannelResult{})

	var res webscript.CurrentChannelResult
	require.NoError(t, tr.Evaluate(context.Background(), webscript.Probe{Name: webscript.ProbeCurrentChannel}, &res))
	assert.Nil(t, res.ChannelID)
	assert.Len(t, pipe.Evaluated(), 1)
}

func TestEvaluateTimeout(t *testing.T) {
	tr, pipe := newAttached(t, Options{RoundTripTimeout: 20 * time.Millisecond})
	pipe.Respond("window.location.href.match", func(ctx context.Context, _ string) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	err := tr.Evaluate(context.Background(), webscript.Probe{Name: webscript.ProbeCurrentChannel}, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.Classify(err))
}

func TestEvaluateWithoutLink(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())
	err := tr.Evaluate(context.Background(), webscript.Probe{Name: webscript.ProbeExploreAPI}, nil)
	assert.Equal(t, apperr.KindNetwork, apperr.Classify(err))
}

func TestClickUsesClickerWhenAvailable(t *testing.T) {
	tr := New(logger.NewNop(), DefaultOptions())
	pipe := transporttest.NewPipe()
	tr.Attach(context.Background(), pipe)

	ok, err := tr.Click(context.Background(), "#x")
	assert.False(t, ok)
	assert.NoError(t, err)

	clicky := transporttest.NewPipe().EnableClicks(errors.New("covered"))
	tr.Attach(context.Background(), clicky)
	ok, err = tr.Click(context.Background(), "#x")
	assert.True(t, ok)
	assert.Error(t, err)
	assert.Equal(t, []string{"#x"}, clicky.Clicks())
}

func TestLinkCloseDetaches(t *testing.T) {
	tr, pipe := newAttached(t, DefaultOptions())
	done := tr.Detached()
	require.NoError(t, pipe.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}
	assert.False(t, tr.IsReady())
}
