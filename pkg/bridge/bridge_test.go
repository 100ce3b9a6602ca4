package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/login"
	"tgbridge/pkg/protocol"
	"tgbridge/pkg/resolver"
	"tgbridge/pkg/state"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/transport/transporttest"
	"tgbridge/pkg/workflow"
)

type fakeAuth struct {
	mu     sync.Mutex
	seen   []login.Identity
	result login.Result
}

func (f *fakeAuth) LoginWithIdentity(_ context.Context, id login.Identity) login.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, id)
	return f.result
}

func (f *fakeAuth) identities() []login.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]login.Identity(nil), f.seen...)
}

type fakeResolver struct {
	result resolver.Result
	join   resolver.JoinOutcome
}

func (f *fakeResolver) InitializeChannel(context.Context, string) resolver.Result { return f.result }
func (f *fakeResolver) FullInfo(context.Context, string) resolver.Result          { return f.result }
func (f *fakeResolver) Preview(context.Context, string) resolver.Result           { return f.result }
func (f *fakeResolver) Join(context.Context, string) resolver.JoinOutcome         { return f.join }
func (f *fakeResolver) CheckJoinStatus(context.Context, string) (bool, error)     { return false, nil }
func (f *fakeResolver) BotInfo(context.Context) (*resolver.BotInfo, bool)         { return nil, false }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) find(typ events.Type) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return events.Event{}, false
}

type harness struct {
	tr     *transport.Transport
	pipe   *transporttest.Pipe
	tokens *tokenstore.Store
	auth   *fakeAuth
	res    *fakeResolver
	pub    *recorder
	bridge *Bridge
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.NewNop()
	h := &harness{
		tr:     transport.New(log, transport.DefaultOptions()),
		pipe:   transporttest.NewPipe(),
		tokens: tokenstore.New(state.NewMemoryStore(), log),
		auth:   &fakeAuth{result: login.Result{Success: true, Token: "session-token"}},
		res:    &fakeResolver{},
		pub:    &recorder{},
	}

	opts := workflow.DefaultOptions()
	opts.Sleep = func(context.Context, time.Duration) error { return nil }
	flows := workflow.New(h.res, h.tokens, h.tr, h.pub, log, opts)

	h.bridge = New(h.tr, h.tokens, h.auth, flows, h.pub, log)
	h.bridge.Register()
	t.Cleanup(h.bridge.Stop)

	h.tr.Attach(ctx, h.pipe)
	return h
}

func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.pipe.Inject(`{"type":"ready"}`)
	require.Eventually(t, h.tr.IsReady, time.Second, 5*time.Millisecond)
}

func (h *harness) waitPosted(t *testing.T, kind protocol.Kind) map[string]any {
	t.Helper()
	var found map[string]any
	require.Eventually(t, func() bool {
		for _, raw := range h.pipe.PostedRaw() {
			var msg struct {
				Type protocol.Kind  `json:"type"`
				Data map[string]any `json:"data"`
			}
			if json.Unmarshal(raw, &msg) == nil && msg.Type == kind {
				found = msg.Data
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "expected %s to be posted", kind)
	return found
}

func TestCheckTokenUploadsStoredToken(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.tokens.SaveToken(context.Background(), "stored"))
	h.ready(t)

	h.pipe.Inject(`{"type":"checkTgToken"}`)
	data := h.waitPosted(t, protocol.KindUploadToken)
	assert.Equal(t, "stored", data["token"])
}

func TestCheckTokenWithoutTokenRequestsUserInfo(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.pipe.Inject(`{"type":"checkTgToken"}`)
	h.waitPosted(t, protocol.KindRequestUserInfo)
	assert.NotContains(t, h.pipe.Posted(), protocol.KindUploadToken)
}

func TestReadyPushesStoredToken(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.tokens.SaveToken(context.Background(), "stored"))

	h.ready(t)
	data := h.waitPosted(t, protocol.KindUploadToken)
	assert.Equal(t, "stored", data["token"])
}

func TestAuthDataLogsIn(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.pipe.Inject(`{"type":"sendTgAuthData","data":{"id":12345,"firstName":"Ann","username":"ann"}}`)
	data := h.waitPosted(t, protocol.KindUploadToken)
	assert.Equal(t, "session-token", data["token"])

	h.bridge.Wait()
	ids := h.auth.identities()
	require.Len(t, ids, 1)
	assert.Equal(t, "12345", ids[0].ID)
	assert.Equal(t, "Ann", ids[0].FirstName)

	_, ok := h.pub.find(events.TypeAuth)
	assert.True(t, ok)
}

func TestFailedLoginUploadsNothing(t *testing.T) {
	h := newHarness(t)
	h.auth.result = login.Result{Error: login.ErrRejected}
	h.ready(t)

	h.pipe.Inject(`{"type":"sendTgAuthData","data":{"id":"1"}}`)
	require.Eventually(t, func() bool { return len(h.auth.identities()) == 1 }, time.Second, 5*time.Millisecond)
	h.bridge.Wait()
	assert.NotContains(t, h.pipe.Posted(), protocol.KindUploadToken)
}

func TestNullUserInfoSkipsLogin(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.pipe.Inject(`{"type":"provideUserInfo","data":null}`)
	h.pipe.Inject(`{"type":"provideUserInfo","data":{"id":"77"}}`)
	h.waitPosted(t, protocol.KindUploadToken)
	h.bridge.Wait()

	ids := h.auth.identities()
	require.Len(t, ids, 1)
	assert.Equal(t, "77", ids[0].ID)
}

func TestLogoutClearsToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.tokens.SaveToken(ctx, "stored"))
	h.ready(t)

	h.pipe.Inject(`{"type":"logout"}`)
	require.Eventually(t, func() bool {
		_, ok := h.tokens.GetToken(ctx)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInitializeReportsSessionReady(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.tokens.SaveToken(context.Background(), "stored"))
	h.res.result = resolver.Result{Success: true, ChannelInfo: &resolver.ChannelInfo{ID: "-1001", Title: "News"}}
	h.ready(t)

	h.pipe.Inject(`{"type":"initializeChannel","data":{"channelId":-1001}}`)
	data := h.waitPosted(t, protocol.KindChannelSessionReady)
	assert.Equal(t, "-1001", data["channelId"])
	info, ok := data["channelInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "News", info["title"])
}

func TestInitializeReportsFailure(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.tokens.SaveToken(context.Background(), "stored"))
	h.res.result = resolver.Result{Error: "gone", ErrorCode: apperr.KindChannelNotFound}
	h.ready(t)

	h.pipe.Inject(`{"type":"initializeChannel","data":{"channelId":"-1001"}}`)
	data := h.waitPosted(t, protocol.KindChannelInitFailed)
	assert.Equal(t, "-1001", data["channelId"])
	assert.Equal(t, "gone", data["error"])
	assert.Equal(t, string(apperr.KindChannelNotFound), data["errorCode"])
	assert.EqualValues(t, 0, data["retryCount"])
}

func TestJoinWithoutSessionAlerts(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.pipe.Inject(`{"type":"joinChannelRequest","data":{"channelId":"-1001"}}`)
	require.Eventually(t, func() bool {
		_, ok := h.pub.find(events.TypeAlert)
		return ok
	}, time.Second, 5*time.Millisecond)

	ev, _ := h.pub.find(events.TypeAlert)
	assert.Equal(t, "User is not logged in", ev.Data["message"])
}

func TestPreviewRequestUsesTopLevelChannel(t *testing.T) {
	h := newHarness(t)
	h.res.result = resolver.Result{Success: true, ChannelInfo: &resolver.ChannelInfo{ID: "-1002"}}
	h.ready(t)

	h.pipe.Inject(`{"type":"PREVIEW_CHANNEL_REQUEST","channelId":"-1002"}`)
	require.Eventually(t, func() bool {
		ev, ok := h.pub.find(events.TypeWorkflowReady)
		return ok && ev.ChannelID == "-1002"
	}, time.Second, 5*time.Millisecond)
}

func TestAppTabsChangePublishes(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.pipe.Inject(`{"type":"setShowAppTabs","data":false}`)
	require.Eventually(t, func() bool {
		ev, ok := h.pub.find(events.TypeAppTabs)
		return ok && ev.Data["show"] == false
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.tr.ShowAppTabs())
}

func TestActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ready(t)

	assert.ErrorIs(t, h.bridge.NavigateToChannel(ctx, " "), ErrNoChannel)
	require.NoError(t, h.bridge.NavigateToChannel(ctx, "-1003"))
	data := h.waitPosted(t, protocol.KindToChannel)
	assert.Equal(t, "-1003", data["channelId"])

	require.NoError(t, h.bridge.OpenSettings(ctx))
	h.waitPosted(t, protocol.KindOpenSettings)

	assert.False(t, h.bridge.PushToken(ctx))
}
