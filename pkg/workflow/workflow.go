// Package workflow runs channel initialization, preview, join and status
// checks as per-channel state machines (idle, loading, ready or failed)
// with bounded retries. Each run gets a generation number; results of a
// run superseded by a newer one for the same channel are discarded.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/protocol"
	"tgbridge/pkg/resolver"
)

// Resolver is the channel resolution engine.
type Resolver interface {
	InitializeChannel(ctx context.Context, channelID string) resolver.Result
	FullInfo(ctx context.Context, channelID string) resolver.Result
	Preview(ctx context.Context, channelID string) resolver.Result
	Join(ctx context.Context, channelID string) resolver.JoinOutcome
	CheckJoinStatus(ctx context.Context, channelID string) (bool, error)
	BotInfo(ctx context.Context) (*resolver.BotInfo, bool)
}

// Sessions reports whether the user is logged in.
type Sessions interface {
	GetToken(ctx context.Context) (string, bool)
}

// Sender delivers commands to the embedded client.
type Sender interface {
	Send(ctx context.Context, out protocol.Outbound) error
}

// Options tunes a Manager.
type Options struct {
	Retry apperr.RetryPolicy
	// JoinSettle is the wait between a successful join and navigating back
	// to the channel page.
	JoinSettle time.Duration
	Lang       language.Tag
	Sleep      func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns three retries from 2s and a 2s join settle.
func DefaultOptions() Options {
	return Options{
		Retry:      apperr.DefaultRetryPolicy(),
		JoinSettle: 2 * time.Second,
		Lang:       language.English,
		Sleep:      resolver.Sleep,
	}
}

// Manager owns the workflow state of every channel.
type Manager struct {
	res      Resolver
	sessions Sessions
	sender   Sender
	events   events.Publisher
	log      *logger.Logger
	opts     Options

	mu      sync.Mutex
	counter uint64
	gens    map[string]uint64
	states  map[string]State
}

// New creates a manager. A nil publisher drops events.
func New(res Resolver, sessions Sessions, sender Sender, pub events.Publisher, log *logger.Logger, opts Options) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if opts.Sleep == nil {
		opts.Sleep = resolver.Sleep
	}
	if opts.Lang == language.Und {
		opts.Lang = language.English
	}
	return &Manager{
		res:      res,
		sessions: sessions,
		sender:   sender,
		events:   pub,
		log:      log.Named("workflow"),
		opts:     opts,
		gens:     make(map[string]uint64),
		states:   make(map[string]State),
	}
}

// outcome is the result of one attempt.
type outcome struct {
	ok    bool
	kind  apperr.Kind
	err   string
	// final failures skip the retry policy.
	final bool
	apply func(*State)
}

// Initialize resolves channelID for a logged-in user.
func (m *Manager) Initialize(ctx context.Context, channelID string, cb Callbacks) State {
	st, _ := m.run(ctx, channelID, OpInitialize, cb, func(ctx context.Context) outcome {
		res := m.res.InitializeChannel(ctx, channelID)
		if res.Success {
			info := res.ChannelInfo
			// A failed refresh keeps the initial data.
			if full := m.res.FullInfo(ctx, channelID); full.Success && full.ChannelInfo != nil {
				info = full.ChannelInfo
			}
			return outcome{ok: true, apply: func(s *State) { s.ChannelInfo = info }}
		}

		kind := res.ErrorCode
		if !kind.Valid() {
			kind = apperr.KindUnknown
		}
		msg := res.Error
		switch kind {
		case apperr.KindUnauthorized:
			msg = apperr.Text(apperr.MsgUserNotLoggedIn, m.opts.Lang)
			cb.alert(msg)
		case apperr.KindChannelPrivate:
			msg = fmt.Sprintf(apperr.Text(apperr.MsgBotNotMember, m.opts.Lang), m.botName(ctx))
		}
		return outcome{kind: kind, err: msg}
	})
	return st
}

// Preview fetches preview data for channelID. It needs no session.
func (m *Manager) Preview(ctx context.Context, channelID string, cb Callbacks) State {
	st, _ := m.run(ctx, channelID, OpPreview, cb, func(ctx context.Context) outcome {
		res := m.res.Preview(ctx, channelID)
		if res.Success {
			return outcome{ok: true, apply: func(s *State) { s.ChannelInfo = res.ChannelInfo }}
		}
		kind := res.ErrorCode
		if !kind.Valid() {
			kind = apperr.KindUnknown
		}
		return outcome{kind: kind, err: res.Error}
	})
	return st
}

// Join runs the join ladder and, on success, navigates back to the channel
// once the page has settled.
func (m *Manager) Join(ctx context.Context, channelID string, cb Callbacks) State {
	st, fresh := m.run(ctx, channelID, OpJoin, cb, func(ctx context.Context) outcome {
		if _, ok := m.sessions.GetToken(ctx); !ok {
			msg := apperr.Text(apperr.MsgUserNotLoggedIn, m.opts.Lang)
			cb.alert(msg)
			return outcome{kind: apperr.KindUnauthorized, err: msg, final: true}
		}

		res := m.res.Join(ctx, channelID)
		if res.Success {
			return outcome{ok: true, apply: func(s *State) {
				s.Method = res.Method
				s.IsJoined = true
			}}
		}
		kind := apperr.KindAccessDenied
		if res.Method == resolver.MethodError {
			kind = apperr.KindNetwork
		}
		return outcome{kind: kind, err: res.Error, final: true, apply: func(s *State) { s.Method = res.Method }}
	})

	if !fresh {
		return st
	}
	m.publish(ctx, events.TypeJoinResult, st)

	if st.Phase == PhaseReady {
		m.navigateAfterJoin(ctx, st.ChannelID, st.Generation)
	}
	return m.State(st.ChannelID)
}

func (m *Manager) navigateAfterJoin(ctx context.Context, channelID string, gen uint64) {
	if m.sender == nil {
		return
	}
	if err := m.opts.Sleep(ctx, m.opts.JoinSettle); err != nil {
		return
	}
	if !m.current(channelID, gen) {
		m.log.Debug("Skipping navigation of superseded join", zap.String("channel_id", channelID))
		return
	}
	if err := m.sender.Send(ctx, protocol.ToChannel(channelID)); err != nil {
		m.log.Warn("Navigating back to channel failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// CheckJoinStatus probes membership of channelID.
func (m *Manager) CheckJoinStatus(ctx context.Context, channelID string) State {
	st, _ := m.run(ctx, channelID, OpStatus, Callbacks{}, func(ctx context.Context) outcome {
		joined, err := m.res.CheckJoinStatus(ctx, channelID)
		if err != nil {
			return outcome{kind: apperr.Classify(err), err: err.Error(), final: true}
		}
		return outcome{ok: true, apply: func(s *State) { s.IsJoined = joined }}
	})
	return st
}

// Reset forgets channelID and invalidates any run in flight for it.
func (m *Manager) Reset(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	m.gens[channelID] = m.counter
	delete(m.states, channelID)
}

// State returns the current state of channelID.
func (m *Manager) State(channelID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[channelID]; ok {
		return st
	}
	return State{ChannelID: channelID, Phase: PhaseIdle}
}

// Snapshot returns every known state ordered by channel id.
func (m *Manager) Snapshot() []State {
	m.mu.Lock()
	out := make([]State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// run drives one workflow to a terminal phase. fresh is false when the run
// was superseded and its result discarded.
func (m *Manager) run(ctx context.Context, channelID string, op Operation, cb Callbacks, attempt func(context.Context) outcome) (st State, fresh bool) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		m.log.Warn("Ignoring request without channel id", zap.String("operation", string(op)))
		return State{}, false
	}

	gen := m.begin(channelID, op)
	log := m.log.WithFields(
		zap.String("channel_id", channelID),
		zap.String("operation", string(op)),
		zap.Uint64("generation", gen),
	)

	retries := 0
	for {
		out := attempt(ctx)
		if !m.current(channelID, gen) {
			log.Debug("Discarding result of superseded run")
			return m.State(channelID), false
		}

		if out.ok {
			next, ok := m.update(channelID, gen, func(s *State) {
				s.Phase = PhaseReady
				s.IsLoading = false
				s.IsReady = true
				s.Error = ""
				s.ErrorCode = ""
				s.RetryCount = retries
				if out.apply != nil {
					out.apply(s)
				}
			})
			if !ok {
				return next, false
			}
			log.Info("Workflow ready", zap.Int("retries", retries))
			m.publish(ctx, events.TypeWorkflowReady, next)
			cb.success(next)
			return next, true
		}

		if !out.final && m.opts.Retry.ShouldRetry(out.kind, retries) {
			delay := m.opts.Retry.Delay(retries)
			retries++
			m.update(channelID, gen, func(s *State) { s.RetryCount = retries })
			log.Info("Retrying after recoverable failure",
				zap.String("kind", string(out.kind)),
				zap.Int("retry", retries),
				zap.Duration("delay", delay))

			if err := m.opts.Sleep(ctx, delay); err != nil {
				out = outcome{kind: apperr.KindNetwork, err: err.Error()}
			} else {
				if !m.current(channelID, gen) {
					log.Debug("Run superseded while waiting to retry")
					return m.State(channelID), false
				}
				continue
			}
		}

		if out.err == "" {
			out.err = apperr.Message(out.kind, m.opts.Lang)
		}
		next, ok := m.update(channelID, gen, func(s *State) {
			s.Phase = PhaseFailed
			s.IsLoading = false
			s.IsReady = false
			s.Error = out.err
			s.ErrorCode = out.kind
			s.RetryCount = retries
			if out.apply != nil {
				out.apply(s)
			}
		})
		if !ok {
			return next, false
		}
		log.Warn("Workflow failed",
			zap.String("kind", string(out.kind)),
			zap.String("error", next.Error),
			zap.Int("retries", retries))
		m.publish(ctx, events.TypeWorkflowFailed, next)
		cb.failure(next)
		return next, true
	}
}

func (m *Manager) begin(channelID string, op Operation) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	gen := m.counter
	m.gens[channelID] = gen
	m.states[channelID] = State{
		ChannelID:  channelID,
		Operation:  op,
		Phase:      PhaseLoading,
		IsLoading:  true,
		Generation: gen,
		UpdatedAt:  time.Now(),
	}
	return gen
}

func (m *Manager) current(channelID string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[channelID] == gen
}

// update applies fn to the state of channelID if gen is still current.
func (m *Manager) update(channelID string, gen uint64, fn func(*State)) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[channelID]
	if m.gens[channelID] != gen {
		return st, false
	}
	fn(&st)
	st.UpdatedAt = time.Now()
	m.states[channelID] = st
	return st, true
}

func (m *Manager) botName(ctx context.Context) string {
	if info, ok := m.res.BotInfo(ctx); ok && info.Username != "" {
		return "@" + info.Username
	}
	return "the bot"
}

func (m *Manager) publish(ctx context.Context, typ events.Type, st State) {
	data := map[string]any{
		"operation":  st.Operation,
		"phase":      st.Phase,
		"retryCount": st.RetryCount,
		"generation": st.Generation,
	}
	if st.ErrorCode != "" {
		data["errorCode"] = st.ErrorCode
		data["error"] = st.Error
	}
	if st.Method != "" {
		data["method"] = st.Method
	}
	if st.Operation == OpJoin || st.Operation == OpStatus {
		data["isJoined"] = st.IsJoined
	}
	if err := m.events.Publish(ctx, events.New(typ, st.ChannelID, data)); err != nil {
		m.log.Warn("Publishing event failed", zap.String("type", string(typ)), zap.Error(err))
	}
}
