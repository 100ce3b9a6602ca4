package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/protocol"
	"tgbridge/pkg/webscript"
)

// ErrDropped is returned by Send for non-critical messages sent before the
// embedded side is ready.
var ErrDropped = errors.New("dropped before ready")

// Handler processes one inbound message. Handlers run on the dispatch loop
// one at a time; long work belongs in a goroutine.
type Handler func(ctx context.Context, msg protocol.Inbound)

// Options configures a Transport.
type Options struct {
	RoundTripTimeout time.Duration
	QueueSize        int
}

// DefaultOptions returns a 15s round-trip bound and a 64 message queue.
func DefaultOptions() Options {
	return Options{RoundTripTimeout: 15 * time.Second, QueueSize: 64}
}

// Transport multiplexes a Conn.
type Transport struct {
	log  *logger.Logger
	opts Options

	// sendMu serializes writes so queued messages flush before later ones.
	sendMu sync.Mutex

	mu       sync.Mutex
	conn     Conn
	ready    bool
	queue    []protocol.Outbound
	handlers map[protocol.Kind]Handler
	waiters  map[string]chan protocol.Inbound
	showTabs bool
	onTabs   []func(bool)
	onReady  []func(context.Context)
	detached chan struct{}
}

// New creates a transport without a link. Attach one before use.
func New(log *logger.Logger, opts Options) *Transport {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.RoundTripTimeout <= 0 {
		opts.RoundTripTimeout = DefaultOptions().RoundTripTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	return &Transport{
		log:      log.Named("transport"),
		opts:     opts,
		handlers: make(map[protocol.Kind]Handler),
		waiters:  make(map[string]chan protocol.Inbound),
		showTabs: true,
	}
}

// Attach binds a link and starts dispatching its inbound messages until
// ctx ends or the link closes. A previous link is closed. Readiness resets
// because the new document has not announced itself yet.
func (t *Transport) Attach(ctx context.Context, conn Conn) {
	t.mu.Lock()
	prev := t.conn
	t.conn = conn
	t.ready = false
	done := make(chan struct{})
	t.detached = done
	t.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	go func() {
		defer close(done)
		t.run(ctx, conn)
	}()
}

// Detached returns a channel closed when the current link's loop exits.
func (t *Transport) Detached() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detached
}

func (t *Transport) run(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-conn.Inbound():
			if !ok {
				t.mu.Lock()
				if t.conn == conn {
					t.conn = nil
					t.ready = false
				}
				t.mu.Unlock()
				t.log.Info("Embedded link closed")
				return
			}
			t.Dispatch(ctx, raw)
		}
	}
}

// Handle registers the handler for kind, replacing any previous one.
func (t *Transport) Handle(kind protocol.Kind, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = h
}

// OnReady registers a callback run after each ready announcement, once the
// deferred queue has been flushed.
func (t *Transport) OnReady(fn func(context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReady = append(t.onReady, fn)
}

// OnAppTabsChange registers an observer for tab visibility changes.
func (t *Transport) OnAppTabsChange(fn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTabs = append(t.onTabs, fn)
}

// IsReady reports whether the embedded listener has announced itself.
func (t *Transport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// ShowAppTabs returns the current tab visibility requested by the page.
func (t *Transport) ShowAppTabs() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.showTabs
}

// QueueLen returns the number of deferred messages.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Dispatch parses one raw inbound payload and routes it. Malformed and
// unknown messages are logged and discarded.
func (t *Transport) Dispatch(ctx context.Context, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			t.log.Warn("Unknown message type", zap.String("type", string(msg.Type)))
		} else {
			t.log.Warn("Discarding malformed message", zap.Error(err), zap.Int("bytes", len(raw)))
		}
		return
	}

	switch msg.Type {
	case protocol.KindReady:
		t.markReady(ctx)
	case protocol.KindSetShowAppTabs:
		t.setShowAppTabs(ctx, msg)
	}

	if msg.RequestID != "" {
		t.resolve(msg)
	}

	t.mu.Lock()
	h := t.handlers[msg.Type]
	t.mu.Unlock()

	if h == nil {
		if msg.Type != protocol.KindReady && msg.Type != protocol.KindSetShowAppTabs {
			t.log.Debug("No handler for message", zap.String("type", string(msg.Type)))
		}
		return
	}
	t.invoke(ctx, h, msg)
}

func (t *Transport) invoke(ctx context.Context, h Handler, msg protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Message handler panicked",
				zap.String("type", string(msg.Type)),
				zap.Any("panic", r))
		}
	}()
	h(ctx, msg)
}

func (t *Transport) markReady(ctx context.Context) {
	t.sendMu.Lock()
	t.mu.Lock()
	t.ready = true
	pending := t.queue
	t.queue = nil
	observers := append([]func(context.Context){}, t.onReady...)
	t.mu.Unlock()

	t.log.Info("Embedded client ready", zap.Int("flushing", len(pending)))
	for _, out := range pending {
		if err := t.post(ctx, out); err != nil {
			t.log.Warn("Flushing deferred message failed",
				zap.String("type", string(out.Type)), zap.Error(err))
		}
	}
	t.sendMu.Unlock()

	for _, fn := range observers {
		fn(ctx)
	}
}

func (t *Transport) setShowAppTabs(ctx context.Context, msg protocol.Inbound) {
	var show bool
	if _, err := msg.Decode(&show); err != nil {
		t.log.Warn("Invalid setShowAppTabs payload", zap.Error(err))
		return
	}

	t.mu.Lock()
	changed := t.showTabs != show
	t.showTabs = show
	observers := append([]func(bool){}, t.onTabs...)
	t.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range observers {
		fn(show)
	}
	_ = t.Send(ctx, protocol.Outbound{Type: protocol.KindAppTabsChanged, Data: protocol.TabsData{Show: show}})
}

// Send delivers out to the embedded listener. Before readiness, critical
// kinds are queued (oldest dropped on overflow) and others return ErrDropped.
func (t *Transport) Send(ctx context.Context, out protocol.Outbound) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	if !t.ready {
		defer t.mu.Unlock()
		if !out.Type.IsCritical() {
			t.log.Debug("Dropping message sent before ready", zap.String("type", string(out.Type)))
			return ErrDropped
		}
		if len(t.queue) >= t.opts.QueueSize {
			t.log.Warn("Deferred queue full, dropping oldest",
				zap.String("dropped", string(t.queue[0].Type)))
			t.queue = t.queue[1:]
		}
		t.queue = append(t.queue, out)
		t.log.Debug("Deferring message until ready", zap.String("type", string(out.Type)))
		return nil
	}
	t.mu.Unlock()

	return t.post(ctx, out)
}

// post must be called with sendMu held.
func (t *Transport) post(ctx context.Context, out protocol.Outbound) error {
	payload, err := out.Encode()
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return apperr.New(apperr.KindNetwork, "no embedded link attached")
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.RoundTripTimeout)
	defer cancel()
	if err := conn.Post(ctx, payload); err != nil {
		return apperr.Wrap(apperr.Classify(err), err, "posting "+string(out.Type))
	}

	// toChannel reloads the page; its listener is gone until the next ready.
	if out.Type == protocol.KindToChannel {
		t.mu.Lock()
		t.ready = false
		t.mu.Unlock()
	}
	return nil
}

// Request sends out with a fresh request id and waits for the inbound reply
// carrying the same id. Expiry of the round-trip bound is NETWORK_ERROR.
func (t *Transport) Request(ctx context.Context, out protocol.Outbound) (protocol.Inbound, error) {
	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}

	reply := make(chan protocol.Inbound, 1)
	t.mu.Lock()
	t.waiters[out.RequestID] = reply
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.waiters, out.RequestID)
		t.mu.Unlock()
	}()

	if err := t.Send(ctx, out); err != nil {
		return protocol.Inbound{}, err
	}
	return t.Await(ctx, out.RequestID, reply)
}

// Expect registers interest in a reply with requestID before the trigger
// is issued through another path, such as a probe.
func (t *Transport) Expect(requestID string) (<-chan protocol.Inbound, func()) {
	reply := make(chan protocol.Inbound, 1)
	t.mu.Lock()
	t.waiters[requestID] = reply
	t.mu.Unlock()
	return reply, func() {
		t.mu.Lock()
		delete(t.waiters, requestID)
		t.mu.Unlock()
	}
}

// Await waits for a reply on ch within the round-trip bound.
func (t *Transport) Await(ctx context.Context, requestID string, ch <-chan protocol.Inbound) (protocol.Inbound, error) {
	timer := time.NewTimer(t.opts.RoundTripTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
		t.log.Warn("Round trip timed out", zap.String("request_id", requestID))
		return protocol.Inbound{}, apperr.New(apperr.KindNetwork, "round trip timed out")
	case <-ctx.Done():
		return protocol.Inbound{}, apperr.Wrap(apperr.KindNetwork, ctx.Err(), "round trip cancelled")
	}
}

func (t *Transport) resolve(msg protocol.Inbound) {
	t.mu.Lock()
	ch, ok := t.waiters[msg.RequestID]
	if ok {
		delete(t.waiters, msg.RequestID)
	}
	t.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// Evaluate runs a probe in the page and decodes its result into out.
// It works whether or not the listener is ready.
func (t *Transport) Evaluate(ctx context.Context, probe webscript.Probe, out any) error {
	expr, err := probe.Expression()
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return apperr.New(apperr.KindNetwork, "no embedded link attached")
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.RoundTripTimeout)
	defer cancel()

	raw, err := conn.Evaluate(ctx, expr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindNetwork, err, "probe "+probe.Name+" timed out")
		}
		return apperr.Wrap(apperr.Classify(err), err, "probe "+probe.Name)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", probe.Name, err)
	}
	return nil
}

// Click dispatches a native click when the link supports it and reports
// whether it did.
func (t *Transport) Click(ctx context.Context, selector string) (bool, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	clicker, ok := conn.(Clicker)
	if !ok {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.opts.RoundTripTimeout)
	defer cancel()
	return true, clicker.Click(ctx, selector)
}

// Close closes the current link.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.ready = false
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
