// Package transporttest provides an in-memory embedded link for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"tgbridge/pkg/protocol"
)

// EvalFunc answers an evaluated expression.
type EvalFunc func(ctx context.Context, expression string) (json.RawMessage, error)

// Pipe is a fake transport.Conn. Posted payloads are recorded; Evaluate is
// answered by per-probe responders; Inject feeds inbound messages.
type Pipe struct {
	mu         sync.Mutex
	posted     [][]byte
	evaluated  []string
	responders map[string]EvalFunc
	clicks     []string
	clickErr   error
	inbound    chan []byte
	closed     bool
	onPost     func(protocol.Outbound)
}

// NewPipe creates an open pipe.
func NewPipe() *Pipe {
	return &Pipe{
		inbound:    make(chan []byte, 64),
		responders: make(map[string]EvalFunc),
	}
}

// Respond registers a responder for expressions containing marker, usually
// a distinctive fragment of the probe source.
func (p *Pipe) Respond(marker string, fn EvalFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responders[marker] = fn
}

// RespondJSON registers a fixed JSON answer.
func (p *Pipe) RespondJSON(marker string, v any) {
	raw, _ := json.Marshal(v)
	p.Respond(marker, func(context.Context, string) (json.RawMessage, error) {
		return raw, nil
	})
}

// OnPost registers a hook run for every posted message, used to script
// replies from the embedded side.
func (p *Pipe) OnPost(fn func(protocol.Outbound)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPost = fn
}

// EnableClicks makes the pipe behave as a transport.Clicker.
func (p *Pipe) EnableClicks(err error) *ClickPipe {
	p.mu.Lock()
	p.clickErr = err
	p.mu.Unlock()
	return &ClickPipe{Pipe: p}
}

func (p *Pipe) Post(_ context.Context, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("pipe closed")
	}
	p.posted = append(p.posted, append([]byte(nil), payload...))
	hook := p.onPost
	p.mu.Unlock()

	if hook != nil {
		var raw struct {
			Type      protocol.Kind   `json:"type"`
			Data      json.RawMessage `json:"data"`
			RequestID string          `json:"requestId"`
		}
		if err := json.Unmarshal(payload, &raw); err == nil {
			hook(protocol.Outbound{Type: raw.Type, Data: raw.Data, RequestID: raw.RequestID})
		}
	}
	return nil
}

func (p *Pipe) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	p.mu.Lock()
	p.evaluated = append(p.evaluated, expression)
	var fn EvalFunc
	for marker, responder := range p.responders {
		if strings.Contains(expression, marker) {
			fn = responder
			break
		}
	}
	p.mu.Unlock()

	if fn == nil {
		return json.RawMessage("null"), nil
	}
	return fn(ctx, expression)
}

func (p *Pipe) Inbound() <-chan []byte { return p.inbound }

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbound)
	}
	return nil
}

// Inject queues a raw inbound payload.
func (p *Pipe) Inject(raw string) {
	p.inbound <- []byte(raw)
}

// InjectJSON marshals v and queues it.
func (p *Pipe) InjectJSON(v any) {
	raw, _ := json.Marshal(v)
	p.inbound <- raw
}

// Posted returns the decoded types of all posted messages in order.
func (p *Pipe) Posted() []protocol.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]protocol.Kind, 0, len(p.posted))
	for _, raw := range p.posted {
		var head struct {
			Type protocol.Kind `json:"type"`
		}
		_ = json.Unmarshal(raw, &head)
		kinds = append(kinds, head.Type)
	}
	return kinds
}

// PostedRaw returns the raw posted payloads.
func (p *Pipe) PostedRaw() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.posted...)
}

// Evaluated returns every evaluated expression.
func (p *Pipe) Evaluated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evaluated...)
}

// Clicks returns selectors clicked through ClickPipe.
func (p *Pipe) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// ClickPipe is a Pipe that also implements transport.Clicker.
type ClickPipe struct {
	*Pipe
}

func (c *ClickPipe) Click(_ context.Context, selector string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicks = append(c.clicks, selector)
	return c.clickErr
}
