// Package wsconn links the transport to a WebView shell that attaches over
// a websocket. The shell relays page messages as text frames, delivers
// host frames to the page, and answers __eval frames.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tgbridge/pkg/logger"
)

const (
	frameEval       = "__eval"
	frameEvalResult = "__evalResult"

	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// ErrClosed is returned after the shell disconnected.
var ErrClosed = errors.New("websocket link closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type evalFrame struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Expression string `json:"expression"`
}

type evalResultFrame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
	Error string          `json:"error,omitempty"`
}

// Conn is a transport.Conn backed by one shell websocket.
type Conn struct {
	log  *logger.Logger
	ws   *websocket.Conn
	send chan []byte

	inbound chan []byte
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]chan evalResultFrame

	closeOnce sync.Once
}

// Upgrade accepts a shell connection on w.
func Upgrade(log *logger.Logger, w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(log, ws), nil
}

// New starts pumping ws.
func New(log *logger.Logger, ws *websocket.Conn) *Conn {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Conn{
		log:     log.Named("wsconn"),
		ws:      ws,
		send:    make(chan []byte, 256),
		inbound: make(chan []byte, 64),
		done:    make(chan struct{}),
		pending: make(map[string]chan evalResultFrame),
	}
	go c.readPump()
	go c.writePump()
	return c
}

func (c *Conn) readPump() {
	defer func() {
		_ = c.Close()
		close(c.inbound)
	}()

	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Shell read error", zap.Error(err))
			}
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &head) == nil && head.Type == frameEvalResult {
			var res evalResultFrame
			if err := json.Unmarshal(message, &res); err == nil {
				c.complete(res)
			}
			continue
		}

		select {
		case c.inbound <- message:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("Shell write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) enqueue(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post relays an encoded message to the page.
func (c *Conn) Post(ctx context.Context, payload []byte) error {
	return c.enqueue(ctx, payload)
}

// Evaluate asks the shell to run expression and waits for its answer.
func (c *Conn) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	id := uuid.NewString()
	reply := make(chan evalResultFrame, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	frame, err := json.Marshal(evalFrame{Type: frameEval, ID: id, Expression: expression})
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(ctx, frame); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		if res.Error != "" {
			return nil, errors.New("script error: " + res.Error)
		}
		if len(res.Value) == 0 {
			return json.RawMessage("null"), nil
		}
		return res.Value, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) complete(res evalResultFrame) {
	c.mu.Lock()
	ch, ok := c.pending[res.ID]
	delete(c.pending, res.ID)
	c.mu.Unlock()
	if !ok {
		c.log.Debug("Eval result without caller", zap.String("id", res.ID))
		return
	}
	select {
	case ch <- res:
	default:
	}
}

// Inbound yields page messages relayed by the shell.
func (c *Conn) Inbound() <-chan []byte { return c.inbound }

// Done is closed once the link is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close ends the link.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
