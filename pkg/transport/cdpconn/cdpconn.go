// Package cdpconn links the transport to a web client page driven through
// the Chrome DevTools Protocol.
package cdpconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/dom"
	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"go.uber.org/zap"

	"tgbridge/pkg/logger"
	"tgbridge/pkg/webscript"
)

// Options configures how the browser is reached.
type Options struct {
	ChromePath string
	// DebugURL attaches to a running browser. Empty launches one.
	DebugURL  string
	DebugPort int
	Headless  bool
	UserData  string
	// StartURL is loaded once the dispatcher is installed.
	StartURL string
	// LaunchWait bounds how long a launched browser may take to accept
	// DevTools connections.
	LaunchWait time.Duration
}

// Conn is a transport.Conn backed by one browser page.
type Conn struct {
	log    *logger.Logger
	client *cdp.Client
	rpc    *rpcc.Conn
	cmd    *exec.Cmd

	inbound chan []byte
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// Dial connects to (or launches) the browser, installs the dispatcher and
// loads StartURL.
func Dial(ctx context.Context, log *logger.Logger, opts Options) (*Conn, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("cdp")
	if opts.DebugPort == 0 {
		opts.DebugPort = 9222
	}
	if opts.LaunchWait <= 0 {
		opts.LaunchWait = 15 * time.Second
	}

	c := &Conn{log: log, inbound: make(chan []byte, 64)}

	debugURL := opts.DebugURL
	if debugURL == "" {
		cmd, err := launch(opts)
		if err != nil {
			return nil, err
		}
		c.cmd = cmd
		debugURL = "http://127.0.0.1:" + strconv.Itoa(opts.DebugPort)
		log.Info("Started Chrome", zap.String("path", cmd.Path), zap.Int("pid", cmd.Process.Pid))
	}

	pt, err := pageTarget(ctx, debugURL, opts.LaunchWait)
	if err != nil {
		c.kill()
		return nil, err
	}

	rpc, err := rpcc.DialContext(ctx, pt.WebSocketDebuggerURL)
	if err != nil {
		c.kill()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	c.rpc = rpc
	c.client = cdp.NewClient(rpc)

	if err := c.install(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	if opts.StartURL != "" {
		if err := c.Navigate(ctx, opts.StartURL); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	log.Info("Browser link established", zap.String("target", pt.URL))
	return c, nil
}

func pageTarget(ctx context.Context, debugURL string, wait time.Duration) (*devtool.Target, error) {
	devt := devtool.New(debugURL)
	deadline := time.Now().Add(wait)
	for {
		pt, err := devt.Get(ctx, devtool.Page)
		if err == nil {
			return pt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to get page target: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// install registers the inbound binding and the dispatcher for every
// document the page loads from now on.
func (c *Conn) install(ctx context.Context) error {
	if err := c.client.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("enabling runtime: %w", err)
	}
	if err := c.client.Page.Enable(ctx); err != nil {
		return fmt.Errorf("enabling page: %w", err)
	}
	if err := c.client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(webscript.BindingName)); err != nil {
		return fmt.Errorf("adding binding: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	calls, err := c.client.Runtime.BindingCalled(streamCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to binding calls: %w", err)
	}
	c.cancel = cancel
	go c.pump(streamCtx, calls)

	script := page.NewAddScriptToEvaluateOnNewDocumentArgs(webscript.Dispatcher())
	if _, err := c.client.Page.AddScriptToEvaluateOnNewDocument(ctx, script); err != nil {
		return fmt.Errorf("installing dispatcher: %w", err)
	}
	return nil
}

func (c *Conn) pump(ctx context.Context, calls runtime.BindingCalledClient) {
	defer close(c.inbound)
	defer calls.Close()
	for {
		ev, err := calls.Recv()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.log.Debug("Binding stream ended", zap.Error(err))
			}
			return
		}
		if ev.Name != webscript.BindingName {
			continue
		}
		select {
		case c.inbound <- []byte(ev.Payload):
		case <-ctx.Done():
			return
		}
	}
}

// Navigate loads url and waits for DOMContentLoaded.
func (c *Conn) Navigate(ctx context.Context, url string) error {
	domLoaded, err := c.client.Page.DOMContentEventFired(ctx)
	if err != nil {
		return fmt.Errorf("waiting for page load: %w", err)
	}
	defer domLoaded.Close()

	nav, err := c.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if nav.ErrorText != nil && *nav.ErrorText != "" {
		return fmt.Errorf("failed to navigate: %s", *nav.ErrorText)
	}

	if _, err := domLoaded.Recv(); err != nil {
		c.log.Warn("Failed to wait for DOMContentLoaded", zap.Error(err))
	}
	return nil
}

// Post hands payload to the dispatcher's receive entry point.
func (c *Conn) Post(ctx context.Context, payload []byte) error {
	_, err := c.Evaluate(ctx, webscript.ReceiveExpression(payload))
	return err
}

// Evaluate runs expression, awaiting promises, and returns its value.
func (c *Conn) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	args := runtime.NewEvaluateArgs(expression).
		SetReturnByValue(true).
		SetAwaitPromise(true)

	result, err := c.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}
	if result.ExceptionDetails != nil {
		return nil, fmt.Errorf("script error: %s", exceptionText(result.ExceptionDetails))
	}
	if len(result.Result.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return result.Result.Value, nil
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != nil {
		return *d.Exception.Description
	}
	return d.Text
}

// Click presses and releases the left button at the center of the first
// element matching selector.
func (c *Conn) Click(ctx context.Context, selector string) error {
	doc, err := c.client.DOM.GetDocument(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	node, err := c.client.DOM.QuerySelector(ctx, dom.NewQuerySelectorArgs(doc.Root.NodeID, selector))
	if err != nil {
		return fmt.Errorf("failed to find element: %w", err)
	}
	if node.NodeID == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}

	box, err := c.client.DOM.GetBoxModel(ctx, dom.NewGetBoxModelArgs().SetNodeID(node.NodeID))
	if err != nil {
		return fmt.Errorf("failed to get element position: %w", err)
	}

	border := box.Model.Border
	x := (border[0] + border[2]) / 2
	y := (border[1] + border[5]) / 2

	for _, typ := range []string{"mousePressed", "mouseReleased"} {
		ev := input.NewDispatchMouseEventArgs(typ, x, y).
			SetButton(input.MouseButtonLeft).
			SetClickCount(1)
		if err := c.client.Input.DispatchMouseEvent(ctx, ev); err != nil {
			return fmt.Errorf("failed to dispatch %s: %w", typ, err)
		}
	}
	return nil
}

// Inbound yields payloads the page passed to the binding.
func (c *Conn) Inbound() <-chan []byte { return c.inbound }

// Close drops the DevTools connection and stops a launched browser.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.rpc != nil {
			err = c.rpc.Close()
		}
		c.kill()
	})
	return err
}

func (c *Conn) kill() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
}
