// Package webscript holds the code that runs inside the embedded web client:
// the message dispatcher installed once per page, and one-shot probes the
// host evaluates directly. Probe arguments are always JSON-encoded and passed
// as a call argument, never spliced into source text.
package webscript

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed js/*.js
var files embed.FS

// BindingName is the function the CDP link exposes for inbound messages.
const BindingName = "__tgbridgeSend"

// Probe is a one-shot function evaluated in the page.
type Probe struct {
	Name string
	Args any
}

// Probe names.
const (
	ProbeJoinAPI         = "join_api"
	ProbeFindJoinControl = "find_join_control"
	ProbeClick           = "click"
	ProbeOpenLink        = "open_link"
	ProbeJoinStatus      = "join_status"
	ProbeCurrentChannel  = "current_channel"
	ProbePermissionIssue = "permission_issue"
	ProbeExploreAPI      = "explore_api"
)

var (
	dispatcherOnce sync.Once
	dispatcher     string
)

// Dispatcher returns the page-side dispatcher source. It is generated once
// per process by inlining the join status probe.
func Dispatcher() string {
	dispatcherOnce.Do(func() {
		status := strings.TrimSpace(mustRead(ProbeJoinStatus))
		dispatcher = strings.Replace(mustRead("bridge"), "/*JOIN_STATUS*/", status, 1)
	})
	return dispatcher
}

// Source returns the function source of a probe.
func Source(name string) (string, error) {
	data, err := files.ReadFile("js/" + name + ".js")
	if err != nil {
		return "", fmt.Errorf("unknown probe %q", name)
	}
	return strings.TrimSpace(string(data)), nil
}

// Expression renders the probe as a self-invoking expression.
func (p Probe) Expression() (string, error) {
	src, err := Source(p.Name)
	if err != nil {
		return "", err
	}
	args := p.Args
	if args == nil {
		args = struct{}{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding %s args: %w", p.Name, err)
	}
	return "(" + src + ")(" + string(encoded) + ")", nil
}

// ReceiveExpression delivers an encoded outbound message to the dispatcher.
func ReceiveExpression(payload []byte) string {
	quoted, _ := json.Marshal(string(payload))
	return "window.__tgbridge && window.__tgbridge.receive(" + string(quoted) + ")"
}

func mustRead(name string) string {
	data, err := files.ReadFile("js/" + name + ".js")
	if err != nil {
		panic(err)
	}
	return string(data)
}
