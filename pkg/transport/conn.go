// Package transport carries typed messages between the host and the
// dispatcher inside the embedded web client. It tracks readiness, defers
// critical commands until the embedded side announces itself, bounds round
// trips with a timeout, and owns the app-tabs visibility state.
package transport

import (
	"context"
	"encoding/json"
)

// Conn is a link to one embedded document.
type Conn interface {
	// Post delivers an encoded outbound message to the persistent listener.
	Post(ctx context.Context, payload []byte) error

	// Evaluate runs a one-shot expression in the page and returns its JSON
	// value. It does not depend on the listener being installed.
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)

	// Inbound yields raw messages posted by the embedded side. It is closed
	// when the link goes away.
	Inbound() <-chan []byte

	Close() error
}

// Clicker is implemented by links that can dispatch native pointer events.
type Clicker interface {
	Click(ctx context.Context, selector string) error
}

// Navigator is implemented by links that can load a URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}
