package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownKind is returned by Parse for well-formed messages whose type
// is not recognized.
var ErrUnknownKind = errors.New("unknown message kind")

// Inbound is a message received from the embedded side.
type Inbound struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	// ChannelID mirrors the top-level channelId some messages carry
	// outside of data.
	ChannelID ID     `json:"channelId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Outbound is a message delivered to the embedded dispatcher's listener.
type Outbound struct {
	Type      Kind   `json:"type"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Parse decodes a raw inbound payload. A payload that is not a JSON object
// with a string type fails; an unrecognized type returns the decoded
// message together with ErrUnknownKind.
func Parse(raw []byte) (Inbound, error) {
	var msg Inbound
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return msg, errors.New("empty payload")
	}

	// Some WebView shells double-encode: the payload is a JSON string
	// holding the JSON object.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return msg, fmt.Errorf("decoding message: %w", err)
		}
		raw = []byte(inner)
	}

	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decoding message: %w", err)
	}
	if msg.Type == "" {
		return msg, errors.New("message has no type")
	}

	msg.Type = normalize(msg.Type)
	if !msg.Type.IsInbound() {
		return msg, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Type)
	}
	return msg, nil
}

// Decode unmarshals the message data into out. Absent or null data leaves
// out untouched and reports false.
func (m Inbound) Decode(out any) (bool, error) {
	if len(m.Data) == 0 || bytes.Equal(bytes.TrimSpace(m.Data), []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return false, fmt.Errorf("decoding %s data: %w", m.Type, err)
	}
	return true, nil
}

// Channel returns the channel id the message refers to, looking at the
// top-level field first and then at data.channelId.
func (m Inbound) Channel() string {
	if m.ChannelID != "" {
		return m.ChannelID.String()
	}
	var ref ChannelRef
	if ok, err := m.Decode(&ref); ok && err == nil {
		return ref.ChannelID.String()
	}
	return ""
}

// Encode serializes an outbound message.
func (o Outbound) Encode() ([]byte, error) {
	if o.Type == "" {
		return nil, errors.New("outbound message has no type")
	}
	return json.Marshal(o)
}

// ID accepts a JSON string or number. Telegram user and chat ids arrive in
// either form depending on the web client build.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }
