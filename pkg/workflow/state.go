package workflow

import (
	"time"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/resolver"
)

// Phase is the lifecycle position of a channel operation.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Operation names what a workflow run is doing.
type Operation string

const (
	OpInitialize Operation = "initialize"
	OpJoin       Operation = "join"
	OpPreview    Operation = "preview"
	OpStatus     Operation = "status"
)

// State is a snapshot of one channel's workflow. At most one of
// IsLoading, IsReady and a non-empty Error holds.
type State struct {
	ChannelID   string                `json:"channelId"`
	Operation   Operation             `json:"operation,omitempty"`
	Phase       Phase                 `json:"phase"`
	IsLoading   bool                  `json:"isLoading"`
	IsReady     bool                  `json:"isReady"`
	Error       string                `json:"error,omitempty"`
	ErrorCode   apperr.Kind           `json:"errorCode,omitempty"`
	RetryCount  int                   `json:"retryCount"`
	Generation  uint64                `json:"generation"`
	ChannelInfo *resolver.ChannelInfo `json:"channelInfo,omitempty"`
	Method      string                `json:"method,omitempty"`
	IsJoined    bool                  `json:"isJoined,omitempty"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// Callbacks receive the terminal state of a run. Stale runs call nothing.
type Callbacks struct {
	OnSuccess func(State)
	OnError   func(State)
	// OnAlert shows a blocking message, used when the user must log in.
	OnAlert func(message string)
}

func (c Callbacks) success(st State) {
	if c.OnSuccess != nil {
		c.OnSuccess(st)
	}
}

func (c Callbacks) failure(st State) {
	if c.OnError != nil {
		c.OnError(st)
	}
}

func (c Callbacks) alert(msg string) {
	if c.OnAlert != nil {
		c.OnAlert(msg)
	}
}
