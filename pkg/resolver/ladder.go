package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/webscript"
)

// Join methods.
const (
	MethodAPI   = "api"
	MethodUI    = "ui"
	MethodLink  = "link"
	MethodNone  = "none"
	MethodError = "error"
)

// JoinOutcome reports how a join attempt ended.
type JoinOutcome struct {
	ChannelID string `json:"channelId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Method    string `json:"method"`
}

// Strategy is one way of joining a channel. An outcome without Success
// means the strategy did not apply and the ladder moves on.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, channelID string) (JoinOutcome, error)
}

// Ladder is an ordered list of strategies.
type Ladder []Strategy

// Run tries each strategy in order and returns the first success.
func (l Ladder) Run(ctx context.Context, log *logger.Logger, channelID string, lang language.Tag) JoinOutcome {
	for _, s := range l {
		if err := ctx.Err(); err != nil {
			return JoinOutcome{ChannelID: channelID, Error: err.Error(), Method: MethodError}
		}

		out, err := s.Attempt(ctx, channelID)
		if err != nil {
			log.Warn("Join strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("channel_id", channelID),
				zap.Error(err))
			continue
		}
		if out.Success {
			out.ChannelID = channelID
			log.Info("Joined channel",
				zap.String("strategy", s.Name()),
				zap.String("channel_id", channelID),
				zap.String("method", out.Method))
			return out
		}
		log.Debug("Join strategy did not apply", zap.String("strategy", s.Name()))
	}

	return JoinOutcome{
		ChannelID: channelID,
		Error:     apperr.Text(apperr.MsgJoinNotFound, lang),
		Method:    MethodNone,
	}
}

// LadderOptions tunes the default strategies.
type LadderOptions struct {
	// Marker is the attribute used to tag a found join control.
	Marker string
	// LinkSettle is how long the link strategy waits before checking.
	LinkSettle time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
}

// DefaultLadder returns API discovery, DOM automation, then link navigation.
func DefaultLadder(page Page, opts LadderOptions) Ladder {
	if opts.Marker == "" {
		opts.Marker = "data-tgbridge-join"
	}
	if opts.LinkSettle <= 0 {
		opts.LinkSettle = 3 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return Ladder{
		&APIDiscovery{Page: page},
		&DOMAutomation{Page: page, Marker: opts.Marker},
		&LinkNavigation{Page: page, Settle: opts.LinkSettle, Sleep: opts.Sleep},
	}
}

// APIDiscovery looks for a client object in the page exposing a join-like
// method and calls it.
type APIDiscovery struct {
	Page Page
}

func (s *APIDiscovery) Name() string { return "api_discovery" }

func (s *APIDiscovery) Attempt(ctx context.Context, channelID string) (JoinOutcome, error) {
	var res webscript.JoinAPIResult
	probe := webscript.Probe{Name: webscript.ProbeJoinAPI, Args: webscript.ChannelArgs{ChannelID: channelID}}
	if err := s.Page.Evaluate(ctx, probe, &res); err != nil {
		return JoinOutcome{}, err
	}
	if res.Attempted && !res.Success {
		return JoinOutcome{}, fmt.Errorf("join api call failed: %s", res.Error)
	}
	return JoinOutcome{Success: res.Success, Method: MethodAPI}, nil
}

// DOMAutomation clicks a rendered join control, falling back to invite
// links.
type DOMAutomation struct {
	Page   Page
	Marker string
}

func (s *DOMAutomation) Name() string { return "dom_automation" }

func (s *DOMAutomation) Attempt(ctx context.Context, _ string) (JoinOutcome, error) {
	var found webscript.FindControlResult
	probe := webscript.Probe{Name: webscript.ProbeFindJoinControl, Args: webscript.FindControlArgs{Marker: s.Marker}}
	if err := s.Page.Evaluate(ctx, probe, &found); err != nil {
		return JoinOutcome{}, err
	}
	if !found.Found {
		return JoinOutcome{}, nil
	}

	native, err := s.Page.Click(ctx, found.Selector)
	if native {
		if err != nil {
			return JoinOutcome{}, err
		}
		return JoinOutcome{Success: true, Method: MethodUI}, nil
	}

	var clicked webscript.ClickResult
	click := webscript.Probe{Name: webscript.ProbeClick, Args: webscript.ClickArgs{Selector: found.Selector}}
	if err := s.Page.Evaluate(ctx, click, &clicked); err != nil {
		return JoinOutcome{}, err
	}
	return JoinOutcome{Success: clicked.Clicked, Method: MethodUI}, nil
}

// LinkNavigation opens the public channel link in a hidden frame and then
// checks membership.
type LinkNavigation struct {
	Page   Page
	Settle time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
}

func (s *LinkNavigation) Name() string { return "link_navigation" }

func (s *LinkNavigation) Attempt(ctx context.Context, channelID string) (JoinOutcome, error) {
	probe := webscript.Probe{
		Name: webscript.ProbeOpenLink,
		Args: webscript.OpenLinkArgs{ChannelID: channelID, SettleMS: int(s.Settle / time.Millisecond)},
	}
	if err := s.Page.Evaluate(ctx, probe, nil); err != nil {
		return JoinOutcome{}, err
	}
	if err := s.Sleep(ctx, s.Settle); err != nil {
		return JoinOutcome{}, err
	}

	joined, err := CheckJoinStatus(ctx, s.Page, channelID)
	if err != nil {
		return JoinOutcome{}, err
	}
	return JoinOutcome{Success: joined, Method: MethodLink}, nil
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
