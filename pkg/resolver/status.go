package resolver

import (
	"context"
	"errors"

	"tgbridge/pkg/protocol"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/webscript"
)

// CheckJoinStatus asks the page whether the user is a member of channelID.
// The answer is a heuristic. A ready listener answers through a round
// trip; otherwise the status probe is evaluated directly.
func CheckJoinStatus(ctx context.Context, page Page, channelID string) (bool, error) {
	if page.IsReady() {
		reply, err := page.Request(ctx, protocol.CheckJoinStatus(channelID, ""))
		if err == nil {
			var status protocol.JoinStatus
			if _, err := reply.Decode(&status); err != nil {
				return false, err
			}
			return status.IsJoined, nil
		}
		if !errors.Is(err, transport.ErrDropped) {
			return false, err
		}
	}

	var res webscript.JoinStatusResult
	probe := webscript.Probe{Name: webscript.ProbeJoinStatus, Args: webscript.ChannelArgs{ChannelID: channelID}}
	if err := page.Evaluate(ctx, probe, &res); err != nil {
		return false, err
	}
	return res.IsJoined, nil
}

// CheckJoinStatus runs the membership check against the engine's page.
func (e *Engine) CheckJoinStatus(ctx context.Context, channelID string) (bool, error) {
	return CheckJoinStatus(ctx, e.page, channelID)
}
