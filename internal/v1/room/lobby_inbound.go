package room

import (
	"context"
	"encoding/json"

	"github.com/verlyn13/dicee-sub002/internal/v1/bus"
	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
)

// lobbyInviteResponse is the wire shape of a lobby-forwarded invite
// accept/decline request. The invitee responds from the lobby UI, which has
// no socket into this room, so the response arrives over the bus instead of
// as an InboundMessage.
type lobbyInviteResponse struct {
	UserID   UserID `json:"userId"`
	InviteID string `json:"inviteId"`
}

const (
	lobbyEventAcceptInvite  = "ACCEPT_INVITE"
	lobbyEventDeclineInvite = "DECLINE_INVITE"
)

// handleLobbyMessage is the bus.Service.Subscribe callback registered for
// this room's channel. Spec section 4.9 limits inbound lobby traffic to
// invite-targeting requests; anything else is ignored.
func (r *Room) handleLobbyMessage(payload bus.PubSubPayload) {
	var p lobbyInviteResponse
	if err := json.Unmarshal(payload.Payload, &p); err != nil {
		return
	}

	ctx := instrumentation.WithRoomCode(
		instrumentation.WithUserID(context.Background(), string(p.UserID)),
		string(r.code),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch payload.Event {
	case lobbyEventAcceptInvite:
		err = r.acceptInvite(ctx, p.UserID, p.InviteID)
	case lobbyEventDeclineInvite:
		err = r.declineInvite(ctx, p.UserID, p.InviteID)
	default:
		return
	}

	if err != nil {
		r.emit.EmitLevel(ctx, "warn", "state.transition.rejected", map[string]any{
			"userId":   string(p.UserID),
			"roomCode": string(r.code),
			"event":    payload.Event,
			"error":    err.Error(),
		})
		return
	}

	if r.isEmpty() && r.onEmpty != nil {
		r.onEmpty(r.code)
	}
}
