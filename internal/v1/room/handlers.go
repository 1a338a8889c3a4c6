package room

import (
	"context"
	"encoding/json"

	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
)

// dispatch decodes one inbound command and routes it to the matching
// handler under the room's lock, satisfying the roomer interface client.go
// depends on. Every branch either mutates state and broadcasts, or returns
// a CommandError that is relayed only to the originating socket.
func (r *Room) dispatch(ctx context.Context, client *Client, msg InboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Every event this dispatch causes -- downstream instrumentation and
	// outbound broadcasts alike -- carries the triggering command's
	// correlationId plus the acting room/user, per spec section 4.7.
	ctx = instrumentation.WithCorrelationID(
		instrumentation.WithRoomCode(
			instrumentation.WithUserID(ctx, string(client.UserID)),
			string(r.code),
		),
		msg.CorrelationID,
	)

	if msg.Type == CmdPing {
		r.sendTo(client.UserID, EventPong, nil, msg.CorrelationID)
		return
	}

	if _, ok := r.connections[client.UserID]; !ok {
		client.sendError(msg.CorrelationID, ErrNotInRoom, "not connected to this room")
		return
	}

	err := r.route(ctx, client, msg)
	if err != nil {
		r.reportError(ctx, client, msg.CorrelationID, err)
		return
	}

	if r.isEmpty() && r.onEmpty != nil {
		r.onEmpty(r.code)
	}
}

func (r *Room) route(ctx context.Context, client *Client, msg InboundMessage) error {
	caller := client.UserID

	switch msg.Type {
	case CmdStartGame:
		return r.startGame(ctx, caller)

	case CmdDiceRoll:
		var p DiceRollPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.diceRoll(ctx, caller, p)

	case CmdCategoryScore:
		var p CategoryScorePayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.categoryScore(ctx, caller, p)

	case CmdRematch:
		return r.rematch(ctx, caller)

	case CmdAddAIPlayer:
		var p AddAIPlayerPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.addAIPlayer(ctx, caller, p)

	case CmdRemoveAIPlayer:
		var p RemoveAIPlayerPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.removeAIPlayer(ctx, caller, p)

	case CmdSendInvite:
		var p InviteTargetPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.createInvite(ctx, caller, p)

	case CmdCancelInvite:
		var p CancelInvitePayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.cancelInvite(ctx, caller, p.InviteID)

	case CmdChat:
		var p ChatPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.addChat(ctx, caller, client.DisplayName, p)

	case CmdQuickChat:
		var p QuickChatPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.addQuickChat(ctx, caller, client.DisplayName, p)

	case CmdReaction:
		var p ReactionPayload
		if err := unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.setReaction(ctx, p)

	case CmdTypingStart:
		r.setTyping(ctx, caller, true)
		return nil

	case CmdTypingStop:
		r.setTyping(ctx, caller, false)
		return nil

	default:
		return newCommandError(ErrInvalidPayload, "unknown command %q", msg.Type)
	}
}

func unmarshal(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return newCommandError(ErrInvalidPayload, "missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return newCommandError(ErrInvalidPayload, "malformed payload: %s", err)
	}
	return nil
}

func (r *Room) reportError(ctx context.Context, client *Client, correlationID string, err error) {
	cmdErr, ok := err.(*CommandError)
	if !ok {
		cmdErr = newCommandError(ErrInternal, "%s", err)
	}
	r.emit.EmitLevel(ctx, "warn", "state.transition.rejected", map[string]any{
		"userId":        string(client.UserID),
		"roomCode":      string(r.code),
		"code":          string(cmdErr.Kind),
		"correlationId": correlationID,
	})
	client.sendError(correlationID, cmdErr.Kind, cmdErr.Message)
}

// handleDisconnect implements spec section 4.5: reserve the seat (or drop
// the spectator slot) unconditionally, never branching on close code or
// reason.
func (r *Room) handleDisconnect(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := instrumentation.WithRoomCode(
		instrumentation.WithUserID(context.Background(), string(client.UserID)),
		string(r.code),
	)

	delete(r.connections, client.UserID)
	r.clearTyping(client.UserID)

	if client.Role == RolePlayer {
		if seat, ok := r.seats[client.UserID]; ok {
			r.markDisconnected(ctx, seat)
			r.broadcast(ctx, EventPlayerDisconnected, map[string]any{"playerId": client.UserID}, allInRoom())
			r.notifyUserRoomStatus(ctx, client.UserID, "disconnected")
			_ = r.persistSeats(ctx)
		}
	}

	if r.status == StatusPlaying || r.status == StatusPaused {
		r.onConnectionCountChanged(ctx)
	}

	if r.isEmpty() && r.onEmpty != nil {
		r.onEmpty(r.code)
	}
}
