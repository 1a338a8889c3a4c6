package room

import (
	"context"

	"github.com/verlyn13/dicee-sub002/internal/v1/alarm"
)

// onAlarmFire is the alarm.Queue's OnFire callback. The queue invokes it
// with its own lock released, so re-entering r.mu here is safe; every other
// room handler goes through the same lock, preserving the single-actor
// semantics the spec requires even though alarms fire from a separate
// goroutine.
func (r *Room) onAlarmFire(ctx context.Context, entry alarm.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch entry.Type {
	case alarm.SeatExpiration:
		r.onSeatExpired(ctx, UserID(entry.Key))
	case alarm.PauseDebounce:
		r.onPauseDebounceFired(ctx)
	case alarm.PauseTimeout:
		r.onPauseTimeoutFired(ctx)
	case alarm.TurnTimeout:
		r.onTurnTimeoutFired(ctx, entry)
	case alarm.InviteExpiration:
		r.onInviteExpired(ctx, entry.Key)
	default:
		r.emit.EmitLevel(ctx, "warn", "warn.alarm.unknown_type", map[string]any{
			"type": string(entry.Type),
		})
	}

	if r.isEmpty() && r.onEmpty != nil {
		r.onEmpty(r.code)
	}
}

func (r *Room) onSeatExpired(ctx context.Context, userID UserID) {
	seat, ok := r.seats[userID]
	if !ok || seat.IsConnected {
		return
	}
	r.releaseSeat(ctx, userID, "timeout")
	r.broadcast(ctx, EventPlayerLeft, map[string]any{"playerId": userID, "reason": "seat_expired"}, allInRoom())
	r.notifyUserRoomStatus(ctx, userID, "left")
	_ = r.persistSeats(ctx)
}

// onTurnTimeoutFired implements the AI/auto-score hook: if an AIPolicy is
// configured it supplies the next command; otherwise the turn passes with
// no category scored, per spec section 4.3's "auto-score on expiry policy
// is external" note.
func (r *Room) onTurnTimeoutFired(ctx context.Context, entry alarm.Entry) {
	if r.game == nil || r.status != StatusPlaying {
		return
	}

	if r.aiPolicy != nil {
		view := GameStateView{
			Code:       r.code,
			TurnIndex:  r.game.TurnIndex,
			RollNumber: r.game.RollNumber,
			Dice:       r.game.CurrentDice,
			Kept:       r.game.KeptMask,
		}
		if seat, err := r.seatAtTurn(r.game.TurnIndex); err == nil && seat.IsAI {
			view.Scorecard = r.game.Scorecards[seat.UserID]
			if cmd, ok := r.aiPolicy.NextCommand(ctx, view); ok {
				r.applyAICommand(ctx, seat.UserID, cmd)
				return
			}
		}
	}

	r.advanceTurn()
	r.startTurn(ctx)
	_ = r.persistGame(ctx)
}

func (r *Room) applyAICommand(ctx context.Context, actor UserID, cmd Command) {
	switch cmd.Type {
	case CmdDiceRoll:
		if cmd.Roll != nil {
			_ = r.diceRoll(ctx, actor, *cmd.Roll)
		}
	case CmdCategoryScore:
		if cmd.Score != nil {
			_ = r.categoryScore(ctx, actor, *cmd.Score)
		}
	}
}

func (r *Room) onInviteExpired(ctx context.Context, inviteID string) {
	invite, ok := r.invites[inviteID]
	if !ok || invite.Status != InvitePending {
		return
	}
	invite.Status = InviteExpired
	r.invites[inviteID] = invite
	r.broadcast(ctx, EventInviteExpired, map[string]any{"inviteId": inviteID}, allInRoom())
	_ = r.persistInvites(ctx)
}
