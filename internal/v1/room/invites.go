package room

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verlyn13/dicee-sub002/internal/v1/alarm"
)

// createInvite implements spec section 4.10's createInvite: only the host,
// only while waiting, one INVITE_EXPIRATION alarm per invite.
func (r *Room) createInvite(ctx context.Context, caller UserID, payload InviteTargetPayload) error {
	if caller != r.hostID {
		return newCommandError(ErrNotHost, "only the host may send invites")
	}
	if r.status != StatusWaiting {
		return newCommandError(ErrInvalidState, "invites can only be sent while the room is waiting")
	}

	inviteID := uuid.NewString()
	expiresAt := time.Now().Add(r.cfg.InviteTTL)
	invite := PendingInvite{
		InviteID:   inviteID,
		FromUserID: caller,
		ToUserID:   payload.TargetUserID,
		ExpiresAt:  expiresAt,
		Status:     InvitePending,
	}
	r.invites[inviteID] = invite

	if _, err := r.alarms.Schedule(ctx, alarm.InviteExpiration, inviteID, expiresAt, nil); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.schedule_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}

	r.broadcast(ctx, EventInviteSent, invite, playersOnly())
	return r.persistInvites(ctx)
}

// cancelInvite handles both an explicit CANCEL_INVITE command and the
// auto-cancel-on-leaving-waiting path (spec section 4.10).
func (r *Room) cancelInvite(ctx context.Context, caller UserID, inviteID string) error {
	invite, ok := r.invites[inviteID]
	if !ok {
		return newCommandError(ErrInviteNotFound, "invite %s not found", inviteID)
	}
	if invite.FromUserID != caller && caller != r.hostID {
		return newCommandError(ErrNotHost, "only the sender or host may cancel this invite")
	}
	return r.retireInvite(ctx, inviteID, InviteCancelled)
}

// acceptInvite admits the invitee into a reserved seat placeholder when the
// invite is still within its TTL, per spec section 4.10. The invitee
// typically accepts from the lobby, before ever opening this room's socket,
// so the placeholder sits exactly like a disconnected player's seat: the
// invitee's eventual connect() reclaims it through the ordinary path.
func (r *Room) acceptInvite(ctx context.Context, caller UserID, inviteID string) error {
	invite, ok := r.invites[inviteID]
	if ok && invite.Status == InviteExpired {
		return newCommandError(ErrInviteExpired, "invite %s has expired", inviteID)
	}
	if !ok || invite.Status != InvitePending {
		return newCommandError(ErrInviteNotFound, "invite %s not found or already resolved", inviteID)
	}
	if invite.ToUserID != caller {
		return newCommandError(ErrAuthFailed, "invite %s is not addressed to this user", inviteID)
	}
	if time.Now().After(invite.ExpiresAt) {
		return newCommandError(ErrInviteExpired, "invite %s has expired", inviteID)
	}

	if err := r.reserveSeatForInvite(ctx, caller); err != nil {
		return err
	}

	invite.Status = InviteAccepted
	r.invites[inviteID] = invite
	if err := r.alarms.CancelWhere(ctx, alarm.InviteExpiration, inviteID); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.cancel_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}
	r.broadcast(ctx, EventInviteAccepted, invite, playersOnly())
	return r.persistInvites(ctx)
}

// reserveSeatForInvite admits caller with a reserved seat placeholder: not
// connected, with a reconnect deadline already running. A no-op if caller
// already holds a seat (e.g. a spectator who was also invited).
func (r *Room) reserveSeatForInvite(ctx context.Context, caller UserID) error {
	if _, ok := r.seats[caller]; ok {
		return nil
	}
	if len(r.seats) >= r.cfg.MaxPlayers {
		return newCommandError(ErrRoomFull, "room %s has no seats available for this invite", r.code)
	}

	deadline := time.Now().Add(r.cfg.ReclaimWindow)
	r.seats[caller] = &Seat{
		UserID:            caller,
		TurnOrder:         len(r.seats),
		IsConnected:       false,
		ReconnectDeadline: &deadline,
	}

	if _, err := r.alarms.Schedule(ctx, alarm.SeatExpiration, string(caller), deadline, nil); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.schedule_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}
	return r.persistSeats(ctx)
}

func (r *Room) declineInvite(ctx context.Context, caller UserID, inviteID string) error {
	invite, ok := r.invites[inviteID]
	if !ok {
		return newCommandError(ErrInviteNotFound, "invite %s not found", inviteID)
	}
	if invite.ToUserID != caller {
		return newCommandError(ErrAuthFailed, "invite %s is not addressed to this user", inviteID)
	}
	return r.retireInvite(ctx, inviteID, InviteDeclined)
}

func (r *Room) retireInvite(ctx context.Context, inviteID string, status InviteStatus) error {
	invite := r.invites[inviteID]
	invite.Status = status
	delete(r.invites, inviteID)

	if err := r.alarms.CancelWhere(ctx, alarm.InviteExpiration, inviteID); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.cancel_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}

	event := EventInviteDeclined
	if status == InviteCancelled {
		event = EventInviteCancelled
	}
	r.broadcast(ctx, event, map[string]any{"inviteId": inviteID, "status": status}, allInRoom())
	return r.persistInvites(ctx)
}

// cancelAllInvites auto-cancels every pending invite, called whenever the
// room transitions out of waiting.
func (r *Room) cancelAllInvites(ctx context.Context) {
	for id, invite := range r.invites {
		if invite.Status == InvitePending {
			_ = r.retireInvite(ctx, id, InviteCancelled)
		}
	}
}
