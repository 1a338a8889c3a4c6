package room

import (
	"context"
	"fmt"
	"time"

	"github.com/verlyn13/dicee-sub002/internal/v1/alarm"
)

// seatAssignmentResult is what connect() uses to decide which CONNECTED
// variant and which broadcast events to send.
type seatAssignmentResult struct {
	role      Role
	seat      *Seat
	reclaimed bool
	reason    string
}

// assignSeat resolves a newly connecting user into either a fresh player
// seat, a reclaimed seat, or a spectator slot, per spec section 4.4.
func (r *Room) assignSeat(ctx context.Context, userID UserID, displayName string) (seatAssignmentResult, error) {
	if seat, ok := r.seats[userID]; ok {
		return r.reclaimSeat(ctx, seat, displayName)
	}

	if len(r.seats) < r.cfg.MaxPlayers && r.status == StatusWaiting {
		seat := &Seat{
			UserID:      userID,
			DisplayName: displayName,
			TurnOrder:   len(r.seats),
			IsConnected: true,
		}
		r.seats[userID] = seat
		return seatAssignmentResult{role: RolePlayer, seat: seat}, nil
	}

	if !r.cfg.SpectatorsAllowed {
		return seatAssignmentResult{}, newCommandError(ErrRoomFull, "room %s has no seats or spectator slots available", r.code)
	}

	return seatAssignmentResult{role: RoleSpectator}, nil
}

// reclaimSeat implements the seat-reclaim window (spec section 4.4): a seat
// is reclaimable only for the half-open interval [reserve, deadline) (spec
// section 8) -- a reconnect landing exactly on the deadline is too late, the
// same as one a moment after it. Past the window, the caller falls back to
// a spectator slot if one is available.
func (r *Room) reclaimSeat(ctx context.Context, seat *Seat, displayName string) (seatAssignmentResult, error) {
	if seat.IsConnected {
		return seatAssignmentResult{}, newCommandError(ErrAlreadySeated, "user %s is already connected to this seat", seat.UserID)
	}

	now := time.Now()
	if seat.ReconnectDeadline != nil && !now.Before(*seat.ReconnectDeadline) {
		delete(r.seats, seat.UserID)
		if !r.cfg.SpectatorsAllowed {
			return seatAssignmentResult{}, newCommandError(ErrRoomFull, "seat reclaim window for %s has passed and spectating is disabled", seat.UserID)
		}
		return seatAssignmentResult{role: RoleSpectator, reason: "deadline_passed"}, nil
	}

	if err := r.alarms.CancelWhere(ctx, alarm.SeatExpiration, string(seat.UserID)); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.cancel_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}

	seat.IsConnected = true
	seat.ReconnectDeadline = nil
	if displayName != "" {
		seat.DisplayName = displayName
	}
	return seatAssignmentResult{role: RolePlayer, seat: seat, reclaimed: true}, nil
}

// markDisconnected flags seat as vacated and schedules its SEAT_EXPIRATION
// alarm, per spec section 4.4. Called while still holding r.mu.
func (r *Room) markDisconnected(ctx context.Context, seat *Seat) {
	seat.IsConnected = false
	deadline := time.Now().Add(r.cfg.ReclaimWindow)
	seat.ReconnectDeadline = &deadline

	if _, err := r.alarms.Schedule(ctx, alarm.SeatExpiration, string(seat.UserID), deadline, nil); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.schedule_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}
}

// releaseSeat removes a seat outright (timeout expiry, deliberate leave, or
// a host kick) and renumbers turn order so the game's turn index keeps
// pointing at a live seat.
func (r *Room) releaseSeat(ctx context.Context, userID UserID, cause string) {
	seat, ok := r.seats[userID]
	if !ok {
		return
	}
	delete(r.seats, userID)

	if cause != "timeout" {
		if err := r.alarms.CancelWhere(ctx, alarm.SeatExpiration, string(userID)); err != nil {
			r.emit.EmitLevel(ctx, "error", "error.alarm.cancel_failed", map[string]any{
				"kind":  InternalAlarmDispatchFailed,
				"error": err.Error(),
			})
		}
	}

	ordered := r.orderedSeats()
	for i, s := range ordered {
		s.TurnOrder = i
	}

	if r.game != nil && seat.TurnOrder < r.game.TurnIndex {
		r.game.TurnIndex--
	}
	if r.game != nil && len(ordered) > 0 {
		r.game.TurnIndex = r.game.TurnIndex % len(ordered)
	}

	r.emit.Emit(ctx, "seat.released", map[string]any{
		"roomCode": string(r.code),
		"userId":   string(userID),
		"cause":    cause,
	})
}

// connectedSeatCount returns the number of seats whose owner currently has
// a live socket, the figure the pause controller recounts on every change.
func (r *Room) connectedSeatCount() int {
	n := 0
	for _, s := range r.seats {
		if s.IsConnected {
			n++
		}
	}
	return n
}

func (r *Room) seatAtTurn(index int) (*Seat, error) {
	ordered := r.orderedSeats()
	if len(ordered) == 0 {
		return nil, fmt.Errorf("room %s has no seated players", r.code)
	}
	return ordered[index%len(ordered)], nil
}
