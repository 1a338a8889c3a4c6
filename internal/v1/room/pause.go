package room

import (
	"context"
	"time"

	"github.com/verlyn13/dicee-sub002/internal/v1/alarm"
)

// onConnectionCountChanged implements spec section 4.6 step 2 and step 4:
// call this after every connect/disconnect while status is playing or
// paused. It never sets status=paused directly -- that only happens once
// the debounce has fired and found the room still empty (step 3).
func (r *Room) onConnectionCountChanged(ctx context.Context) {
	connected := r.connectedSeatCount()

	switch r.status {
	case StatusPlaying:
		if connected == 0 {
			if _, err := r.alarms.Schedule(ctx, alarm.PauseDebounce, string(r.code), time.Now().Add(r.cfg.PauseDebounce), nil); err != nil {
				r.emit.EmitLevel(ctx, "error", "error.alarm.schedule_failed", map[string]any{
					"kind":  InternalAlarmDispatchFailed,
					"error": err.Error(),
				})
			}
		}
	case StatusPaused:
		if connected > 0 {
			r.resumeFromPause(ctx)
		}
	}
}

// onPauseDebounceFired is step 3: recount, and only now transition to
// paused if the room is still empty of connected players.
func (r *Room) onPauseDebounceFired(ctx context.Context) {
	if r.status != StatusPlaying {
		return
	}
	if r.connectedSeatCount() > 0 {
		return
	}

	now := time.Now()
	r.status = StatusPaused
	r.pausedAt = now

	if _, err := r.alarms.Schedule(ctx, alarm.PauseTimeout, string(r.code), now.Add(r.cfg.PauseTimeout), nil); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.schedule_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}

	r.broadcast(ctx, EventGamePaused, nil, allInRoom())
	r.notifyRoomStatus(ctx)
	_ = r.persistRoom(ctx)
}

// resumeFromPause is step 4.
func (r *Room) resumeFromPause(ctx context.Context) {
	if err := r.alarms.CancelWhere(ctx, alarm.PauseTimeout, string(r.code)); err != nil {
		r.emit.EmitLevel(ctx, "error", "error.alarm.cancel_failed", map[string]any{
			"kind":  InternalAlarmDispatchFailed,
			"error": err.Error(),
		})
	}
	r.status = StatusPlaying
	r.pausedAt = time.Time{}

	r.broadcast(ctx, EventGameResumed, nil, allInRoom())
	r.notifyRoomStatus(ctx)
	_ = r.persistRoom(ctx)
}

// onPauseTimeoutFired is step 5: abandon the room, release every seat, and
// evict any remaining spectator sockets with close code 1000.
func (r *Room) onPauseTimeoutFired(ctx context.Context) {
	if r.status != StatusPaused {
		return
	}

	r.status = StatusAbandoned
	for uid := range r.seats {
		r.releaseSeat(ctx, uid, "timeout")
		r.notifyUserRoomStatus(ctx, uid, "left")
	}

	// Spectators get the game-over notice before their sockets close, then
	// the remaining players get it as a room-wide event.
	r.broadcast(ctx, EventGameOver, map[string]any{"reason": "abandoned"}, spectatorsOnly())
	for uid, client := range r.connections {
		if client.Role == RoleSpectator {
			client.closeWithCode(1000, "game abandoned")
			delete(r.connections, uid)
		}
	}
	r.broadcast(ctx, EventGameOver, map[string]any{"reason": "abandoned"}, playersOnly())

	r.notifyRoomStatus(ctx)
	_ = r.persistRoom(ctx)
	_ = r.persistSeats(ctx)
}
