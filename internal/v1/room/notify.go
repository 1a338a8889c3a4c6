package room

import (
	"context"

	"github.com/verlyn13/dicee-sub002/internal/v1/lobby"
)

// notifyRoomStatus reports the room's current phase and seat occupancy to
// the lobby. The Notifier already retries internally with bounded backoff
// (a few seconds at most); running it in its own goroutine keeps that wait
// off the room actor's single mutex, since nothing downstream of the
// dispatch depends on delivery succeeding.
func (r *Room) notifyRoomStatus(ctx context.Context) {
	if r.notifier == nil {
		return
	}
	status := lobby.RoomStatus{
		RoomCode:    string(r.code),
		Phase:       string(r.status),
		SeatedCount: len(r.seats),
		MaxPlayers:  r.cfg.MaxPlayers,
	}
	go r.notifier.NotifyRoomStatus(context.WithoutCancel(ctx), status)
}

// notifyUserRoomStatus reports a specific user's membership change to the
// lobby, using the fixed external vocabulary of spec section 4.9: "joined",
// "disconnected", or "left".
func (r *Room) notifyUserRoomStatus(ctx context.Context, userID UserID, status string) {
	if r.notifier == nil {
		return
	}
	s := lobby.UserRoomStatus{
		UserID:   string(userID),
		RoomCode: string(r.code),
		Status:   status,
	}
	go r.notifier.NotifyUserRoomStatus(context.WithoutCancel(ctx), s)
}
