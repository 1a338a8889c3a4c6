package room

import (
	"context"
)

// connect implements spec section 4.4's connection-time seat resolution and
// emits the CONNECTED snapshot plus a PLAYER_JOINED/reclaim broadcast to the
// rest of the room.
func (r *Room) connect(ctx context.Context, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	assignment, err := r.assignSeat(ctx, client.UserID, client.DisplayName)
	if err != nil {
		return err
	}
	client.Role = assignment.role

	// The arrival is announced before the new connection is registered, so
	// PLAYER_JOINED reaches only the rest of the room.
	switch {
	case assignment.reclaimed:
		r.broadcast(ctx, EventPlayerJoined, map[string]any{
			"playerId": client.UserID,
			"reclaim":  true,
		}, allInRoom())
		if r.status == StatusPlaying || r.status == StatusPaused {
			r.onConnectionCountChanged(ctx)
		}
		r.notifyUserRoomStatus(ctx, client.UserID, "joined")
	case assignment.role == RolePlayer:
		r.broadcast(ctx, EventPlayerJoined, map[string]any{
			"playerId":    client.UserID,
			"displayName": client.DisplayName,
		}, allInRoom())
		r.notifyUserRoomStatus(ctx, client.UserID, "joined")
	}

	r.connections[client.UserID] = client
	r.broadcast(ctx, EventConnected, r.snapshot(), singleUser(client.UserID))

	r.notifyRoomStatus(ctx)
	return r.persistSeats(ctx)
}

// snapshot builds the CONNECTED payload: room metadata, seat list, current
// game state if any, and the chat backlog (spec section 6.3).
func (r *Room) snapshot() map[string]any {
	players := make([]map[string]any, 0, len(r.seats))
	for _, s := range r.orderedSeats() {
		players = append(players, map[string]any{
			"userId":      s.UserID,
			"displayName": s.DisplayName,
			"turnOrder":   s.TurnOrder,
			"isConnected": s.IsConnected,
			"isHost":      s.UserID == r.hostID,
			"isAI":        s.IsAI,
		})
	}

	out := map[string]any{
		"roomCode": r.code,
		"status":   r.status,
		"hostId":   r.hostID,
		"players":  players,
		"chat":     r.chat.Messages,
	}
	if r.game != nil {
		out["game"] = gameSnapshot(r.game)
	}
	return out
}
