package room

import (
	"context"

	"k8s.io/utils/set"

	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
)

// target describes who a broadcast should reach: every connection, every
// connection holding one of a set of roles, or a single user.
type target struct {
	roles     set.Set[Role]
	singleton UserID
}

func allInRoom() target           { return target{} }
func playersOnly() target         { return target{roles: set.New[Role](RolePlayer)} }
func spectatorsOnly() target      { return target{roles: set.New[Role](RoleSpectator)} }
func singleUser(id UserID) target { return target{singleton: id} }

// broadcast enqueues event on every connection that matches t, following
// the teacher's pattern of a best-effort, non-blocking send per socket: a
// client with a full send buffer drops the message rather than stalling
// every other recipient. Every recipient gets the correlationId of the
// command that caused this broadcast, if ctx carries one (spec section 4.7).
func (r *Room) broadcast(ctx context.Context, event string, payload any, t target) {
	correlationID := instrumentation.CorrelationIDFromContext(ctx)

	r.emit.Emit(ctx, "broadcast.prepare", map[string]any{
		"roomCode":   string(r.code),
		"event":      event,
		"recipients": len(r.connections),
	})

	sent := 0
	for uid, client := range r.connections {
		if t.singleton != "" && uid != t.singleton {
			continue
		}
		if t.roles != nil && !t.roles.Has(client.Role) {
			continue
		}
		client.enqueue(event, payload, correlationID)
		sent++
	}

	r.emit.Emit(ctx, "broadcast.sent", map[string]any{
		"roomCode": string(r.code),
		"event":    event,
		"sent":     sent,
	})
}

// sendTo enqueues event to exactly one connected client, used for replies
// that must carry the triggering command's correlationId.
func (r *Room) sendTo(uid UserID, event string, payload any, correlationID string) {
	if client, ok := r.connections[uid]; ok {
		client.enqueue(event, payload, correlationID)
	}
}
