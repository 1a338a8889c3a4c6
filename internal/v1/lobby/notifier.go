// Package lobby implements the External Notifier (component C9): the room
// actor's one-way notification path to the lobby service, telling it when a
// room's status changes (e.g. seats filled/vacated, game started/ended) or
// when a specific user's room membership changes (they joined, disconnected,
// or left). Delivery is best-effort: retried with bounded
// exponential backoff, then dropped and logged rather than blocking the
// room actor's event loop.
package lobby

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/verlyn13/dicee-sub002/internal/v1/logging"
	"github.com/verlyn13/dicee-sub002/internal/v1/metrics"
)

// BusService is the transport the Notifier drives. internal/v1/bus.Service
// satisfies this directly; tests use a fake.
type BusService interface {
	Publish(ctx context.Context, roomCode, event string, payload any, senderID string) error
	PublishDirect(ctx context.Context, targetUserID, event string, payload any, senderID string) error
}

// RoomStatus is the payload sent on room-status notifications.
type RoomStatus struct {
	RoomCode    string `json:"roomCode"`
	Phase       string `json:"phase"`
	SeatedCount int    `json:"seatedCount"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// UserRoomStatus is the payload sent on user-status notifications.
type UserRoomStatus struct {
	UserID   string `json:"userId"`
	RoomCode string `json:"roomCode"`
	Status   string `json:"status"` // "joined", "disconnected", or "left"
}

// Notifier retries each notification with bounded exponential backoff
// before giving up, logging error.lobby.notify.failed and moving on.
type Notifier struct {
	bus       BusService
	senderID  string
	maxElapsed time.Duration
}

// New builds a Notifier. senderID identifies this room actor instance in
// outgoing envelopes (echo suppression for any collaborator subscribed to
// the same channel). maxElapsed bounds total retry time before a
// notification is dropped; the caller typically derives it from the
// deployment's tolerance for lobby staleness (a few seconds is plenty since
// nothing in the room actor blocks on delivery).
func New(bus BusService, senderID string, maxElapsed time.Duration) *Notifier {
	if maxElapsed <= 0 {
		maxElapsed = 5 * time.Second
	}
	return &Notifier{bus: bus, senderID: senderID, maxElapsed: maxElapsed}
}

// NotifyRoomStatus tells the lobby about a room-level status change.
func (n *Notifier) NotifyRoomStatus(ctx context.Context, status RoomStatus) {
	n.notify(ctx, "room.status", status, func() error {
		return n.bus.Publish(ctx, status.RoomCode, "room.status", status, n.senderID)
	})
}

// NotifyUserRoomStatus tells the lobby about one user's room-membership
// change.
func (n *Notifier) NotifyUserRoomStatus(ctx context.Context, status UserRoomStatus) {
	n.notify(ctx, "user.status", status, func() error {
		return n.bus.PublishDirect(ctx, status.UserID, "user.status", status, n.senderID)
	})
}

func (n *Notifier) notify(ctx context.Context, event string, payload any, op func() error) {
	boundedOp := func() (struct{}, error) {
		if err := op(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, boundedOp,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(n.maxElapsed),
	)

	if err != nil {
		metrics.LobbyNotifyAttempts.WithLabelValues("dropped").Inc()
		logging.Error(ctx, "error.lobby.notify.failed",
			zap.String("event", event),
			zap.Any("payload", payload),
			zap.Error(err),
		)
		return
	}
	metrics.LobbyNotifyAttempts.WithLabelValues("delivered").Inc()
}
