package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
	"github.com/verlyn13/dicee-sub002/internal/v1/storage"
)

func testConfig() Config {
	return Config{
		MaxPlayers:        4,
		SpectatorsAllowed: true,
		TurnTimeoutMs:     30_000,
		ReclaimWindow:     300 * time.Millisecond,
		PauseTimeout:      500 * time.Millisecond,
		PauseDebounce:     50 * time.Millisecond,
		InviteTTL:         200 * time.Millisecond,
		MaxChatMessages:   5,
		MaxMessageLen:     280,
	}
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	emitter := instrumentation.NewEmitter(zaptest.NewLogger(t), "room", false)
	facade := storage.NewMemoryFacade(emitter)
	rm := NewRoom("ABC123", "host-1", testConfig(), facade, emitter, nil, nil, nil)
	if err := rm.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return rm
}

// seatPlayer directly seats uid as a player, bypassing the room's lock for
// test setup convenience (callers run single-goroutine).
func seatPlayer(t *testing.T, rm *Room, uid UserID, name string) {
	t.Helper()
	if _, err := rm.assignSeat(context.Background(), uid, name); err != nil {
		t.Fatalf("assignSeat(%s): %v", uid, err)
	}
}
