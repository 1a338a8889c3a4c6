package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseAbandon_DebounceThenPauseThenResume(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")
	seatPlayer(t, rm, "u2", "Bob")
	require.NoError(t, rm.startGame(ctx, "host-1"))

	hostSeat := rm.seats["host-1"]
	bobSeat := rm.seats["u2"]
	rm.markDisconnected(ctx, hostSeat)
	rm.markDisconnected(ctx, bobSeat)
	rm.onConnectionCountChanged(ctx)

	assert.Equal(t, StatusPlaying, rm.status, "status must not flip before the debounce fires")

	rm.onPauseDebounceFired(ctx)
	assert.Equal(t, StatusPaused, rm.status)
	assert.False(t, rm.pausedAt.IsZero())

	reclaimed, err := rm.assignSeat(ctx, "host-1", "Host")
	require.NoError(t, err)
	assert.True(t, reclaimed.reclaimed)
	rm.onConnectionCountChanged(ctx)

	assert.Equal(t, StatusPlaying, rm.status)
	assert.True(t, rm.pausedAt.IsZero())
}

func TestPauseAbandon_TimeoutAbandonsAndReleasesSeats(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")
	seatPlayer(t, rm, "u2", "Bob")
	require.NoError(t, rm.startGame(ctx, "host-1"))

	rm.status = StatusPaused
	rm.pausedAt = time.Now()

	rm.onPauseTimeoutFired(ctx)

	assert.Equal(t, StatusAbandoned, rm.status)
	assert.Empty(t, rm.seats)
}

func TestPauseAbandon_DebounceFiredButPlayersReturnedIsNoop(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	seatPlayer(t, rm, "host-1", "Host")
	seatPlayer(t, rm, "u2", "Bob")
	require.NoError(t, rm.startGame(ctx, "host-1"))

	// No one actually disconnected; a stale debounce firing should be a
	// no-op recount, per spec section 4.6 step 3.
	rm.onPauseDebounceFired(ctx)
	assert.Equal(t, StatusPlaying, rm.status)
}
