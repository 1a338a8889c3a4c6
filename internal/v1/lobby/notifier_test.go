package lobby

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	publishCalls       int32
	publishDirectCalls int32
	failTimes          int32 // fail this many times before succeeding
}

func (b *fakeBus) Publish(_ context.Context, _, _ string, _ any, _ string) error {
	n := atomic.AddInt32(&b.publishCalls, 1)
	if n <= b.failTimes {
		return errors.New("transient lobby failure")
	}
	return nil
}

func (b *fakeBus) PublishDirect(_ context.Context, _, _ string, _ any, _ string) error {
	n := atomic.AddInt32(&b.publishDirectCalls, 1)
	if n <= b.failTimes {
		return errors.New("transient lobby failure")
	}
	return nil
}

func TestNotifyRoomStatusSucceedsAfterTransientFailures(t *testing.T) {
	bus := &fakeBus{failTimes: 2}
	n := New(bus, "room-actor-1", 5*time.Second)

	n.NotifyRoomStatus(context.Background(), RoomStatus{RoomCode: "ROOM1", Phase: "IN_PROGRESS"})

	assert.GreaterOrEqual(t, atomic.LoadInt32(&bus.publishCalls), int32(3))
}

func TestNotifyRoomStatusDropsAfterMaxElapsed(t *testing.T) {
	bus := &fakeBus{failTimes: 1000}
	n := New(bus, "room-actor-1", 30*time.Millisecond)

	require.NotPanics(t, func() {
		n.NotifyRoomStatus(context.Background(), RoomStatus{RoomCode: "ROOM1", Phase: "IN_PROGRESS"})
	})

	assert.Greater(t, atomic.LoadInt32(&bus.publishCalls), int32(0))
}

func TestNotifyUserRoomStatusDeliversOnFirstTry(t *testing.T) {
	bus := &fakeBus{}
	n := New(bus, "room-actor-1", time.Second)

	n.NotifyUserRoomStatus(context.Background(), UserRoomStatus{UserID: "u1", RoomCode: "ROOM1", Status: "joined"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&bus.publishDirectCalls))
}

func TestNewDefaultsMaxElapsedWhenNonPositive(t *testing.T) {
	n := New(&fakeBus{}, "x", 0)
	assert.Equal(t, 5*time.Second, n.maxElapsed)
}
