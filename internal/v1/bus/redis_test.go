package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestNewService(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NotNil(t, svc.Client())
	err := svc.Ping(context.Background())
	assert.NoError(t, err)
}

func TestPublish(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	roomCode := "ROOM1"

	sub := svc.Client().Subscribe(ctx, "diceroom:room:"+roomCode)
	defer func() { _ = sub.Close() }()
	time.Sleep(50 * time.Millisecond)

	payload := map[string]string{"status": "active"}
	err := svc.Publish(ctx, roomCode, "room.status", payload, "room-actor-1")
	assert.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	assert.NoError(t, err)

	var envelope PubSubPayload
	err = json.Unmarshal([]byte(msg.Payload), &envelope)
	assert.NoError(t, err)

	assert.Equal(t, roomCode, envelope.RoomCode)
	assert.Equal(t, "room.status", envelope.Event)
	assert.Equal(t, "room-actor-1", envelope.SenderID)
}

func TestPublishDirect(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	targetUserID := "user-target"

	sub := svc.Client().Subscribe(ctx, "diceroom:user:"+targetUserID)
	defer func() { _ = sub.Close() }()
	time.Sleep(50 * time.Millisecond)

	payload := map[string]string{"status": "seated"}
	err := svc.PublishDirect(ctx, targetUserID, "user.status", payload, "room-actor-1")
	assert.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	assert.NoError(t, err)

	var envelope PubSubPayload
	err = json.Unmarshal([]byte(msg.Payload), &envelope)
	assert.NoError(t, err)

	assert.Equal(t, "user.status", envelope.Event)
	assert.Equal(t, "room-actor-1", envelope.SenderID)
	assert.Empty(t, envelope.RoomCode)
}

func TestSubscribe(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomCode := "ROOM-SUB"
	wg := &sync.WaitGroup{}

	received := make(chan PubSubPayload, 1)
	handler := func(p PubSubPayload) {
		received <- p
	}

	svc.Subscribe(ctx, roomCode, wg, handler)
	time.Sleep(50 * time.Millisecond)

	payload := PubSubPayload{
		RoomCode: roomCode,
		Event:    "room.status",
		SenderID: "other-pod",
	}
	bytes, _ := json.Marshal(payload)
	svc.Client().Publish(ctx, "diceroom:room:"+roomCode, bytes)

	select {
	case p := <-received:
		assert.Equal(t, "room.status", p.Event)
		assert.Equal(t, "other-pod", p.SenderID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	wg.Wait()
}

func TestSetOperations(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	key := "active-rooms"

	err := svc.SetAdd(ctx, key, "ROOM1")
	assert.NoError(t, err)
	err = svc.SetAdd(ctx, key, "ROOM2")
	assert.NoError(t, err)

	members, err := svc.SetMembers(ctx, key)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"ROOM1", "ROOM2"}, members)

	err = svc.SetRem(ctx, key, "ROOM1")
	assert.NoError(t, err)

	members, err = svc.SetMembers(ctx, key)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"ROOM2"}, members)
}

func TestRedisFailureGraceful(t *testing.T) {
	svc, mr := newTestService(t)
	mr.Close()

	err := svc.Ping(context.Background())
	assert.Error(t, err)
}

func TestSetOperationsErrorPaths(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	key := "test-error-set"

	require.NoError(t, svc.SetAdd(ctx, key, "m1"))
	require.NoError(t, svc.SetAdd(ctx, key, "m2"))
	require.NoError(t, svc.SetAdd(ctx, key, "m3"))

	members, err := svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	require.NoError(t, svc.SetRem(ctx, key, "m1"))
	require.NoError(t, svc.SetRem(ctx, key, "m2"))

	members, err = svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m3"}, members)

	mr.Close()

	err = svc.SetAdd(ctx, key, "m4")
	assert.Error(t, err)
	err = svc.SetRem(ctx, key, "m3")
	assert.Error(t, err)
	_, err = svc.SetMembers(ctx, key)
	assert.Error(t, err)
}

func TestPublishCircuitBreakerOpen(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	mr.Close()

	for i := 0; i < 10; i++ {
		_ = svc.Publish(ctx, "ROOM1", "room.status", map[string]string{}, "sender")
	}

	err := svc.Publish(ctx, "ROOM1", "room.status", map[string]string{}, "sender")
	_ = err // graceful degradation: either nil or an error, never a panic
}

func TestPublishDirectCircuitBreakerOpen(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	mr.Close()

	for i := 0; i < 10; i++ {
		_ = svc.PublishDirect(ctx, "user-1", "user.status", map[string]string{}, "sender")
	}

	err := svc.PublishDirect(ctx, "user-1", "user.status", map[string]string{}, "sender")
	_ = err
}
