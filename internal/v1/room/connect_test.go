package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(uid UserID, name string) *Client {
	return &Client{send: make(chan []byte, 16), UserID: uid, DisplayName: name}
}

func TestConnect_SeatsFirstPlayerAsHost(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	client := newTestClient("host-1", "Host")

	require.NoError(t, rm.connect(ctx, client))
	assert.Equal(t, RolePlayer, client.Role)
	assert.Len(t, client.send, 1, "CONNECTED snapshot should be queued")
}

func TestConnect_OverflowBecomesSpectator(t *testing.T) {
	rm := newTestRoom(t)
	rm.cfg.MaxPlayers = 1
	ctx := context.Background()

	require.NoError(t, rm.connect(ctx, newTestClient("host-1", "Host")))

	spectator := newTestClient("u2", "Bob")
	require.NoError(t, rm.connect(ctx, spectator))
	assert.Equal(t, RoleSpectator, spectator.Role)
}

func TestConnect_ReclaimBroadcastsToRoom(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	host := newTestClient("host-1", "Host")
	require.NoError(t, rm.connect(ctx, host))

	rm.handleDisconnect(host)
	assert.True(t, rm.seats["host-1"].IsConnected == false)

	rejoined := newTestClient("host-1", "Host")
	require.NoError(t, rm.connect(ctx, rejoined))
	assert.Equal(t, RolePlayer, rejoined.Role)
	assert.True(t, rm.seats["host-1"].IsConnected)
}
