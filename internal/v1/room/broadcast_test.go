package room

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_PlayersOnlyExcludesSpectators(t *testing.T) {
	rm := newTestRoom(t)
	rm.cfg.MaxPlayers = 1
	ctx := context.Background()

	player := newTestClient("host-1", "Host")
	require.NoError(t, rm.connect(ctx, player))
	spectator := newTestClient("u2", "Bob")
	require.NoError(t, rm.connect(ctx, spectator))

	for len(player.send) > 0 {
		<-player.send
	}
	for len(spectator.send) > 0 {
		<-spectator.send
	}

	rm.broadcast(ctx, "TEST_EVENT", nil, playersOnly())

	require.Len(t, player.send, 1)
	assert.Len(t, spectator.send, 0)
}

func TestBroadcast_SingleUserReachesOnlyThatUser(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	a := newTestClient("u1", "Alice")
	b := newTestClient("u2", "Bob")
	require.NoError(t, rm.connect(ctx, a))
	require.NoError(t, rm.connect(ctx, b))
	for len(a.send) > 0 {
		<-a.send
	}
	for len(b.send) > 0 {
		<-b.send
	}

	rm.broadcast(ctx, "TEST_EVENT", nil, singleUser("u2"))

	assert.Len(t, a.send, 0)
	require.Len(t, b.send, 1)
}

func TestSendTo_CarriesCorrelationID(t *testing.T) {
	rm := newTestRoom(t)
	ctx := context.Background()
	client := newTestClient("u1", "Alice")
	require.NoError(t, rm.connect(ctx, client))
	for len(client.send) > 0 {
		<-client.send
	}

	rm.sendTo("u1", "TEST_EVENT", nil, "corr-1")

	require.Len(t, client.send, 1)
	var out OutboundMessage
	require.NoError(t, json.Unmarshal(<-client.send, &out))
	assert.Equal(t, "corr-1", out.CorrelationID)
}
