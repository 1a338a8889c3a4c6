package room

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/verlyn13/dicee-sub002/internal/v1/auth"
	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	emitter := instrumentation.NewEmitter(zaptest.NewLogger(t), "hub", false)
	h := NewHub(&auth.MockValidator{}, nil, emitter, nil, testConfig(), nil, []string{"http://localhost:3000"})
	h.cleanupGracePeriod = 10 * time.Millisecond
	return h
}

func TestHub_GetOrCreateRoomReusesExistingRoom(t *testing.T) {
	h := newTestHub(t)

	first, err := h.getOrCreateRoom("ABC123", "host-1")
	require.NoError(t, err)

	second, err := h.getOrCreateRoom("ABC123", "host-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestHub_RemoveRoomReapsAfterGracePeriodWhenEmpty(t *testing.T) {
	h := newTestHub(t)
	rm, err := h.getOrCreateRoom("ABC123", "host-1")
	require.NoError(t, err)
	require.True(t, rm.isEmpty())

	h.removeRoom("ABC123")

	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		_, ok := h.rooms["ABC123"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestHub_RemoveRoomCancelledByReconnectBeforeGraceExpires(t *testing.T) {
	h := newTestHub(t)
	rm, err := h.getOrCreateRoom("ABC123", "host-1")
	require.NoError(t, err)

	h.removeRoom("ABC123")
	again, err := h.getOrCreateRoom("ABC123", "host-1")
	require.NoError(t, err)
	assert.Same(t, rm, again)

	time.Sleep(30 * time.Millisecond)
	h.mu.Lock()
	_, stillThere := h.rooms["ABC123"]
	h.mu.Unlock()
	assert.True(t, stillThere, "a reconnect before the grace period elapses must cancel the cleanup")
}

func TestHub_CheckOrigin(t *testing.T) {
	h := newTestHub(t)

	allowed := &http.Request{Header: http.Header{"Origin": []string{"http://localhost:3000"}}}
	assert.True(t, h.checkOrigin(allowed))

	denied := &http.Request{Header: http.Header{"Origin": []string{"http://evil.example.com"}}}
	assert.False(t, h.checkOrigin(denied))

	noOrigin := &http.Request{Header: http.Header{}}
	assert.True(t, h.checkOrigin(noOrigin))
}

func TestResolveDisplayName_FallsBackThroughNameEmailSubject(t *testing.T) {
	withName := &auth.CustomClaims{Name: "Alice"}
	assert.Equal(t, "Alice", resolveDisplayName(withName))

	withEmail := &auth.CustomClaims{Email: "bob@example.com"}
	assert.Equal(t, "bob", resolveDisplayName(withEmail))
}
