package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements wsConnection for driving a Client without a real
// socket, mirroring the teacher's MockWSConnection.
type mockConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	readIdx  int
	outbound [][]byte
	closed   bool
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readIdx >= len(m.inbound) {
		return 0, nil, websocket.ErrCloseSent
	}
	msg := m.inbound[m.readIdx]
	m.readIdx++
	return websocket.TextMessage, msg, nil
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbound = append(m.outbound, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) SetReadDeadline(time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

// fakeRoomer records dispatched messages and disconnects without any real
// room logic, for testing Client in isolation.
type fakeRoomer struct {
	mu           sync.Mutex
	dispatched   []InboundMessage
	disconnected bool
}

func (f *fakeRoomer) dispatch(_ context.Context, _ *Client, msg InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, msg)
}

func (f *fakeRoomer) handleDisconnect(_ *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func TestClient_ReadPumpDecodesAndDispatches(t *testing.T) {
	raw, _ := json.Marshal(InboundMessage{Type: CmdPing, CorrelationID: "c1"})
	conn := &mockConn{inbound: [][]byte{raw}}
	fr := &fakeRoomer{}
	client := &Client{conn: conn, send: make(chan []byte, 4), room: fr, UserID: "u1", Role: RolePlayer}

	client.readPump()

	fr.mu.Lock()
	defer fr.mu.Unlock()
	require.Len(t, fr.dispatched, 1)
	assert.Equal(t, CmdPing, fr.dispatched[0].Type)
	assert.True(t, fr.disconnected)
}

func TestClient_ReadPumpRejectsMalformedJSON(t *testing.T) {
	conn := &mockConn{inbound: [][]byte{[]byte("not json")}}
	fr := &fakeRoomer{}
	client := &Client{conn: conn, send: make(chan []byte, 4), room: fr, UserID: "u1"}

	client.readPump()

	require.Len(t, client.send, 1)
	var out OutboundMessage
	require.NoError(t, json.Unmarshal(<-client.send, &out))
	assert.Equal(t, EventError, out.Type)
}

func TestClient_EnqueueDropsOnFullBuffer(t *testing.T) {
	client := &Client{send: make(chan []byte, 1)}
	client.enqueue(EventPong, nil, "")
	client.enqueue(EventPong, nil, "")
	assert.Len(t, client.send, 1)
}
