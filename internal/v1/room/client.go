package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verlyn13/dicee-sub002/internal/v1/metrics"
)

// wsConnection is the subset of *websocket.Conn the Client needs. The
// indirection lets tests drive a Client without a real socket, mirroring the
// teacher's session.wsConnection interface.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// roomer is the subset of *Room a Client needs to route messages and report
// disconnects, mirroring the teacher's session.Roomer interface.
type roomer interface {
	dispatch(ctx context.Context, client *Client, msg InboundMessage)
	handleDisconnect(client *Client)
}

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageBytes = 8192
)

// Client represents one live WebSocket connection bound to a room. It never
// mutates room state directly; every inbound message is handed to the
// room's dispatch method, which runs under the room's own lock.
type Client struct {
	conn        wsConnection
	send        chan []byte
	room        roomer
	UserID      UserID
	DisplayName string
	Role        Role
}

// NewClient wires a raw websocket connection into a Client bound to room.
func NewClient(conn *websocket.Conn, room roomer, userID UserID, displayName string, role Role) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, 256),
		room:        room,
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
	}
}

// readPump decodes inbound JSON frames and hands them to the room. It runs
// until the connection errors or closes, at which point it reports the
// disconnect unconditionally -- the protocol makes no distinction between a
// refresh and a permanent leave (spec section 4.5).
func (c *Client) readPump() {
	defer func() {
		c.room.handleDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if len(data) > maxMessageBytes {
			c.sendError("", ErrInvalidPayload, "message too large")
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", ErrInvalidPayload, "malformed message")
			continue
		}

		c.room.dispatch(context.Background(), c, msg)
	}
}

// writePump flushes queued outbound frames and a periodic ping to the
// socket. It exits when the send channel is closed (closeWithCode) or a
// write to the socket fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues an outbound event for this client only. A full buffer
// drops the message rather than blocking the room's dispatch loop.
func (c *Client) enqueue(event string, payload any, correlationID string) {
	raw, err := json.Marshal(OutboundMessage{Type: event, Payload: payload, CorrelationID: correlationID})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) sendError(correlationID string, kind ErrorKind, message string) {
	c.enqueue(EventError, ErrorEnvelope{Code: kind, Message: message}, correlationID)
}

// closeSend closes the send channel, terminating the connection's write side
// and letting writePump drain and exit.
func (c *Client) closeSend() {
	defer func() { recover() }()
	close(c.send)
}

// closeWithCode sends a WebSocket close frame with the given code/reason
// and tears down the connection, used by the pause/abandon controller to
// evict spectators (spec section 4.6 step 5).
func (c *Client) closeWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.SetWriteDeadline(deadline)
	c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.closeSend()
}
