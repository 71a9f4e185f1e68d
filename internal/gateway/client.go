package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// maxFrameSize bounds inbound WebSocket messages; gorilla closes the
// connection when a client exceeds it.
const maxFrameSize = 512 * 1024

const (
	readIdleTimeout = 60 * time.Second
	writeTimeout    = 10 * time.Second
	pingInterval    = 30 * time.Second
)

// Client is one WebSocket connection.
type Client struct {
	id            string
	conn          *websocket.Conn
	server        *Server
	send          chan []byte
	authenticated atomic.Bool
	seq           atomic.Int64
}

// Run pumps the connection until it closes.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		c.handleFrame(ctx, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	frameType, err := protocol.ParseFrameType(data)
	if err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "invalid frame: "+err.Error())
		return
	}
	if frameType != protocol.FrameTypeRequest {
		c.sendError("", protocol.ErrInvalidRequest, "unexpected frame type: "+frameType)
		return
	}

	var req protocol.RequestFrame
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "malformed request: "+err.Error())
		return
	}

	// The first request on every connection must be the connect handshake.
	if !c.authenticated.Load() && req.Method != protocol.MethodConnect {
		c.sendError(req.ID, protocol.ErrUnauthorized, "first request must be 'connect'")
		return
	}

	c.server.router.Handle(ctx, c, &req)
}

// SendResponse queues a response frame; a full buffer drops the frame
// rather than blocking the caller.
func (c *Client) SendResponse(resp *protocol.ResponseFrame) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("marshal response failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping response", "client", c.id)
	}
}

// SendEvent queues an event frame with a per-connection sequence number.
func (c *Client) SendEvent(event protocol.EventFrame) {
	event.Seq = c.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping event", "client", c.id)
	}
}

func (c *Client) sendError(id, code, message string) {
	c.SendResponse(protocol.NewErrorResponse(id, code, message))
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string { return c.id }

// Authenticated reports whether the connect handshake succeeded.
func (c *Client) Authenticated() bool { return c.authenticated.Load() }
