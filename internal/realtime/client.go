package realtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/platform/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one subscribed websocket. The hub closes send when the client
// leaves the registry; WritePump then finishes the close handshake.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	year  int
	send  chan []byte
	state atomic.Int32
}

func NewClient(hub *Hub, conn *websocket.Conn, year int) *Client {
	return newClient(hub, conn, year, sendBufferSize)
}

func newClient(hub *Hub, conn *websocket.Conn, year, buffer int) *Client {
	return &Client{hub: hub, conn: conn, year: year, send: make(chan []byte, buffer)}
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) Year() int { return c.year }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// enqueue never blocks. When the buffer is full the oldest pending update is
// discarded so the client converges on the newest ranking.
func (c *Client) enqueue(payload []byte) {
	if c.State() != StateOpen {
		return
	}
	select {
	case c.send <- payload:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- payload:
	default:
	}
}

// Serve registers the client and starts its pumps. It returns false when the
// hub has already stopped; the connection is closed in that case.
func (c *Client) Serve() bool {
	if !c.hub.Register(c) {
		c.conn.Close()
		c.setState(StateClosed)
		return false
	}
	go c.WritePump()
	go c.ReadPump()
	return true
}

// ReadPump only services control frames; client messages are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(context.Background(), "channel read failed",
					zap.String("component", "realtime"), zap.Int("year", c.year), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.setState(StateClosed)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.dropAfter(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.dropAfter(err)
				return
			}
		}
	}
}

// dropAfter logs a failed delivery and removes the channel. Nothing is retried.
func (c *Client) dropAfter(err error) {
	c.setState(StateClosing)
	logger.Warn(context.Background(), "dropping realtime channel",
		zap.String("component", "realtime"),
		zap.Int("year", c.year),
		zap.Error(fmt.Errorf("%w: %v", common.ErrChannelDelivery, err)))
	c.hub.Unregister(c)
}
