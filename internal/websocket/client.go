package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/apperrors"
	"github.com/adi-253/skillswap/internal/services"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxMessageSize = 16 * 1024

	sendBufferSize = 256
)

// Client represents a single WebSocket connection
type Client struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound frames
	send chan []byte

	// ID identifies the session in logs
	ID string

	// UserID is the identity claimed at connect time; empty when the
	// connection did not carry one
	UserID string

	// rooms and closed are guarded by hub.mu
	rooms  map[string]bool
	closed bool

	closeOnce sync.Once
}

// NewClient creates a new Client instance
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ID:     uuid.NewString(),
		UserID: userID,
		rooms:  make(map[string]bool),
	}
}

// checkIdentity refuses frames acting on behalf of another user when the
// connection carries an identity.
func (c *Client) checkIdentity(userID string) error {
	if c.UserID == "" {
		return nil
	}
	if canonical, ok := services.CanonicalID(userID); ok {
		userID = canonical
	}
	if c.UserID != userID {
		return apperrors.Unauthorized(services.MsgNotAuthorized, nil)
	}
	return nil
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// ReadPump reads frames from the WebSocket connection and runs them in arrival order.
// This runs in its own goroutine per client
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Info("read error", zap.String("session_id", c.ID), zap.Error(err))
			}
			break
		}
		c.hub.handleFrame(c, message)
	}
}

// WritePump pumps frames from the hub to the WebSocket connection
// This runs in its own goroutine per client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message; clients parse each frame as a single JSON envelope
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
