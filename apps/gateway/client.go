package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bazarya/chat-core/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 4096

	// Outbound buffer per connection. A full buffer drops the delivery
	// rather than blocking the room's fan-out.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the platform fronts this with its own origin policy
	},
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	sendMu     sync.Mutex
	sendClosed bool

	// ConnID identifies this connection; broadcast exclusion and room
	// membership key on it.
	ConnID string

	// UserID is the identity bound at upgrade time; zero means the
	// connection never authenticated and every protected operation fails.
	UserID int64
}

// trySend queues a frame without blocking. Returns false when the buffer
// is full or the connection is already gone; such drops are deliberate
// (message durability lives in the store).
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once and reports whether
// this call did the closing.
func (c *Client) closeSend() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	c.sendClosed = true
	close(c.send)
	return true
}

// readPump pumps frames from the websocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("conn_id", c.ConnID).Msg("read error")
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.hub.log.Warn().Err(err).Str("conn_id", c.ConnID).Msg("invalid frame")
			continue
		}

		switch frame.Type {
		case frameJoinConversation:
			c.hub.HandleJoin(c, frame.ConversationID)
		case frameSendMessage:
			c.hub.HandleSend(c, frame)
		default:
			c.hub.log.Warn().Str("type", frame.Type).Str("conn_id", c.ConnID).Msg("unsupported frame type")
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// serveWs upgrades the connection and binds its identity.
//
// A missing or invalid token does not refuse the upgrade: the connection
// stays open unauthenticated so the client can reconnect with a fresh
// token, and every protected frame acks Unauthorized in the meantime.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		// Query param fallback for browser websocket clients.
		token = r.URL.Query().Get("token")
	}
	token = strings.TrimPrefix(token, "Bearer ")

	var userID int64
	if token != "" {
		claims, err := hub.verifier.VerifyToken(token)
		if err != nil {
			hub.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket token rejected")
		} else {
			userID = claims.UserID
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ConnID: uuid.NewString(),
		UserID: userID,
	}
	metrics.ConnectionsOpen.Inc()
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
