// Package chatclient maintains a chat session against a gateway: it dials,
// re-dials with backoff when the connection drops, rejoins the caller's
// conversations after every reconnect, and matches send acks back to their
// callers by ack id.
package chatclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/model"
)

// State is the connection lifecycle of a session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	backoffInitial = 500 * time.Millisecond
	backoffMax     = 10 * time.Second
	ackTimeout     = 10 * time.Second

	// seenLimit bounds dedup memory for long sessions. Duplicates only
	// arise within the ack/echo window of a send, so a short horizon is
	// enough.
	seenLimit = 512
)

// ErrNotConnected reports a send attempted while the session is down. The
// caller keeps the text and retries after reconnect.
var ErrNotConnected = errors.New("chatclient: not connected")

// SendError is a rejection ack from the gateway. Text preserves what the
// caller tried to send so it can be restored for editing.
type SendError struct {
	Reason string
	Text   string
}

func (e *SendError) Error() string { return e.Reason }

// Options configures a session. URL is the websocket endpoint
// (ws://host/ws); Token may be empty for an unauthenticated session.
type Options struct {
	URL   string
	Token string

	// OnMessage fires once per distinct incoming message. Messages the
	// session already delivered, or that the caller sent itself, are
	// suppressed.
	OnMessage func(model.Message)

	// OnPresence fires with the full online user id set on every change.
	OnPresence func(userIDs []string)

	OnStateChange func(State)

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

type ackResult struct {
	message model.Message
	reason  string
}

// Client is a single user's session. Safe for concurrent use.
type Client struct {
	opts Options

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	rooms   map[int64]struct{}
	pending map[string]chan ackResult

	// seen tracks recently delivered message ids, evicting oldest-first
	// once seenLimit is reached.
	seen      map[int64]struct{}
	seenOrder []int64

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:    opts,
		rooms:   make(map[int64]struct{}),
		pending: make(map[string]chan ackResult),
		seen:    make(map[int64]struct{}),
	}
}

// Run drives the session until ctx is cancelled: dial, serve the
// connection, and on any drop retry with capped exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := backoffInitial
	for {
		c.setState(Connecting)

		conn, err := c.dial(ctx)
		if err != nil {
			c.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.opts.Logger.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff *= 2; backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffInitial

		c.attach(conn)
		c.setState(Connected)
		c.rejoinRooms()

		err = c.readLoop(ctx, conn)
		c.detach(conn)
		c.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.opts.Logger.Warn().Err(err).Msg("connection lost")
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// detach clears the connection and fails every pending ack wait.
func (c *Client) detach(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan ackResult)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Join subscribes the session to a conversation. The subscription is
// remembered and re-sent after every reconnect. Joining before the session
// is connected is not an error.
func (c *Client) Join(conversationID int64) error {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeFrame(conn, clientFrame{
		Type:           frameJoinConversation,
		ConversationID: conversationID,
	})
}

func (c *Client) rejoinRooms() {
	c.mu.Lock()
	conn := c.conn
	rooms := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	for _, id := range rooms {
		if err := c.writeFrame(conn, clientFrame{Type: frameJoinConversation, ConversationID: id}); err != nil {
			c.opts.Logger.Warn().Err(err).Int64("conversation_id", id).Msg("rejoin failed")
			return
		}
	}
}

// Send submits a message and waits for the gateway's ack. On a positive ack
// it returns the persisted record; the read loop marks it seen as the ack
// arrives, so the broadcast echo is never delivered again through
// OnMessage. A rejection comes back as a *SendError carrying the original
// text.
func (c *Client) Send(ctx context.Context, conversationID int64, text string) (model.Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return model.Message{}, ErrNotConnected
	}

	ackID := uuid.NewString()
	wait := make(chan ackResult, 1)
	c.mu.Lock()
	c.pending[ackID] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ackID)
		c.mu.Unlock()
	}()

	err := c.writeFrame(conn, clientFrame{
		Type:  frameSendMessage,
		AckID: ackID,
		Data:  &sendData{ConversationID: conversationID, Text: text},
	})
	if err != nil {
		return model.Message{}, ErrNotConnected
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case result, ok := <-wait:
		if !ok {
			return model.Message{}, ErrNotConnected
		}
		if result.reason != "" {
			return model.Message{}, &SendError{Reason: result.reason, Text: text}
		}
		return result.message, nil
	case <-timer.C:
		return model.Message{}, &SendError{Reason: "ack timeout", Text: text}
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	}
}

func (c *Client) writeFrame(conn *websocket.Conn, frame clientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}

		switch frame.Type {
		case frameAck:
			c.resolveAck(frame)
		case frameReceiveMessage:
			if frame.Message != nil && c.markSeen(frame.Message.ID) && c.opts.OnMessage != nil {
				c.opts.OnMessage(*frame.Message)
			}
		case frameGetOnlineUsers:
			if c.opts.OnPresence != nil {
				c.opts.OnPresence(frame.UserIDs)
			}
		default:
			c.opts.Logger.Debug().Str("type", frame.Type).Msg("unknown frame ignored")
		}
	}
}

func (c *Client) resolveAck(frame serverFrame) {
	c.mu.Lock()
	wait, ok := c.pending[frame.AckID]
	if ok {
		delete(c.pending, frame.AckID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	result := ackResult{}
	if frame.Status == statusError {
		result.reason = frame.Error
		if result.reason == "" {
			result.reason = "rejected"
		}
	} else if frame.Message != nil {
		result.message = *frame.Message
		// Mark the record seen here, on the read goroutine: the broadcast
		// echo can arrive on the very next frame, before the Send caller
		// has consumed the ack.
		c.markSeen(frame.Message.ID)
	}
	wait <- result
}

// markSeen records a message id, reporting whether it was new.
func (c *Client) markSeen(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[id]; dup {
		return false
	}
	c.seen[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > seenLimit {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}
	return true
}
