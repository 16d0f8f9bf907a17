package main

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/bazarya/chat-core/pkg/auth"
	"github.com/bazarya/chat-core/pkg/metrics"
	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/store"
)

const onlineUsersKey = "presence:online"

// Hub owns the shared per-process chat state: the presence registry, the
// room router and the message pipeline, plus the Redis presence mirror and
// the Kafka producer used for cross-instance fan-out. Redis and Kafka are
// optional; without them the hub serves a single-instance deployment.
type Hub struct {
	// ID distinguishes this gateway instance on the event topic so it can
	// skip events it originated.
	ID string

	presence *Presence
	rooms    *RoomRouter
	pipeline *Pipeline
	store    store.Store
	verifier *auth.Verifier
	redis    *redis.Client
	producer *kafka.Writer
	log      zerolog.Logger

	// connMu guards conns, the set of every live connection including
	// unauthenticated ones. Presence pushes go to all of them; the
	// presence registry itself only tracks authenticated users.
	connMu sync.Mutex
	conns  map[string]*Client
}

func NewHub(id string, st store.Store, verifier *auth.Verifier, rdb *redis.Client, producer *kafka.Writer, log zerolog.Logger) *Hub {
	h := &Hub{
		ID:       id,
		presence: NewPresence(),
		rooms:    NewRoomRouter(),
		store:    st,
		verifier: verifier,
		redis:    rdb,
		producer: producer,
		log:      log,
		conns:    make(map[string]*Client),
	}

	var publish func(model.Event)
	if producer != nil {
		publish = h.publishEvent
	}
	h.pipeline = NewPipeline(st, h.rooms, publish, log)
	return h
}

// Register adds a freshly upgraded connection. Authenticated connections
// enter the presence registry; a user's first connection triggers an
// online notification to everyone. The new connection always receives the
// current online snapshot so it starts from known state.
func (h *Hub) Register(c *Client) {
	h.connMu.Lock()
	h.conns[c.ConnID] = c
	h.connMu.Unlock()

	if c.UserID == 0 {
		h.log.Info().Str("conn_id", c.ConnID).Msg("unauthenticated connection accepted")
		c.trySend(encodeFrame(h.log, onlineUsersFrame(h.onlineSet())))
		return
	}

	cameOnline := h.presence.Register(c)
	h.log.Info().Int64("user_id", c.UserID).Str("conn_id", c.ConnID).Msg("connection registered")

	if cameOnline {
		h.presenceChanged(c.UserID, true)
	} else {
		c.trySend(encodeFrame(h.log, onlineUsersFrame(h.onlineSet())))
	}
}

// Unregister tears down a connection: it leaves every room, and if it was
// the user's last open connection the user goes offline. Safe against
// double invocation and abrupt disconnects.
func (h *Hub) Unregister(c *Client) {
	h.connMu.Lock()
	delete(h.conns, c.ConnID)
	h.connMu.Unlock()

	h.rooms.DropConnection(c)

	if c.UserID != 0 {
		if h.presence.Unregister(c) {
			h.presenceChanged(c.UserID, false)
		}
		h.log.Info().Int64("user_id", c.UserID).Str("conn_id", c.ConnID).Msg("connection unregistered")
	}

	if c.closeSend() {
		metrics.ConnectionsOpen.Dec()
	}
}

// HandleJoin adds the connection to a conversation room. Only participants
// of the conversation may join; this is the policy boundary the pipeline
// itself trusts. Join carries no response channel, so refusals only log.
func (h *Hub) HandleJoin(c *Client, conversationID int64) {
	if c.UserID == 0 {
		h.log.Warn().Str("conn_id", c.ConnID).Msg("unauthenticated join refused")
		return
	}
	if conversationID == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		h.log.Warn().Err(err).Int64("conversation_id", conversationID).Msg("join refused: conversation lookup failed")
		return
	}
	if !conv.HasParticipant(c.UserID) {
		h.log.Warn().Int64("user_id", c.UserID).Int64("conversation_id", conversationID).Msg("join refused: not a participant")
		return
	}

	h.rooms.Join(conversationID, c)
	h.log.Debug().Int64("user_id", c.UserID).Int64("conversation_id", conversationID).Msg("joined conversation room")
}

// HandleSend runs the message pipeline for one submission and acks the
// sender. The ack goes out before the room broadcast so the sender always
// receives the record through the direct path.
func (h *Hub) HandleSend(c *Client, frame inboundFrame) {
	var conversationID int64
	var text string
	if frame.Data != nil {
		conversationID = frame.Data.ConversationID
		text = frame.Data.Text
	}

	msg, err := h.pipeline.Submit(context.Background(), c.UserID, conversationID, text)
	if err != nil {
		c.trySend(encodeFrame(h.log, ackError(frame.AckID, err.Error())))
		return
	}

	c.trySend(encodeFrame(h.log, ackOK(frame.AckID, msg)))
	h.pipeline.FanOut(msg, c.ConnID)
}

// presenceChanged mirrors the transition to Redis, pushes the full online
// set to all local connections and publishes it for sibling gateways.
func (h *Hub) presenceChanged(userID int64, online bool) {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var err error
		if online {
			err = h.redis.SAdd(ctx, onlineUsersKey, userID).Err()
		} else {
			err = h.redis.SRem(ctx, onlineUsersKey, userID).Err()
		}
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", userID).Msg("presence mirror update failed")
		}
	}

	users := h.onlineSet()
	h.pushOnlineUsers(users)

	if h.producer != nil {
		h.publishEvent(model.Event{
			Type:          model.EventPresence,
			OnlineUserIDs: users,
		})
	}
}

// onlineSet returns the current online users: the Redis mirror when
// available (it spans gateway instances), otherwise the local registry.
func (h *Hub) onlineSet() []string {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		users, err := h.redis.SMembers(ctx, onlineUsersKey).Result()
		if err == nil {
			sort.Strings(users)
			return users
		}
		h.log.Warn().Err(err).Msg("presence mirror read failed, falling back to local registry")
	}
	return h.presence.OnlineUsers()
}

// pushOnlineUsers delivers the online set to every live connection,
// authenticated or not.
func (h *Hub) pushOnlineUsers(users []string) {
	payload := encodeFrame(h.log, onlineUsersFrame(users))

	h.connMu.Lock()
	clients := make([]*Client, 0, len(h.conns))
	for _, client := range h.conns {
		clients = append(clients, client)
	}
	h.connMu.Unlock()

	for _, client := range clients {
		client.trySend(payload)
	}
}

// publishEvent writes an event to the fan-out topic without blocking the
// caller's connection task.
func (h *Hub) publishEvent(ev model.Event) {
	ev.OriginGatewayID = h.ID

	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := h.producer.WriteMessages(ctx, kafka.Message{Value: payload, Time: time.Now()}); err != nil {
			h.log.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to publish event")
		}
	}()
}

// eventReader is the slice of kafka.Reader the hub consumes through.
type eventReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// ConsumeEvents routes events published by sibling gateway instances to
// local connections until the context ends. Events this instance
// originated are skipped; their local delivery already happened inline.
// Transient read errors are retried after a pause so one broker hiccup
// does not sever cross-instance fan-out for the life of the process.
func (h *Hub) ConsumeEvents(ctx context.Context, reader eventReader) {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Error().Err(err).Msg("event consumer read failed, retrying")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			h.log.Warn().Err(err).Msg("skipping malformed event")
			continue
		}
		if ev.OriginGatewayID == h.ID {
			continue
		}

		switch ev.Type {
		case model.EventMessage:
			if ev.Message == nil {
				continue
			}
			payload := encodeFrame(h.log, receiveMessageFrame(*ev.Message))
			h.rooms.Broadcast(ev.Message.ConversationID, payload, ev.OriginConnID)
		case model.EventPresence:
			h.pushOnlineUsers(ev.OnlineUserIDs)
		}
	}
}
