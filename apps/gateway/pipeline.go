package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/metrics"
	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/store"
)

// Pipeline validates, persists and fans out a single chat message.
//
// Submit and FanOut are split so callers ack the sender between the two:
// the sender gets the record directly through its acknowledgment, then the
// rest of the room gets it as a receiveMessage push.
type Pipeline struct {
	store   store.Store
	rooms   *RoomRouter
	publish func(model.Event) // cross-instance fan-out; nil when Kafka is off
	log     zerolog.Logger
}

func NewPipeline(st store.Store, rooms *RoomRouter, publish func(model.Event), log zerolog.Logger) *Pipeline {
	return &Pipeline{store: st, rooms: rooms, publish: publish, log: log}
}

// Submit runs steps 1-3: identity check, input validation, persistence.
// No lock is held across the store call; other connections proceed freely.
func (p *Pipeline) Submit(ctx context.Context, senderID, conversationID int64, text string) (model.Message, error) {
	if senderID == 0 {
		metrics.MessageFailures.WithLabelValues("unauthorized").Inc()
		return model.Message{}, model.ErrUnauthorized
	}
	if conversationID == 0 || strings.TrimSpace(text) == "" {
		metrics.MessageFailures.WithLabelValues("invalid").Inc()
		return model.Message{}, model.ErrInvalidInput
	}

	msg, err := p.store.CreateMessage(ctx, conversationID, senderID, text)
	if err != nil {
		metrics.MessageFailures.WithLabelValues("persistence").Inc()
		p.log.Error().
			Err(err).
			Int64("sender_id", senderID).
			Int64("conversation_id", conversationID).
			Str("text", truncate(text, 64)).
			Msg("message persistence failed")
		return model.Message{}, model.ErrPersistence
	}

	metrics.MessagesPersisted.Inc()
	return msg, nil
}

// FanOut runs step 4 after the sender has been acked: push the record to
// every other member of the local room, then publish it for sibling
// gateway instances and the messaging consumer. The originating connection
// is excluded; the sender's other devices, if joined, receive the push and
// deduplicate by message ID.
func (p *Pipeline) FanOut(msg model.Message, originConnID string) {
	payload := encodeFrame(p.log, receiveMessageFrame(msg))
	p.rooms.Broadcast(msg.ConversationID, payload, originConnID)

	if p.publish != nil {
		p.publish(model.Event{
			Type:         model.EventMessage,
			OriginConnID: originConnID,
			Message:      &msg,
		})
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
