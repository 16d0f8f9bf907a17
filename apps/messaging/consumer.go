package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/store"
)

// eventReader is the slice of kafka.Reader the consumer depends on.
type eventReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consumer folds message events from the fan-out topic into the per-user
// conversation summaries and unread counters. Presence events carry no
// durable state and are skipped. It shares the topic with the gateways but
// uses a fixed group id, so exactly one consumer instance processes each
// event.
type Consumer struct {
	reader    eventReader
	store     store.Store
	summaries store.SummaryStore
	log       zerolog.Logger
}

func NewConsumer(reader eventReader, chatStore store.Store, summaries store.SummaryStore, log zerolog.Logger) *Consumer {
	return &Consumer{reader: reader, store: chatStore, summaries: summaries, log: log}
}

// Run reads events until ctx is cancelled. Transient read errors are
// retried after a short pause; malformed or unapplicable events are logged
// and skipped so one bad record cannot wedge the partition.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error().Err(err).Msg("event read failed, retrying")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		var event model.Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			c.log.Error().Err(err).Int64("offset", m.Offset).Msg("malformed event skipped")
			continue
		}

		if err := c.apply(ctx, event); err != nil {
			c.log.Error().Err(err).Str("type", string(event.Type)).Msg("event apply failed")
		}
	}
}

func (c *Consumer) apply(ctx context.Context, event model.Event) error {
	if event.Type != model.EventMessage {
		return nil
	}
	if event.Message == nil {
		return errors.New("message event without payload")
	}
	msg := *event.Message

	conv, err := c.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if err := c.summaries.RecordActivity(ctx, conv, msg); err != nil {
		return err
	}

	c.log.Debug().
		Int64("conversation_id", conv.ID).
		Int64("message_id", msg.ID).
		Msg("summary updated")
	return nil
}
