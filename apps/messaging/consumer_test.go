package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/snowflake"
	"github.com/bazarya/chat-core/pkg/store"
)

// stubReader replays a fixed batch, then blocks until the context ends.
type stubReader struct {
	messages []kafka.Message
	next     int
}

func (r *stubReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.next < len(r.messages) {
		m := r.messages[r.next]
		r.next++
		return m, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func newConsumerFixture(t *testing.T) (*Consumer, *store.MemStore, *stubReader) {
	t.Helper()

	node, err := snowflake.NewNode(9)
	if err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemStore(node)
	mem.AddUser(model.UserProfile{ID: 1, UserName: "alice"})
	mem.AddUser(model.UserProfile{ID: 2, UserName: "bob"})

	reader := &stubReader{}
	return NewConsumer(reader, mem, mem, zerolog.Nop()), mem, reader
}

func encodeEvent(t *testing.T, event model.Event) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: value}
}

func TestApply_MessageEventUpdatesSummaries(t *testing.T) {
	consumer, mem, _ := newConsumerFixture(t)
	ctx := context.Background()

	conv, err := mem.GetOrCreateConversation(ctx, 1, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := mem.CreateMessage(ctx, conv.ID, 1, "is this still available?")
	if err != nil {
		t.Fatal(err)
	}

	if err := consumer.apply(ctx, model.Event{Type: model.EventMessage, Message: &msg}); err != nil {
		t.Fatal(err)
	}

	bobs, err := mem.ListSummaries(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(bobs) != 1 {
		t.Fatalf("len(summaries) = %d, want 1", len(bobs))
	}
	if bobs[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", bobs[0].UnreadCount)
	}
	if bobs[0].LastMessage == nil || bobs[0].LastMessage.ID != msg.ID {
		t.Errorf("last message = %+v, want id %d", bobs[0].LastMessage, msg.ID)
	}

	// The sender's own summary updates too, without an unread bump.
	alices, err := mem.ListSummaries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(alices) != 1 || alices[0].UnreadCount != 0 {
		t.Errorf("sender summaries = %+v, want one with unread 0", alices)
	}
}

func TestApply_SkipsPresenceEvents(t *testing.T) {
	consumer, mem, _ := newConsumerFixture(t)
	ctx := context.Background()

	event := model.Event{Type: model.EventPresence, OnlineUserIDs: []string{"1", "2"}}
	if err := consumer.apply(ctx, event); err != nil {
		t.Fatal(err)
	}

	summaries, err := mem.ListSummaries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Errorf("presence event created %d summaries", len(summaries))
	}
}

func TestApply_UnknownConversation(t *testing.T) {
	consumer, _, _ := newConsumerFixture(t)

	msg := model.Message{ID: 1, ConversationID: 42, SenderID: 1, Text: "hi"}
	err := consumer.apply(context.Background(), model.Event{Type: model.EventMessage, Message: &msg})
	if err == nil {
		t.Fatal("expected error for unknown conversation")
	}
}

func TestRun_DrainsMalformedAndValidEvents(t *testing.T) {
	consumer, mem, reader := newConsumerFixture(t)
	ctx := context.Background()

	conv, err := mem.GetOrCreateConversation(ctx, 1, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := mem.CreateMessage(ctx, conv.ID, 2, "still interested")
	if err != nil {
		t.Fatal(err)
	}

	reader.messages = []kafka.Message{
		{Value: []byte("not json")},
		encodeEvent(t, model.Event{Type: model.EventMessage, Message: &msg}),
	}

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	consumer.Run(runCtx)

	alices, err := mem.ListSummaries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(alices) != 1 || alices[0].UnreadCount != 1 {
		t.Errorf("summaries after run = %+v, want one with unread 1", alices)
	}
}
