package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/bazarya/chat-core/pkg/auth"
	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/snowflake"
	"github.com/bazarya/chat-core/pkg/store"
)

// stubEventReader plays back scripted results, then blocks until the
// context ends.
type stubEventReader struct {
	steps []func() (kafka.Message, error)
	next  int
}

func (r *stubEventReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.next < len(r.steps) {
		step := r.steps[r.next]
		r.next++
		return step()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func TestConsumeEvents_SurvivesReadError(t *testing.T) {
	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub("gw-local", store.NewMemStore(node), auth.NewVerifier("hub-test-secret", time.Hour), nil, nil, zerolog.Nop())

	member := testClient(2, "conn-b")
	hub.rooms.Join(7, member)

	msg := model.Message{ID: 11, ConversationID: 7, SenderID: 1, Text: "hi"}
	payload, err := json.Marshal(model.Event{Type: model.EventMessage, OriginGatewayID: "gw-remote", Message: &msg})
	if err != nil {
		t.Fatal(err)
	}

	reader := &stubEventReader{steps: []func() (kafka.Message, error){
		func() (kafka.Message, error) { return kafka.Message{}, errors.New("broker gone") },
		func() (kafka.Message, error) { return kafka.Message{Value: payload}, nil },
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.ConsumeEvents(ctx, reader)

	select {
	case raw := <-member.send:
		var frame outboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type != frameReceiveMessage || frame.Message == nil || frame.Message.ID != 11 {
			t.Errorf("delivered frame = %+v, want receiveMessage id 11", frame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event after a read error was never delivered")
	}
}
