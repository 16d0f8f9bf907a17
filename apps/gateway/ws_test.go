package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/auth"
	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/snowflake"
	"github.com/bazarya/chat-core/pkg/store"
)

type wsFixture struct {
	server   *httptest.Server
	store    *store.MemStore
	verifier *auth.Verifier
	conv     model.Conversation
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemStore(node)
	mem.AddUser(model.UserProfile{ID: 1, UserName: "alice", ImgURL: "https://img/a"})
	mem.AddUser(model.UserProfile{ID: 2, UserName: "bob"})
	mem.AddUser(model.UserProfile{ID: 3, UserName: "mallory"})

	conv, err := mem.GetOrCreateConversation(context.Background(), 1, 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	verifier := auth.NewVerifier("ws-test-secret", time.Hour)
	hub := NewHub("test-gateway", mem, verifier, nil, nil, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, store: mem, verifier: verifier, conv: conv}
}

func (f *wsFixture) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if userID != 0 {
		token, err := f.verifier.GenerateToken(userID)
		if err != nil {
			t.Fatal(err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame inboundFrame) {
	t.Helper()
	payload, err := json.Marshal(frame)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) outboundFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q frame: %v", frameType, err)
		}
		var frame outboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type == frameType {
			return frame
		}
	}
}

// expectNoFrame asserts no frame of the given type arrives within the window.
func expectNoFrame(t *testing.T, conn *websocket.Conn, frameType string, window time.Duration) {
	t.Helper()
	deadline := time.Now().Add(window)
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return // timeout: nothing arrived
		}
		var frame outboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Type == frameType {
			t.Fatalf("unexpected %q frame: %+v", frameType, frame)
		}
	}
}

func TestWS_SendMessageScenario(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)

	// Both see the online set once the second user connects.
	users := readUntil(t, bob, frameGetOnlineUsers)
	if len(users.UserIDs) != 2 {
		t.Errorf("online set = %v, want two users", users.UserIDs)
	}

	sendFrame(t, alice, inboundFrame{Type: frameJoinConversation, ConversationID: f.conv.ID})
	sendFrame(t, bob, inboundFrame{Type: frameJoinConversation, ConversationID: f.conv.ID})
	// Joins carry no response; give the server a beat to process them.
	time.Sleep(100 * time.Millisecond)

	ackID := uuid.NewString()
	sendFrame(t, alice, inboundFrame{
		Type:  frameSendMessage,
		AckID: ackID,
		Data:  &sendData{ConversationID: f.conv.ID, Text: "hi"},
	})

	ack := readUntil(t, alice, frameAck)
	if ack.AckID != ackID {
		t.Errorf("ack id = %q, want %q", ack.AckID, ackID)
	}
	if ack.Status != statusOK || ack.Message == nil {
		t.Fatalf("ack = %+v, want ok with message", ack)
	}
	if ack.Message.SenderID != 1 || ack.Message.ConversationID != f.conv.ID || ack.Message.Text != "hi" {
		t.Errorf("ack message = %+v", ack.Message)
	}
	if ack.Message.Sender.UserName != "alice" {
		t.Errorf("ack sender profile = %+v", ack.Message.Sender)
	}

	push := readUntil(t, bob, frameReceiveMessage)
	if push.Message == nil || push.Message.ID != ack.Message.ID {
		t.Errorf("bob's push = %+v, want the acked record", push.Message)
	}
	if push.Message.Text != "hi" || push.Message.Sender.UserName != "alice" {
		t.Errorf("push record differs from ack: %+v", push.Message)
	}

	// The sender never receives its own message as a push.
	expectNoFrame(t, alice, frameReceiveMessage, 300*time.Millisecond)
}

func TestWS_UnauthenticatedSend(t *testing.T) {
	f := newWSFixture(t)

	anon := f.dial(t, 0)

	sendFrame(t, anon, inboundFrame{
		Type:  frameSendMessage,
		AckID: "a1",
		Data:  &sendData{ConversationID: f.conv.ID, Text: "hi"},
	})

	ack := readUntil(t, anon, frameAck)
	if ack.Status != statusError || ack.Error != "Unauthorized" {
		t.Errorf("ack = %+v, want Unauthorized error", ack)
	}

	messages, _ := f.store.ListMessages(context.Background(), f.conv.ID, 0, 10)
	if len(messages) != 0 {
		t.Error("unauthorized send must not persist")
	}
}

func TestWS_BlankText(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, 1)
	sendFrame(t, alice, inboundFrame{
		Type:  frameSendMessage,
		AckID: "a2",
		Data:  &sendData{ConversationID: f.conv.ID, Text: "   "},
	})

	ack := readUntil(t, alice, frameAck)
	if ack.Status != statusError || ack.Error != "Invalid message data" {
		t.Errorf("ack = %+v, want invalid input error", ack)
	}

	messages, _ := f.store.ListMessages(context.Background(), f.conv.ID, 0, 10)
	if len(messages) != 0 {
		t.Error("blank send must not persist")
	}
}

func TestWS_NonParticipantCannotJoin(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)
	mallory := f.dial(t, 3)

	sendFrame(t, alice, inboundFrame{Type: frameJoinConversation, ConversationID: f.conv.ID})
	sendFrame(t, bob, inboundFrame{Type: frameJoinConversation, ConversationID: f.conv.ID})
	sendFrame(t, mallory, inboundFrame{Type: frameJoinConversation, ConversationID: f.conv.ID})
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, alice, inboundFrame{
		Type:  frameSendMessage,
		AckID: "a3",
		Data:  &sendData{ConversationID: f.conv.ID, Text: "secret"},
	})

	readUntil(t, bob, frameReceiveMessage)
	expectNoFrame(t, mallory, frameReceiveMessage, 300*time.Millisecond)
}

func TestWS_PresencePushReachesUnauthenticated(t *testing.T) {
	f := newWSFixture(t)

	anon := f.dial(t, 0)

	// The connection starts from the current snapshot even without
	// authenticating (empty here, nobody is online yet).
	snapshot := readUntil(t, anon, frameGetOnlineUsers)
	if len(snapshot.UserIDs) != 0 {
		t.Errorf("initial snapshot = %v, want empty", snapshot.UserIDs)
	}

	f.dial(t, 1)

	push := readUntil(t, anon, frameGetOnlineUsers)
	if len(push.UserIDs) != 1 || push.UserIDs[0] != "1" {
		t.Errorf("presence push = %v, want [1]", push.UserIDs)
	}
}

func TestWS_PresenceAcrossDisconnect(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, 1)
	aliceTab := f.dial(t, 1)
	bob := f.dial(t, 2)

	// Bob observes alice online.
	users := readUntil(t, bob, frameGetOnlineUsers)
	found := false
	for _, id := range users.UserIDs {
		if id == "1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("online set %v missing user 1", users.UserIDs)
	}

	// Closing one of alice's tabs must not take her offline.
	aliceTab.Close()
	expectNoFrame(t, bob, frameGetOnlineUsers, 300*time.Millisecond)

	// Closing the last one does.
	alice.Close()
	users = readUntil(t, bob, frameGetOnlineUsers)
	for _, id := range users.UserIDs {
		if id == "1" {
			t.Errorf("user 1 still online after last disconnect: %v", users.UserIDs)
		}
	}
}
