package store

import (
	"context"
	"testing"

	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/snowflake"
)

func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	node, err := snowflake.NewNode(0)
	if err != nil {
		t.Fatal(err)
	}
	s := NewMemStore(node)
	s.AddUser(model.UserProfile{ID: 1, UserName: "alice", ImgURL: "https://img/a"})
	s.AddUser(model.UserProfile{ID: 2, UserName: "bob"})
	return s
}

func TestGetOrCreateConversation_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateConversation(ctx, 1, 2, 77)
	if err != nil {
		t.Fatal(err)
	}
	// Same pair in reversed order, same listing.
	second, err := s.GetOrCreateConversation(ctx, 2, 1, 77)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("conversation re-created: %d != %d", first.ID, second.ID)
	}

	// A different listing is a different conversation.
	other, err := s.GetOrCreateConversation(ctx, 1, 2, 78)
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Error("distinct listings must not share a conversation")
	}
}

func TestCreateMessage_MonotonicIDsAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, 1, 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	var prev int64
	for i := 0; i < 20; i++ {
		msg, err := s.CreateMessage(ctx, conv.ID, 1, "hello")
		if err != nil {
			t.Fatal(err)
		}
		if msg.ID <= prev {
			t.Fatalf("message id %d not greater than previous %d", msg.ID, prev)
		}
		prev = msg.ID
	}

	messages, err := s.ListMessages(ctx, conv.ID, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 20 {
		t.Fatalf("len(messages) = %d, want 20", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].ID <= messages[i-1].ID {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestCreateMessage_ExpandsSenderProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.CreateMessage(ctx, 10, 1, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Sender.UserName != "alice" || msg.Sender.ID != 1 {
		t.Errorf("sender profile not expanded: %+v", msg.Sender)
	}

	if _, err := s.CreateMessage(ctx, 10, 999, "hi"); err != ErrNotFound {
		t.Errorf("unknown sender: err = %v, want ErrNotFound", err)
	}
}

func TestListMessages_BeforePagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 10; i++ {
		msg, err := s.CreateMessage(ctx, 5, 1, "m")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}

	page, err := s.ListMessages(ctx, 5, ids[7], 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 {
		t.Fatalf("len(page) = %d, want 3", len(page))
	}
	want := []int64{ids[4], ids[5], ids[6]}
	for i, msg := range page {
		if msg.ID != want[i] {
			t.Errorf("page[%d].ID = %d, want %d", i, msg.ID, want[i])
		}
	}
}

func TestRecordActivity_UnreadCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, 1, 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		msg, err := s.CreateMessage(ctx, conv.ID, 1, "ping")
		if err != nil {
			t.Fatal(err)
		}
		if err := s.RecordActivity(ctx, conv, msg); err != nil {
			t.Fatal(err)
		}
	}

	bobs, err := s.ListSummaries(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(bobs) != 1 {
		t.Fatalf("len(summaries) = %d, want 1", len(bobs))
	}
	if bobs[0].UnreadCount != 3 {
		t.Errorf("recipient unread = %d, want 3", bobs[0].UnreadCount)
	}
	if bobs[0].LastMessage == nil || bobs[0].LastMessage.Text != "ping" {
		t.Error("last message not recorded")
	}
	if bobs[0].OtherUser.ID != 1 {
		t.Errorf("other user = %d, want 1", bobs[0].OtherUser.ID)
	}

	alices, err := s.ListSummaries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(alices) != 1 || alices[0].UnreadCount != 0 {
		t.Error("sender must not accrue unread count")
	}

	if err := s.ResetUnread(ctx, 2, conv.ID); err != nil {
		t.Fatal(err)
	}
	bobs, _ = s.ListSummaries(ctx, 2)
	if bobs[0].UnreadCount != 0 {
		t.Errorf("unread after reset = %d, want 0", bobs[0].UnreadCount)
	}
}
