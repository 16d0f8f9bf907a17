package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/bazarya/chat-core/pkg/db"
	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/snowflake"
)

// ScyllaStore implements Store and SummaryStore on ScyllaDB.
//
// Messages are a wide row per conversation clustered by id ascending, so
// history reads come back in canonical order without sorting. The sender
// profile is denormalized into each message row.
type ScyllaStore struct {
	session *db.Session
	ids     *snowflake.Node
}

func NewScyllaStore(session *db.Session, ids *snowflake.Node) *ScyllaStore {
	return &ScyllaStore{session: session, ids: ids}
}

func (s *ScyllaStore) CreateMessage(ctx context.Context, conversationID, senderID int64, text string) (model.Message, error) {
	sender, err := s.GetUser(ctx, senderID)
	if err != nil {
		return model.Message{}, fmt.Errorf("load sender %d: %w", senderID, err)
	}

	msg := model.Message{
		ID:             s.ids.Generate(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
		Sender:         sender,
	}

	err = s.session.Query(
		`INSERT INTO messages (conversation_id, id, sender_id, text, created_at, sender_name, sender_img)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.ID, msg.SenderID, msg.Text, msg.CreatedAt,
		sender.UserName, sender.ImgURL,
	).WithContext(ctx).Exec()
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (s *ScyllaStore) ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, sender_id, text, created_at, sender_name, sender_img
	          FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	// Scan the newest page with reversed clustering, then flip to ascending.
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	iter := s.session.Query(query, args...).WithContext(ctx).Iter()

	var messages []model.Message
	var msg model.Message
	for iter.Scan(&msg.ID, &msg.SenderID, &msg.Text, &msg.CreatedAt, &msg.Sender.UserName, &msg.Sender.ImgURL) {
		msg.ConversationID = conversationID
		msg.Sender.ID = msg.SenderID
		messages = append(messages, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *ScyllaStore) GetOrCreateConversation(ctx context.Context, userA, userB, listingID int64) (model.Conversation, error) {
	low, high := normalizePair(userA, userB)

	conv := model.Conversation{
		ID:        s.ids.Generate(),
		UserAID:   low,
		UserBID:   high,
		ListingID: listingID,
		CreatedAt: time.Now().UTC(),
	}

	// The pair lookup row is the idempotency point: the LWT insert either
	// claims the pair or tells us who claimed it first.
	previous := make(map[string]interface{})
	applied, err := s.session.Query(
		`INSERT INTO conversations_by_pair (user_a, user_b, listing_id, conversation_id)
		 VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		low, high, listingID, conv.ID,
	).WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("claim conversation pair: %w", err)
	}
	if !applied {
		existingID, _ := previous["conversation_id"].(int64)
		return s.GetConversation(ctx, existingID)
	}

	err = s.session.Query(
		`INSERT INTO conversations (id, user_a, user_b, listing_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.UserAID, conv.UserBID, conv.ListingID, conv.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return model.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	return conv, nil
}

func (s *ScyllaStore) GetConversation(ctx context.Context, id int64) (model.Conversation, error) {
	var conv model.Conversation
	err := s.session.Query(
		`SELECT id, user_a, user_b, listing_id, created_at FROM conversations WHERE id = ?`, id,
	).WithContext(ctx).Scan(&conv.ID, &conv.UserAID, &conv.UserBID, &conv.ListingID, &conv.CreatedAt)
	if err == gocql.ErrNotFound {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return conv, nil
}

func (s *ScyllaStore) GetUser(ctx context.Context, id int64) (model.UserProfile, error) {
	var user model.UserProfile
	err := s.session.Query(
		`SELECT id, user_name, img_url FROM users WHERE id = ?`, id,
	).WithContext(ctx).Scan(&user.ID, &user.UserName, &user.ImgURL)
	if err == gocql.ErrNotFound {
		return model.UserProfile{}, ErrNotFound
	}
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return user, nil
}

func (s *ScyllaStore) RecordActivity(ctx context.Context, conv model.Conversation, msg model.Message) error {
	recipient := conv.OtherParticipant(msg.SenderID)

	for _, userID := range []int64{conv.UserAID, conv.UserBID} {
		err := s.session.Query(
			`INSERT INTO conversation_summaries
			 (user_id, conversation_id, other_user_id, last_message_id, last_message_text, last_sender_id, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, conv.ID, conv.OtherParticipant(userID),
			msg.ID, msg.Text, msg.SenderID, msg.CreatedAt,
		).WithContext(ctx).Exec()
		if err != nil {
			return fmt.Errorf("update summary for %d: %w", userID, err)
		}
	}

	err := s.session.Query(
		`UPDATE unread_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND conversation_id = ?`,
		recipient, conv.ID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("increment unread for %d: %w", recipient, err)
	}
	return nil
}

func (s *ScyllaStore) ListSummaries(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	iter := s.session.Query(
		`SELECT conversation_id, other_user_id, last_message_id, last_message_text, last_sender_id, updated_at
		 FROM conversation_summaries WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var summaries []model.ConversationSummary
	var convID, otherID, lastID, lastSender int64
	var lastText string
	var updatedAt time.Time
	for iter.Scan(&convID, &otherID, &lastID, &lastText, &lastSender, &updatedAt) {
		summary := model.ConversationSummary{
			UpdatedAt: updatedAt,
		}
		conv, err := s.GetConversation(ctx, convID)
		if err != nil && err != ErrNotFound {
			iter.Close()
			return nil, err
		}
		summary.Conversation = conv

		if other, err := s.GetUser(ctx, otherID); err == nil {
			summary.OtherUser = other
		} else {
			summary.OtherUser = model.UserProfile{ID: otherID}
		}

		if lastID != 0 {
			summary.LastMessage = &model.Message{
				ID:             lastID,
				ConversationID: convID,
				SenderID:       lastSender,
				Text:           lastText,
				CreatedAt:      updatedAt,
			}
		}

		var unread int64
		if err := s.session.Query(
			`SELECT unread_count FROM unread_counters WHERE user_id = ? AND conversation_id = ?`,
			userID, convID,
		).WithContext(ctx).Scan(&unread); err == nil {
			summary.UnreadCount = unread
		}

		summaries = append(summaries, summary)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return summaries, nil
}

func (s *ScyllaStore) ResetUnread(ctx context.Context, userID, conversationID int64) error {
	// Deleting the row is how a counter resets in Scylla.
	err := s.session.Query(
		`DELETE FROM unread_counters WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}
