// Package store defines the durable-store contract the chat core depends on
// and its ScyllaDB implementation. The core only needs this read/write
// surface; schema ownership and the wider user/listing tables live with the
// platform's persistence service.
package store

import (
	"context"
	"errors"

	"github.com/bazarya/chat-core/pkg/model"
)

// ErrNotFound reports a missing user or conversation.
var ErrNotFound = errors.New("store: not found")

// Store is the message/conversation contract consumed by the gateway and
// the REST API. CreateMessage assigns the message ID at persistence time;
// assignment order matches persistence order.
type Store interface {
	// CreateMessage persists a message and returns the full record with the
	// sender's public profile expanded for immediate rendering.
	CreateMessage(ctx context.Context, conversationID, senderID int64, text string) (model.Message, error)

	// ListMessages returns up to limit messages of a conversation in
	// (created_at, id) ascending order. A non-zero beforeID returns only
	// messages with id < beforeID (exclusive), for backward pagination.
	ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error)

	// GetOrCreateConversation is idempotent per (pair, listing): the same
	// participants asking to chat about the same listing always get the
	// same conversation back.
	GetOrCreateConversation(ctx context.Context, userA, userB, listingID int64) (model.Conversation, error)

	GetConversation(ctx context.Context, id int64) (model.Conversation, error)

	GetUser(ctx context.Context, id int64) (model.UserProfile, error)
}

// SummaryStore maintains the per-user conversation list: last activity and
// unread counters. Written by the messaging consumer, read by the REST API.
type SummaryStore interface {
	// RecordActivity folds a persisted message into both participants'
	// summary rows and increments the recipient's unread counter.
	RecordActivity(ctx context.Context, conv model.Conversation, msg model.Message) error

	ListSummaries(ctx context.Context, userID int64) ([]model.ConversationSummary, error)

	// ResetUnread zeroes userID's unread counter for the conversation.
	ResetUnread(ctx context.Context, userID, conversationID int64) error
}

// normalizePair orders a participant pair so (a,b) and (b,a) key the same
// conversation.
func normalizePair(userA, userB int64) (int64, int64) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}
