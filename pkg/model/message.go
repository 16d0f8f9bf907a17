package model

import "time"

// UserProfile is the minimal public view of a user, embedded in message
// records so recipients can render a message without a follow-up fetch.
type UserProfile struct {
	ID       int64  `json:"id"`
	UserName string `json:"userName"`
	ImgURL   string `json:"imgUrl,omitempty"`
}

// Message is a persisted chat message. The ID is assigned at persistence
// time and is monotonic per process; within a conversation messages are
// ordered by (CreatedAt, ID) ascending.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversationId"`
	SenderID       int64       `json:"senderId"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"createdAt"`
	Sender         UserProfile `json:"sender"`
}

// Conversation links exactly two participants, optionally anchored to a
// marketplace listing. Creation is idempotent per (pair, listing).
type Conversation struct {
	ID        int64     `json:"id"`
	UserAID   int64     `json:"userAId"`
	UserBID   int64     `json:"userBId"`
	ListingID int64     `json:"listingId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// OtherParticipant returns the participant that is not userID. It assumes
// userID is one of the two.
func (c Conversation) OtherParticipant(userID int64) int64 {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// ConversationSummary is the conversation-list view: the conversation, the
// other participant's profile, the latest message and the caller's unread
// count. Maintained by the messaging consumer, served by the REST API.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	OtherUser    UserProfile  `json:"otherUser"`
	LastMessage  *Message     `json:"lastMessage,omitempty"`
	UnreadCount  int64        `json:"unreadCount"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
