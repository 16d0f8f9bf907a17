package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/snowflake"
)

type pairKey struct {
	userA, userB, listingID int64
}

type summaryKey struct {
	userID, conversationID int64
}

// MemStore is an in-memory Store and SummaryStore with the same semantics
// as the Scylla implementation. It backs tests and local development.
type MemStore struct {
	mu            sync.Mutex
	ids           *snowflake.Node
	users         map[int64]model.UserProfile
	conversations map[int64]model.Conversation
	pairs         map[pairKey]int64
	messages      map[int64][]model.Message
	summaries     map[summaryKey]model.ConversationSummary
}

func NewMemStore(ids *snowflake.Node) *MemStore {
	return &MemStore{
		ids:           ids,
		users:         make(map[int64]model.UserProfile),
		conversations: make(map[int64]model.Conversation),
		pairs:         make(map[pairKey]int64),
		messages:      make(map[int64][]model.Message),
		summaries:     make(map[summaryKey]model.ConversationSummary),
	}
}

// AddUser seeds a user profile.
func (s *MemStore) AddUser(user model.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *MemStore) CreateMessage(ctx context.Context, conversationID, senderID int64, text string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.users[senderID]
	if !ok {
		return model.Message{}, ErrNotFound
	}

	msg := model.Message{
		ID:             s.ids.Generate(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
		Sender:         sender,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

func (s *MemStore) ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var page []model.Message
	for _, msg := range s.messages[conversationID] {
		if beforeID > 0 && msg.ID >= beforeID {
			continue
		}
		page = append(page, msg)
	}
	sort.Slice(page, func(i, j int) bool {
		if !page[i].CreatedAt.Equal(page[j].CreatedAt) {
			return page[i].CreatedAt.Before(page[j].CreatedAt)
		}
		return page[i].ID < page[j].ID
	})
	if len(page) > limit {
		page = page[len(page)-limit:]
	}
	return page, nil
}

func (s *MemStore) GetOrCreateConversation(ctx context.Context, userA, userB, listingID int64) (model.Conversation, error) {
	low, high := normalizePair(userA, userB)
	key := pairKey{userA: low, userB: high, listingID: listingID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairs[key]; ok {
		return s.conversations[id], nil
	}

	conv := model.Conversation{
		ID:        s.ids.Generate(),
		UserAID:   low,
		UserBID:   high,
		ListingID: listingID,
		CreatedAt: time.Now().UTC(),
	}
	s.pairs[key] = conv.ID
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *MemStore) GetConversation(ctx context.Context, id int64) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (s *MemStore) GetUser(ctx context.Context, id int64) (model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return model.UserProfile{}, ErrNotFound
	}
	return user, nil
}

func (s *MemStore) RecordActivity(ctx context.Context, conv model.Conversation, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipient := conv.OtherParticipant(msg.SenderID)
	last := msg
	for _, userID := range []int64{conv.UserAID, conv.UserBID} {
		key := summaryKey{userID: userID, conversationID: conv.ID}
		summary := s.summaries[key]
		summary.Conversation = conv
		summary.OtherUser = s.users[conv.OtherParticipant(userID)]
		if summary.OtherUser.ID == 0 {
			summary.OtherUser = model.UserProfile{ID: conv.OtherParticipant(userID)}
		}
		summary.LastMessage = &last
		summary.UpdatedAt = msg.CreatedAt
		if userID == recipient {
			summary.UnreadCount++
		}
		s.summaries[key] = summary
	}
	return nil
}

func (s *MemStore) ListSummaries(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ConversationSummary
	for key, summary := range s.summaries {
		if key.userID == userID {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemStore) ResetUnread(ctx context.Context, userID, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey{userID: userID, conversationID: conversationID}
	if summary, ok := s.summaries[key]; ok {
		summary.UnreadCount = 0
		s.summaries[key] = summary
	}
	return nil
}
