package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bazarya/chat-core/pkg/model"
	"github.com/bazarya/chat-core/pkg/store"
)

type createConversationRequest struct {
	OtherUserID int64 `json:"otherUserId"`
	ListingID   int64 `json:"listingId,omitempty"`
}

// CreateConversation opens (or returns) the conversation between the
// caller and another user about a listing. Idempotent: contacting the same
// seller about the same listing twice yields the same conversation.
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OtherUserID == 0 || req.OtherUserID == claims.UserID {
		http.Error(w, "otherUserId must name another user", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetUser(r.Context(), req.OtherUserID); err != nil {
		http.Error(w, "Unknown user", http.StatusNotFound)
		return
	}

	conv, err := h.store.GetOrCreateConversation(r.Context(), claims.UserID, req.OtherUserID, req.ListingID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("conversation creation failed")
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// ListConversations returns the caller's conversation summaries, newest
// activity first.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, err := h.summaries.ListSummaries(r.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("summary list failed")
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []model.ConversationSummary{}
	}

	writeJSON(w, http.StatusOK, summaries)
}

// MarkRead resets the caller's unread counter for a conversation.
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conv, ok := h.participantConversation(w, r, claims.UserID)
	if !ok {
		return
	}

	if err := h.summaries.ResetUnread(r.Context(), claims.UserID, conv.ID); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("unread reset failed")
		http.Error(w, "Failed to reset unread count", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// participantConversation loads the {id} conversation and enforces that the
// caller is one of its two participants.
func (h *Handlers) participantConversation(w http.ResponseWriter, r *http.Request, userID int64) (model.Conversation, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return model.Conversation{}, false
	}

	conv, err := h.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return model.Conversation{}, false
	}
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", id).Msg("conversation lookup failed")
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return model.Conversation{}, false
	}
	if !conv.HasParticipant(userID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return model.Conversation{}, false
	}

	return conv, true
}
