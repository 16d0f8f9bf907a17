package main

import (
	"net/http"
	"strconv"

	"github.com/bazarya/chat-core/pkg/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ListMessages pages through a conversation's history in (createdAt, id)
// ascending order. `before` (a message id, exclusive) walks backwards;
// `limit` caps the page size.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conv, ok := h.participantConversation(w, r, claims.UserID)
	if !ok {
		return
	}

	var beforeID int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid before cursor", http.StatusBadRequest)
			return
		}
		beforeID = parsed
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := h.store.ListMessages(r.Context(), conv.ID, beforeID, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("history query failed")
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}
