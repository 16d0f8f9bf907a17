package main

import (
	"encoding/json"
	"net/http"
	"sort"
)

type loginRequest struct {
	UserID int64 `json:"userId"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login mints a development token for a known user. Production deployments
// front this with the platform's real identity service.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetUser(r.Context(), req.UserID); err != nil {
		http.Error(w, "Unknown user", http.StatusNotFound)
		return
	}

	token, err := h.verifier.GenerateToken(req.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", req.UserID).Msg("token mint failed")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type onlineUsersResponse struct {
	UserIDs []string `json:"userIds"`
}

// OnlineUsers returns the best-effort presence snapshot from the Redis
// mirror maintained by the gateways.
func (h *Handlers) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	users := []string{}
	if h.redis != nil {
		result, err := h.redis.SMembers(r.Context(), "presence:online").Result()
		if err != nil {
			h.log.Error().Err(err).Msg("presence snapshot read failed")
			http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
			return
		}
		users = result
		sort.Strings(users)
	}

	writeJSON(w, http.StatusOK, onlineUsersResponse{UserIDs: users})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
