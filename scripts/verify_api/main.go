// Smoke test for a locally running API: login, open a conversation, pull
// its history. Assumes the demo users from scripts/seed_users exist.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

const apiAddr = "http://localhost:8081"

func post(path, token string, payload interface{}) *http.Response {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, apiAddr+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func main() {
	// 1. Login as the seeded user.
	resp := post("/login", "", map[string]int64{"userId": 1})
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		log.Fatal(err)
	}
	resp.Body.Close()
	fmt.Printf("Token: %s...\n", loginResp.Token[:10])

	// 2. Open (or find) the conversation with user 2.
	resp = post("/conversations", loginResp.Token, map[string]int64{"otherUserId": 2})
	var conv struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		log.Fatal(err)
	}
	resp.Body.Close()
	log.Printf("Conversation: %d", conv.ID)

	// 3. Pull its history.
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/conversations/%d/messages", apiAddr, conv.ID), nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	histResp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("History request failed:", err)
	}
	defer histResp.Body.Close()

	body, _ := io.ReadAll(histResp.Body)
	log.Printf("History: %s", string(body))
}
