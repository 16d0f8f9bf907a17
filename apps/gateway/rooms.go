package main

import (
	"sync"

	"github.com/bazarya/chat-core/pkg/metrics"
)

// RoomRouter manages conversation-scoped broadcast groups. Rooms are
// transient: membership is rebuilt as clients reconnect and rejoin, and a
// disconnect prunes the connection from every room it was in.
//
// Delivery policy: fan-out never blocks on a member. A member whose send
// buffer is full or whose connection already closed is skipped silently;
// durability is the store's job, not live delivery's.
type RoomRouter struct {
	mu    sync.Mutex
	rooms map[int64]map[string]*Client // conversationID -> connID -> client
}

func NewRoomRouter() *RoomRouter {
	return &RoomRouter{rooms: make(map[int64]map[string]*Client)}
}

// Join adds the connection to the conversation's room. Idempotent.
func (r *RoomRouter) Join(conversationID int64, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		r.rooms[conversationID] = room
	}
	room[client.ConnID] = client
}

// DropConnection removes the connection from every room.
func (r *RoomRouter) DropConnection(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conversationID, room := range r.rooms {
		delete(room, client.ConnID)
		if len(room) == 0 {
			delete(r.rooms, conversationID)
		}
	}
}

// MemberCount returns the room's current size.
func (r *RoomRouter) MemberCount(conversationID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[conversationID])
}

// Broadcast delivers payload to every member of the room except
// excludeConnID and returns how many deliveries were attempted. The lock
// covers only the membership snapshot, never the sends.
func (r *RoomRouter) Broadcast(conversationID int64, payload []byte, excludeConnID string) int {
	if payload == nil {
		return 0
	}

	r.mu.Lock()
	members := make([]*Client, 0, len(r.rooms[conversationID]))
	for connID, client := range r.rooms[conversationID] {
		if connID == excludeConnID {
			continue
		}
		members = append(members, client)
	}
	r.mu.Unlock()

	for _, client := range members {
		if !client.trySend(payload) {
			metrics.BroadcastDrops.Inc()
		}
	}
	return len(members)
}
