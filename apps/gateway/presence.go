package main

import (
	"sort"
	"strconv"
	"sync"

	"github.com/bazarya/chat-core/pkg/metrics"
)

// Presence is the process-wide user -> open connections registry. It starts
// empty, grows and shrinks with connect/disconnect, and is never persisted;
// a restart correctly begins from the empty state.
//
// All mutation goes through one mutex so near-simultaneous disconnects of
// two connections of the same user cannot race to a wrong emptiness check.
type Presence struct {
	mu    sync.Mutex
	conns map[int64]map[string]*Client // userID -> connID -> client
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[int64]map[string]*Client)}
}

// Register adds a connection under its user and reports whether the user
// just came online (this was their first open connection).
func (p *Presence) Register(client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[client.UserID]
	if !ok {
		set = make(map[string]*Client)
		p.conns[client.UserID] = set
		metrics.UsersOnline.Inc()
	}
	set[client.ConnID] = client
	return !ok
}

// Unregister removes a connection and reports whether the user went offline
// (no connections remain). Unknown connections are no-ops.
func (p *Presence) Unregister(client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[client.UserID]
	if !ok {
		return false
	}
	if _, ok := set[client.ConnID]; !ok {
		return false
	}
	delete(set, client.ConnID)
	if len(set) > 0 {
		return false
	}
	delete(p.conns, client.UserID)
	metrics.UsersOnline.Dec()
	return true
}

// OnlineUsers returns a snapshot of users with at least one open
// connection, as sorted decimal strings (the wire representation).
func (p *Presence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := make([]string, 0, len(p.conns))
	for userID := range p.conns {
		users = append(users, strconv.FormatInt(userID, 10))
	}
	sort.Strings(users)
	return users
}
