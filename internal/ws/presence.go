// Package ws implements the realtime gateway: a websocket hub fanning out
// chat events and a presence tracker mirroring who currently holds at least
// one open connection.
package ws

import (
	"sort"
	"sync"
)

// OnlineUser is one entry in a presence snapshot.
type OnlineUser struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Connections int     `json:"connections"`
}

type presenceEntry struct {
	username    string
	avatarURL   *string
	connections int
}

// PresenceTracker counts open connections per user. A user is online while
// at least one connection is held; the entry disappears when the count
// reaches zero. Snapshots are taken under the same lock as the mutation
// that triggered them, so observers see transitions in a single total
// order.
type PresenceTracker struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry
}

// NewPresenceTracker constructs an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{entries: make(map[string]*presenceEntry)}
}

// Connect registers one connection for the user and returns the snapshot
// after the change plus whether the user just came online.
func (p *PresenceTracker) Connect(userID, username string, avatarURL *string) (snapshot []OnlineUser, cameOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userID]
	if !ok {
		entry = &presenceEntry{username: username, avatarURL: avatarURL}
		p.entries[userID] = entry
		cameOnline = true
	}
	entry.connections++
	return p.snapshotLocked(), cameOnline
}

// Disconnect releases one connection for the user and returns the snapshot
// after the change plus whether the user just went offline. Unknown users
// are a no-op.
func (p *PresenceTracker) Disconnect(userID string) (snapshot []OnlineUser, wentOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userID]
	if !ok {
		return p.snapshotLocked(), false
	}
	entry.connections--
	if entry.connections <= 0 {
		delete(p.entries, userID)
		wentOffline = true
	}
	return p.snapshotLocked(), wentOffline
}

// Snapshot returns the current online users sorted by username.
func (p *PresenceTracker) Snapshot() []OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// OnlineCount returns the number of distinct online users.
func (p *PresenceTracker) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *PresenceTracker) snapshotLocked() []OnlineUser {
	out := make([]OnlineUser, 0, len(p.entries))
	for id, entry := range p.entries {
		out = append(out, OnlineUser{
			UserID:      id,
			Username:    entry.username,
			AvatarURL:   entry.avatarURL,
			Connections: entry.connections,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
