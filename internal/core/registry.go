package core

import "sync"

// Registry maps user identities to their single live connection and keeps
// the per-connection set of joined conversation rooms.
type Registry struct {
	mu       sync.RWMutex
	attached map[*Client]struct{}
	byUser   map[int64]*Client
	rooms    map[int64]*Room
	joined   map[*Client]map[int64]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		attached: make(map[*Client]struct{}),
		byUser:   make(map[int64]*Client),
		rooms:    make(map[int64]*Room),
		joined:   make(map[*Client]map[int64]struct{}),
	}
}

// Attach tracks a connection that has not authenticated yet.
func (r *Registry) Attach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached[c] = struct{}{}
}

// Register installs userID -> c, replacing any previous mapping, and
// returns the superseded connection (nil if none or if it is c itself).
// The superseded connection loses its room memberships.
func (r *Registry) Register(userID int64, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attached[c] = struct{}{}
	prev := r.byUser[userID]
	r.byUser[userID] = c
	if prev == nil || prev == c {
		return nil
	}
	r.leaveAllLocked(prev)
	return prev
}

// Lookup returns the live connection of a user. ok=false means offline.
func (r *Registry) Lookup(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Online reports whether the user has a registered connection.
func (r *Registry) Online(userID int64) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Unregister forgets the connection. The user mapping is removed only if it
// still points at c; room memberships are always dropped.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attached, c)
	if userID := c.owner(); userID != 0 && r.byUser[userID] == c {
		delete(r.byUser, userID)
	}
	r.leaveAllLocked(c)
}

// JoinRoom subscribes c to a conversation room. Only the registered
// connection of a user may join; orphaned connections get no fan-out.
func (r *Registry) JoinRoom(conversationID int64, c *Client) bool {
	userID, ok := c.UserID()
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byUser[userID] != c {
		return false
	}
	room, ok := r.rooms[conversationID]
	if !ok {
		room = NewRoom(conversationID)
		r.rooms[conversationID] = room
	}
	if !room.AddClient(c) {
		return false
	}
	set, ok := r.joined[c]
	if !ok {
		set = make(map[int64]struct{})
		r.joined[c] = set
	}
	set[conversationID] = struct{}{}
	return true
}

// LeaveRoom unsubscribes c from a conversation room.
func (r *Registry) LeaveRoom(conversationID int64, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(conversationID, c)
}

// LeaveRoomForUser drops the user's live connection, if any, from the room.
func (r *Registry) LeaveRoomForUser(conversationID, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return false
	}
	return r.leaveLocked(conversationID, c)
}

// RoomClients returns a snapshot of the connections in a room.
func (r *Registry) RoomClients(conversationID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[conversationID]
	if !ok {
		return nil
	}
	return room.Clients()
}

// Rooms returns the conversation ids c has joined.
func (r *Registry) Rooms(c *Client) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.joined[c]))
	for id := range r.joined[c] {
		out = append(out, id)
	}
	return out
}

// Clients returns a snapshot of every attached connection.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.attached))
	for c := range r.attached {
		out = append(out, c)
	}
	return out
}

// OnlineCount returns the number of registered users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) leaveLocked(conversationID int64, c *Client) bool {
	room, ok := r.rooms[conversationID]
	if !ok || !room.RemoveClient(c) {
		return false
	}
	if room.Empty() {
		delete(r.rooms, conversationID)
	}
	if set, ok := r.joined[c]; ok {
		delete(set, conversationID)
		if len(set) == 0 {
			delete(r.joined, c)
		}
	}
	return true
}

func (r *Registry) leaveAllLocked(c *Client) {
	for id := range r.joined[c] {
		if room, ok := r.rooms[id]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(r.rooms, id)
			}
		}
	}
	delete(r.joined, c)
}
