package core

// Room groups the connections currently viewing one conversation.
// It is not safe for concurrent use; the Registry guards it.
type Room struct {
	ConversationID int64
	clients        map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(conversationID int64) *Room {
	return &Room{
		ConversationID: conversationID,
		clients:        make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Clients returns a snapshot of the room members.
func (r *Room) Clients() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
