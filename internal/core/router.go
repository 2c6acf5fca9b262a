package core

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Router pushes events to live connections. Delivery is best effort:
// offline users are skipped and a full buffer drops the event for that
// connection only.
type Router struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewRouter builds a router over the registry.
func NewRouter(registry *Registry, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{registry: registry, log: logger}
}

// Deliver sends ev to the live connection of each target user and returns
// how many connections accepted it.
func (r *Router) Deliver(targets []int64, ev *Event) int {
	delivered := 0
	for _, userID := range lo.Uniq(targets) {
		c, ok := r.registry.Lookup(userID)
		if !ok {
			continue
		}
		if r.push(c, ev) {
			delivered++
		}
	}
	return delivered
}

// DeliverRoom sends ev to every connection in the conversation room except
// the given one, which may be nil. Connections whose user is no longer in
// participants are pruned from the room instead of receiving ev.
func (r *Router) DeliverRoom(conversationID int64, ev *Event, except *Client, participants []int64) int {
	members := lo.Keyify(participants)
	delivered := 0
	for _, c := range r.registry.RoomClients(conversationID) {
		if _, ok := members[c.owner()]; !ok {
			r.registry.LeaveRoom(conversationID, c)
			continue
		}
		if c == except {
			continue
		}
		if r.push(c, ev) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) push(c *Client, ev *Event) bool {
	if c.Send(ev) {
		return true
	}
	if c.State() != StateClosed {
		r.log.Warn().
			Str("client_id", c.ID).
			Int64("conversation_id", ev.ConversationID).
			Int64("dropped", c.Dropped()).
			Msg("outbound buffer full, event dropped")
	}
	return false
}
