package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Page size bounds for get_messages.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// DuplicatePolicy decides what happens to a connection superseded by a
// newer authenticated connection of the same user.
type DuplicatePolicy string

const (
	// DuplicateKeep leaves the old connection open but orphaned: it no
	// longer receives fan-out and is cleaned up when it closes.
	DuplicateKeep DuplicatePolicy = "keep"
	// DuplicateEvict sends session_replaced to the old connection and closes it.
	DuplicateEvict DuplicatePolicy = "evict"
)

// Options tunes the hub.
type Options struct {
	MaxContentLength int
	DuplicatePolicy  DuplicatePolicy
	// Profiles overrides profile lookups; defaults to StoreProfiles.
	Profiles ProfileResolver
	Now      func() time.Time
}

// Hub drives the connection state machine and dispatches commands to the
// messaging components.
type Hub struct {
	store      Storage
	verifier   IdentityVerifier
	profiles   ProfileResolver
	registry   *Registry
	router     *Router
	directory  *Directory
	pipeline   *Pipeline
	readState  *ReadState
	membership *Membership
	policy     DuplicatePolicy
	log        *zerolog.Logger
}

// NewHub wires the messaging components over the storage.
func NewHub(st Storage, verifier IdentityVerifier, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = StoreProfiles{Users: st}
	}
	policy := opts.DuplicatePolicy
	if policy != DuplicateEvict {
		policy = DuplicateKeep
	}

	registry := NewRegistry()
	router := NewRouter(registry, logger)
	directory := NewDirectory(st, profiles)

	return &Hub{
		store:      st,
		verifier:   verifier,
		profiles:   profiles,
		registry:   registry,
		router:     router,
		directory:  directory,
		pipeline:   NewPipeline(directory, st, profiles, router, opts.MaxContentLength, opts.Now),
		readState:  NewReadState(directory, st, router),
		membership: NewMembership(directory, st, profiles, registry, router),
		policy:     policy,
		log:        logger,
	}
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Directory exposes the conversation directory.
func (h *Hub) Directory() *Directory { return h.directory }

// Connect starts tracking a freshly accepted connection.
func (h *Hub) Connect(c *Client) {
	h.registry.Attach(c)
	h.log.Debug().Str("client_id", c.ID).Msg("client connected")
}

// Disconnect releases everything held for c. It is safe to call more than
// once and on any exit path.
func (h *Hub) Disconnect(c *Client) {
	h.registry.Unregister(c)
	c.Close()
	h.log.Debug().Str("client_id", c.ID).Int64("user_id", c.owner()).Msg("client disconnected")
}

// Shutdown closes every attached connection.
func (h *Hub) Shutdown() {
	for _, c := range h.registry.Clients() {
		h.Disconnect(c)
	}
}

// Handle executes one command of c. Failures are reported to c only and
// never close the connection.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Kind != CommandAuth && !c.Authenticated() {
		h.Fail(c, cmd.Kind.String(), ErrNotAuthenticated)
		return
	}

	var err error
	switch cmd.Kind {
	case CommandAuth:
		err = h.handleAuth(ctx, c, cmd)
	case CommandGetConversations:
		err = h.handleGetConversations(ctx, c)
	case CommandCreateConversation:
		err = h.handleCreateConversation(ctx, c, cmd)
	case CommandGetMessages:
		err = h.handleGetMessages(ctx, c, cmd)
	case CommandSendMessage:
		err = h.handleSendMessage(ctx, c, cmd)
	case CommandMarkRead:
		err = h.handleMarkRead(ctx, c, cmd)
	case CommandGetUnreadCounts:
		err = h.handleUnreadCounts(ctx, c)
	case CommandAddParticipant:
		err = h.handleAddParticipant(ctx, c, cmd)
	case CommandRemoveParticipant:
		err = h.handleRemoveParticipant(ctx, c, cmd)
	case CommandTyping:
		err = h.handleTyping(ctx, c, cmd)
	case CommandLogout:
		h.handleLogout(c)
	default:
		err = ErrUnknownType
	}
	if err != nil {
		h.Fail(c, cmd.Kind.String(), err)
	}
}

// Fail reports err to c as an error event for the named command.
func (h *Hub) Fail(c *Client, command string, err error) {
	ce, ok := toCoreError(err)
	if !ok {
		h.log.Error().Err(err).Str("client_id", c.ID).Int64("user_id", c.owner()).
			Str("command", command).Msg("command failed")
	}
	kind := EventError
	if command == CommandAuth.String() {
		kind = EventAuthError
	}
	c.Send(&Event{Kind: kind, Error: ce, Command: command})
}

func (h *Hub) userID(c *Client) int64 {
	id, _ := c.UserID()
	return id
}

func (h *Hub) handleAuth(ctx context.Context, c *Client, cmd *Command) error {
	identity, err := h.verifier.Verify(ctx, cmd.Token)
	if err != nil {
		h.log.Debug().Err(err).Str("client_id", c.ID).Msg("token rejected")
		return ErrAuthenticationFailed
	}
	profile, err := h.profiles.ResolveProfile(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrAuthenticationFailed
		}
		return err
	}

	// Re-authenticating as someone else releases the old identity first.
	if owner := c.owner(); owner != 0 && owner != identity.UserID {
		h.registry.Unregister(c)
		h.registry.Attach(c)
	}
	if !c.authenticate(identity.UserID) {
		return nil
	}
	if prev := h.registry.Register(identity.UserID, c); prev != nil {
		h.supersede(prev)
	}

	h.log.Info().Str("client_id", c.ID).Int64("user_id", identity.UserID).Msg("client authenticated")
	c.Send(&Event{Kind: EventAuthSuccess, UserID: identity.UserID, User: &profile})
	return nil
}

func (h *Hub) supersede(prev *Client) {
	h.log.Info().Str("client_id", prev.ID).Int64("user_id", prev.owner()).
		Str("policy", string(h.policy)).Msg("connection superseded")
	if h.policy != DuplicateEvict {
		return
	}
	prev.Send(&Event{Kind: EventSessionReplaced, UserID: prev.owner()})
	h.registry.Unregister(prev)
	prev.Close()
}

func (h *Hub) handleGetConversations(ctx context.Context, c *Client) error {
	convs, err := h.directory.ListForUser(ctx, h.userID(c))
	if err != nil {
		return err
	}
	views, err := h.directory.Views(ctx, convs)
	if err != nil {
		return err
	}
	c.Send(&Event{Kind: EventConversationsList, Conversations: views})
	return nil
}

func (h *Hub) handleCreateConversation(ctx context.Context, c *Client, cmd *Command) error {
	userID := h.userID(c)
	participants := append([]int64{userID}, cmd.ParticipantIDs...)
	conv, err := h.directory.Create(ctx, participants, cmd.Name, cmd.IsGroup)
	if err != nil {
		return err
	}
	view, err := h.directory.View(ctx, conv)
	if err != nil {
		return err
	}
	h.registry.JoinRoom(conv.ID, c)
	h.router.Deliver(conv.Participants, &Event{
		Kind:           EventConversationCreated,
		ConversationID: conv.ID,
		UserID:         userID,
		Conversation:   view,
	})
	return nil
}

func (h *Hub) handleGetMessages(ctx context.Context, c *Client, cmd *Command) error {
	userID := h.userID(c)
	limit, offset := cmd.Limit, cmd.Offset
	if limit < 0 || offset < 0 {
		return ErrInvalidInput
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	conv, err := h.directory.GetByID(ctx, cmd.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotAParticipant
	}
	msgs, err := h.store.ListMessages(ctx, conv.ID, limit, offset)
	if err != nil {
		return err
	}

	senders := make(map[int64]Profile)
	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := senders[m.SenderID]
		if !ok {
			sender, err = h.profiles.ResolveProfile(ctx, m.SenderID)
			if err != nil && !errors.Is(err, ErrUserNotFound) {
				return err
			}
			sender.ID = m.SenderID
			senders[m.SenderID] = sender
		}
		views = append(views, &MessageView{Message: *m, Sender: sender})
	}

	h.registry.JoinRoom(conv.ID, c)
	c.Send(&Event{Kind: EventMessagesList, ConversationID: conv.ID, Messages: views})
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, cmd *Command) error {
	if _, err := h.pipeline.Send(ctx, cmd.ConversationID, h.userID(c), cmd.Content); err != nil {
		return err
	}
	h.registry.JoinRoom(cmd.ConversationID, c)
	return nil
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) error {
	_, err := h.readState.MarkRead(ctx, cmd.ConversationID, h.userID(c))
	return err
}

func (h *Hub) handleUnreadCounts(ctx context.Context, c *Client) error {
	counts, err := h.readState.UnreadCounts(ctx, h.userID(c))
	if err != nil {
		return err
	}
	c.Send(&Event{Kind: EventUnreadCounts, UnreadCounts: counts})
	return nil
}

func (h *Hub) handleAddParticipant(ctx context.Context, c *Client, cmd *Command) error {
	if _, err := h.membership.Add(ctx, h.userID(c), cmd.ConversationID, cmd.UserID); err != nil {
		return err
	}
	h.registry.JoinRoom(cmd.ConversationID, c)
	return nil
}

func (h *Hub) handleRemoveParticipant(ctx context.Context, c *Client, cmd *Command) error {
	_, err := h.membership.Remove(ctx, h.userID(c), cmd.ConversationID, cmd.UserID)
	return err
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, cmd *Command) error {
	userID := h.userID(c)
	conv, err := h.directory.GetByID(ctx, cmd.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotAParticipant
	}
	h.registry.JoinRoom(conv.ID, c)
	h.router.DeliverRoom(conv.ID, &Event{
		Kind:           EventUserTyping,
		ConversationID: conv.ID,
		UserID:         userID,
	}, c, conv.Participants)
	return nil
}

func (h *Hub) handleLogout(c *Client) {
	c.Send(&Event{Kind: EventLogoutSuccess, UserID: h.userID(c)})
	h.Disconnect(c)
}
