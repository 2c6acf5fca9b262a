package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vseti/vseti-chat/internal/store"
)

// Membership adds and removes conversation participants and notifies them.
type Membership struct {
	directory *Directory
	store     Storage
	profiles  ProfileResolver
	registry  *Registry
	router    *Router
}

// NewMembership builds a membership manager.
func NewMembership(directory *Directory, st Storage, profiles ProfileResolver, registry *Registry, router *Router) *Membership {
	return &Membership{
		directory: directory,
		store:     st,
		profiles:  profiles,
		registry:  registry,
		router:    router,
	}
}

// Add puts userID into the conversation on behalf of actorID. Adding an
// existing participant is a no-op that still notifies. It returns the
// participant set after the addition.
func (m *Membership) Add(ctx context.Context, actorID, conversationID, userID int64) ([]int64, error) {
	conv, err := m.directory.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(actorID) {
		return nil, ErrNotAParticipant
	}
	profile, err := m.profiles.ResolveProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	after, err := m.store.AddParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("add participant: %w", err)
	}

	m.router.Deliver(after, &Event{
		Kind:           EventParticipantAdded,
		ConversationID: conversationID,
		UserID:         userID,
		User:           &profile,
	})
	return after, nil
}

// Remove takes userID out of the conversation on behalf of actorID. Everyone
// who was a participant before the removal, the removed user included, is
// notified. It returns that pre-removal set.
func (m *Membership) Remove(ctx context.Context, actorID, conversationID, userID int64) ([]int64, error) {
	conv, err := m.directory.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(actorID) {
		return nil, ErrNotAParticipant
	}

	before, err := m.store.RemoveParticipant(ctx, conversationID, userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotMember):
			return nil, ErrNotAParticipant
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("remove participant: %w", err)
	}

	m.registry.LeaveRoomForUser(conversationID, userID)
	m.router.Deliver(before, &Event{
		Kind:           EventParticipantRemoved,
		ConversationID: conversationID,
		UserID:         userID,
	})
	return before, nil
}
