package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/vseti/vseti-chat/internal/store"
)

// Directory answers conversation lookups and creates conversations.
type Directory struct {
	store    Storage
	profiles ProfileResolver
}

// NewDirectory builds a directory over the storage.
func NewDirectory(st Storage, profiles ProfileResolver) *Directory {
	return &Directory{store: st, profiles: profiles}
}

// GetByID returns the conversation with its current participants.
func (d *Directory) GetByID(ctx context.Context, id int64) (*store.Conversation, error) {
	conv, err := d.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return conv, nil
}

// ListForUser returns the user's conversations, most recent activity first.
func (d *Directory) ListForUser(ctx context.Context, userID int64) ([]*store.Conversation, error) {
	convs, err := d.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %d: %w", userID, err)
	}
	return convs, nil
}

// Create makes a conversation between the given users. A non-group
// conversation between two users is returned as-is if it already exists.
func (d *Directory) Create(ctx context.Context, participants []int64, name string, isGroup bool) (*store.Conversation, error) {
	ids := lo.Uniq(participants)
	if len(ids) < 2 || lo.Contains(ids, 0) {
		return nil, ErrInvalidParticipants
	}
	n, err := d.store.CountUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	if n != len(ids) {
		return nil, ErrInvalidParticipants
	}

	conv, err := d.store.CreateConversation(ctx, name, isGroup, ids)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// UpdateLastMessage repoints the conversation at one of its messages.
// Sending a message already moves the pointer in the insert transaction.
func (d *Directory) UpdateLastMessage(ctx context.Context, conversationID, messageID int64) error {
	if err := d.store.SetLastMessage(ctx, conversationID, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidInput
		}
		return fmt.Errorf("update last message: %w", err)
	}
	return nil
}

// View resolves participant profiles and the last message of conv.
func (d *Directory) View(ctx context.Context, conv *store.Conversation) (*ConversationView, error) {
	view := &ConversationView{
		Conversation: conv,
		Members:      make([]Profile, 0, len(conv.Participants)),
	}
	for _, id := range conv.Participants {
		p, err := d.profiles.ResolveProfile(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		view.Members = append(view.Members, p)
	}
	if conv.LastMessageID != nil {
		msg, err := d.store.GetMessage(ctx, *conv.LastMessageID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get last message: %w", err)
		}
		view.LastMessage = msg
	}
	return view, nil
}

// Views resolves a list of conversations, keeping order.
func (d *Directory) Views(ctx context.Context, convs []*store.Conversation) ([]*ConversationView, error) {
	out := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		view, err := d.View(ctx, conv)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}
