package core

import (
	"context"
	"fmt"

	"github.com/vseti/vseti-chat/internal/store"
)

// ReadState tracks which messages participants have read.
type ReadState struct {
	directory *Directory
	store     Storage
	router    *Router
}

// NewReadState builds a read-state tracker.
func NewReadState(directory *Directory, st Storage, router *Router) *ReadState {
	return &ReadState{directory: directory, store: st, router: router}
}

// MarkRead marks every unread message in the conversation that readerID did
// not send as read, then tells all participants how many changed.
func (r *ReadState) MarkRead(ctx context.Context, conversationID, readerID int64) (int, error) {
	conv, err := r.directory.GetByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(readerID) {
		return 0, ErrNotAParticipant
	}

	n, err := r.store.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	r.router.Deliver(conv.Participants, &Event{
		Kind:           EventMessagesRead,
		ConversationID: conversationID,
		UserID:         readerID,
		Count:          n,
	})
	return n, nil
}

// UnreadCounts returns one entry per conversation of the user.
func (r *ReadState) UnreadCounts(ctx context.Context, userID int64) ([]store.UnreadCount, error) {
	counts, err := r.store.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	return counts, nil
}
