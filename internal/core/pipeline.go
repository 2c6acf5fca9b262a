package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vseti/vseti-chat/internal/store"
)

// DefaultMaxContentLength bounds message content in runes.
const DefaultMaxContentLength = 4000

// Pipeline validates, persists and fans out messages. Sends to the same
// conversation are serialized so every participant observes one order.
type Pipeline struct {
	directory  *Directory
	store      Storage
	profiles   ProfileResolver
	router     *Router
	locks      *keyedMutex
	maxContent int
	now        func() time.Time
}

// NewPipeline builds a message pipeline.
func NewPipeline(directory *Directory, st Storage, profiles ProfileResolver, router *Router, maxContent int, now func() time.Time) *Pipeline {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		directory:  directory,
		store:      st,
		profiles:   profiles,
		router:     router,
		locks:      newKeyedMutex(),
		maxContent: maxContent,
		now:        now,
	}
}

// Send stores a message from senderID and delivers new_message to every
// participant that is online, the sender included.
func (p *Pipeline) Send(ctx context.Context, conversationID, senderID int64, content string) (*MessageView, error) {
	conv, err := p.directory.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotAParticipant
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > p.maxContent {
		return nil, ErrInvalidInput
	}

	sender, err := p.profiles.ResolveProfile(ctx, senderID)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(conversationID)
	defer unlock()

	msg := store.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      p.now().UTC(),
	}
	participants, err := p.store.CreateMessage(ctx, &msg)
	if err != nil {
		if errors.Is(err, store.ErrNotMember) {
			return nil, ErrNotAParticipant
		}
		return nil, fmt.Errorf("store message: %w", err)
	}

	view := &MessageView{Message: msg, Sender: sender}
	p.router.Deliver(participants, &Event{
		Kind:           EventNewMessage,
		ConversationID: conversationID,
		UserID:         senderID,
		Message:        view,
	})
	return view, nil
}
