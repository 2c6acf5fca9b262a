package core

import (
	"context"

	"github.com/vseti/vseti-chat/internal/store"
)

// Identity is the verified owner of a connection.
type Identity struct {
	UserID int64
}

// IdentityVerifier turns an opaque token into an identity. Implementations
// return ErrAuthenticationFailed for any token they reject.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// ProfileResolver looks up the display attributes of a user.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, userID int64) (Profile, error)
}

// Storage is the persistence surface the core depends on.
type Storage interface {
	store.UserStore
	store.ConversationStore
	store.MessageStore
}
