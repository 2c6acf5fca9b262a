package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vseti/vseti-chat/internal/store"
)

// StoreProfiles resolves profiles straight from the user table.
type StoreProfiles struct {
	Users store.UserStore
}

// ResolveProfile implements ProfileResolver.
func (p StoreProfiles) ResolveProfile(ctx context.Context, userID int64) (Profile, error) {
	u, err := p.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, fmt.Errorf("resolve profile %d: %w", userID, err)
	}
	return profileFromUser(u), nil
}
