package core

import "github.com/vseti/vseti-chat/internal/store"

// Profile holds the display attributes used to enrich fan-out payloads.
type Profile struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Nickname  string
	AvatarURL string
}

// MessageView is a stored message together with its sender's profile.
type MessageView struct {
	store.Message
	Sender Profile
}

// ConversationView is a conversation with resolved participant profiles and
// its last message, if any.
type ConversationView struct {
	*store.Conversation
	Members     []Profile
	LastMessage *store.Message
}

func profileFromUser(u *store.User) Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Nickname:  u.Nickname,
		AvatarURL: u.AvatarURL,
	}
}
