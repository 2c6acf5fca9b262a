package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is wrapped by every lookup that finds no row.
	ErrNotFound = errors.New("not found")
	// ErrNotMember is returned when a write requires conversation membership
	// and the user is not (or no longer) a participant.
	ErrNotMember = errors.New("not a conversation member")
	// ErrUserExists is returned when registering an email that is taken.
	ErrUserExists = errors.New("user already exists")
)

// User represents a user in the system.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Nickname     string
	AvatarURL    string
	CreatedAt    time.Time
}

// Conversation is a direct or group chat with its participant set.
type Conversation struct {
	ID            int64
	Name          string
	IsGroup       bool
	AvatarURL     string
	Participants  []int64
	LastMessageID *int64
	CreatedAt     time.Time
	// UpdatedAt is the time of the last activity: last message or creation.
	UpdatedAt time.Time
}

// HasParticipant reports whether userID is a current participant.
func (c *Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

// UnreadCount is the number of unread messages in one conversation for one user.
type UnreadCount struct {
	ConversationID int64
	Count          int
}

// NewUser holds the fields needed to create a user.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Nickname     string
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, u NewUser) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// CountUsers returns how many of the given ids resolve to existing users.
	CountUsers(ctx context.Context, ids []int64) (int, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation persists a conversation with its participants.
	// For non-group conversations with exactly two participants the
	// existing conversation is returned instead of creating a duplicate.
	CreateConversation(ctx context.Context, name string, isGroup bool, participants []int64) (*Conversation, error)

	// GetConversation retrieves a conversation with its participants.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// FindDirectConversation returns the non-group conversation between two users.
	FindDirectConversation(ctx context.Context, userA, userB int64) (*Conversation, error)

	// ListConversations lists the user's conversations, most recent activity first.
	ListConversations(ctx context.Context, userID int64) ([]*Conversation, error)

	// AddParticipant adds a user and returns the participant set after the addition.
	AddParticipant(ctx context.Context, conversationID, userID int64) ([]int64, error)

	// RemoveParticipant removes a user and returns the participant set before the removal.
	RemoveParticipant(ctx context.Context, conversationID, userID int64) ([]int64, error)

	// SetLastMessage moves the last message pointer to a message that
	// belongs to the conversation. CreateMessage already does this.
	SetLastMessage(ctx context.Context, conversationID, messageID int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage inserts the message and moves the conversation's last
	// message pointer in one transaction. It fills msg.ID and may raise
	// msg.CreatedAt so it is not earlier than the previous message.
	// The returned slice is the participant set at commit time.
	CreateMessage(ctx context.Context, msg *Message) ([]int64, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns a page of messages in chronological order.
	// Offset counts back from the newest message.
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error)

	// MarkRead flips is_read for messages not sent by readerID and returns
	// the number of rows changed.
	MarkRead(ctx context.Context, conversationID, readerID int64) (int, error)

	// UnreadCounts returns one entry per conversation the user participates in.
	UnreadCounts(ctx context.Context, userID int64) ([]UnreadCount, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

// DirectKey returns the deduplication key of a two-party conversation:
// "dm:{minUserId}:{maxUserId}".
func DirectKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm:%d:%d", userA, userB)
}
