package core

import "github.com/vseti/vseti-chat/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventAuthSuccess confirms authentication and carries the caller's profile.
	EventAuthSuccess EventKind = iota
	// EventAuthError reports a failed authentication attempt.
	EventAuthError
	// EventConversationsList answers get_conversations.
	EventConversationsList
	// EventConversationCreated is sent to every participant of a created conversation.
	EventConversationCreated
	// EventMessagesList answers get_messages.
	EventMessagesList
	// EventNewMessage fans out a newly stored message.
	EventNewMessage
	// EventMessagesRead fans out a read-state change.
	EventMessagesRead
	// EventUnreadCounts answers get_unread_counts.
	EventUnreadCounts
	// EventParticipantAdded notifies the post-addition participant set.
	EventParticipantAdded
	// EventParticipantRemoved notifies the pre-removal participant set.
	EventParticipantRemoved
	// EventUserTyping relays a typing indicator.
	EventUserTyping
	// EventLogoutSuccess confirms logout right before the connection closes.
	EventLogoutSuccess
	// EventSessionReplaced tells a superseded connection it is being closed.
	EventSessionReplaced
	// EventError notifies the issuing client about a command failure.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after send.
type Event struct {
	Kind           EventKind
	ConversationID int64
	UserID         int64
	Count          int

	User          *Profile
	Message       *MessageView
	Messages      []*MessageView
	Conversation  *ConversationView
	Conversations []*ConversationView
	UnreadCounts  []store.UnreadCount

	Error   *CoreError
	Command string // inbound command that failed, for EventError
}
