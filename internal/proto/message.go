package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundTypeAuth               = "auth"
	InboundTypeGetConversations   = "get_conversations"
	InboundTypeCreateConversation = "create_conversation"
	InboundTypeGetMessages        = "get_messages"
	InboundTypeSendMessage        = "send_message"
	InboundTypeMarkRead           = "mark_messages_read"
	InboundTypeGetUnreadCounts    = "get_unread_counts"
	InboundTypeAddParticipant     = "add_participant"
	InboundTypeRemoveParticipant  = "remove_participant"
	InboundTypeTyping             = "typing"
	InboundTypeLogout             = "logout"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventAuthSuccess         = "auth_success"
	EventAuthError           = "auth_error"
	EventConversationsList   = "conversations_list"
	EventConversationCreated = "conversation_created"
	EventMessagesList        = "messages_list"
	EventNewMessage          = "new_message"
	EventMessagesRead        = "messages_read"
	EventUnreadCounts        = "unread_counts"
	EventParticipantAdded    = "participant_added"
	EventParticipantRemoved  = "participant_removed"
	EventUserTyping          = "user_typing"
	EventLogoutSuccess       = "logout_success"
	EventSessionReplaced     = "session_replaced"
	EventError               = "error"
)

// AuthData carries the identity token.
type AuthData struct {
	Token string `json:"token" validate:"required"`
}

// CreateConversationData requests a new conversation. The caller is always
// a participant and need not be listed.
type CreateConversationData struct {
	ParticipantIDs []int64 `json:"participantIds" validate:"max=256"`
	Name           string  `json:"name,omitempty" validate:"max=128"`
	IsGroup        bool    `json:"isGroup,omitempty"`
}

// GetMessagesData requests a page of history.
type GetMessagesData struct {
	ConversationID int64 `json:"conversationId" validate:"required,gt=0"`
	Limit          int   `json:"limit,omitempty" validate:"gte=0,lte=200"`
	Offset         int   `json:"offset,omitempty" validate:"gte=0"`
}

// SendMessageData posts a message.
type SendMessageData struct {
	ConversationID int64  `json:"conversationId" validate:"required,gt=0"`
	Content        string `json:"content"`
}

// ConversationData addresses a single conversation.
type ConversationData struct {
	ConversationID int64 `json:"conversationId" validate:"required,gt=0"`
}

// ParticipantData addresses a user within a conversation.
type ParticipantData struct {
	ConversationID int64 `json:"conversationId" validate:"required,gt=0"`
	UserID         int64 `json:"userId" validate:"required,gt=0"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	Command string `json:"command,omitempty"`
}

// User is the public profile of a user.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Message is a stored chat message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Sender         *User     `json:"sender,omitempty"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation is a conversation with its participants.
type Conversation struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name,omitempty"`
	IsGroup        bool      `json:"isGroup"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	ParticipantIDs []int64   `json:"participantIds"`
	Participants   []User    `json:"participants"`
	LastMessage    *Message  `json:"lastMessage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AuthSuccess answers a successful auth.
type AuthSuccess struct {
	User User `json:"user"`
}

// ConversationsList answers get_conversations.
type ConversationsList struct {
	Conversations []Conversation `json:"conversations"`
}

// ConversationCreated carries a created or found conversation.
type ConversationCreated struct {
	Conversation Conversation `json:"conversation"`
}

// MessagesList answers get_messages.
type MessagesList struct {
	ConversationID int64     `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

// NewMessage fans out a stored message.
type NewMessage struct {
	Message Message `json:"message"`
}

// MessagesRead reports a read-state change.
type MessagesRead struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	Count          int   `json:"count"`
}

// UnreadCount is the unread total of one conversation.
type UnreadCount struct {
	ConversationID int64 `json:"conversationId"`
	Count          int   `json:"count"`
}

// UnreadCounts answers get_unread_counts.
type UnreadCounts struct {
	Counts []UnreadCount `json:"counts"`
}

// ParticipantChanged reports an addition or removal.
type ParticipantChanged struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	User           *User `json:"user,omitempty"`
}

// UserTyping relays a typing indicator.
type UserTyping struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// TokenResponse is returned by the HTTP register and login endpoints.
type TokenResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
