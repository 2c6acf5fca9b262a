package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuth authenticates the connection with an identity token.
	CommandAuth CommandKind = iota
	// CommandGetConversations lists the caller's conversations.
	CommandGetConversations
	// CommandCreateConversation creates (or finds) a conversation.
	CommandCreateConversation
	// CommandGetMessages returns a page of a conversation's messages.
	CommandGetMessages
	// CommandSendMessage posts a message to a conversation.
	CommandSendMessage
	// CommandMarkRead marks others' messages in a conversation as read.
	CommandMarkRead
	// CommandGetUnreadCounts returns unread counts per conversation.
	CommandGetUnreadCounts
	// CommandAddParticipant adds a user to a conversation.
	CommandAddParticipant
	// CommandRemoveParticipant removes a user from a conversation.
	CommandRemoveParticipant
	// CommandTyping relays a typing indicator to the conversation room.
	CommandTyping
	// CommandLogout ends the session and closes the connection.
	CommandLogout
)

var commandNames = map[CommandKind]string{
	CommandAuth:               "auth",
	CommandGetConversations:   "get_conversations",
	CommandCreateConversation: "create_conversation",
	CommandGetMessages:        "get_messages",
	CommandSendMessage:        "send_message",
	CommandMarkRead:           "mark_messages_read",
	CommandGetUnreadCounts:    "get_unread_counts",
	CommandAddParticipant:     "add_participant",
	CommandRemoveParticipant:  "remove_participant",
	CommandTyping:             "typing",
	CommandLogout:             "logout",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client. Only the fields
// relevant to Kind are set.
type Command struct {
	Kind           CommandKind
	Token          string
	ConversationID int64
	UserID         int64
	ParticipantIDs []int64
	Name           string
	IsGroup        bool
	Content        string
	Limit          int
	Offset         int
}
