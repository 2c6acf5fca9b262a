package http

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/vseti/vseti-chat/internal/core"
	"github.com/vseti/vseti-chat/internal/proto"
	"github.com/vseti/vseti-chat/internal/store"
)

// commandMapper decodes and validates inbound frames into core commands.
type commandMapper struct {
	validate *validator.Validate
}

func newCommandMapper() *commandMapper {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &commandMapper{validate: v}
}

func invalidInput(msg string) *core.CoreError {
	return &core.CoreError{Code: core.ErrCodeInvalidInput, Message: msg}
}

// decode unmarshals data into dst and validates it. A missing data object
// is treated as empty.
func (m *commandMapper) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return invalidInput("malformed data: " + err.Error())
	}
	if err := m.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fe.Field() + " " + fe.Tag()
			})
			return invalidInput("invalid " + strings.Join(fields, ", "))
		}
		return invalidInput(err.Error())
	}
	return nil
}

func (m *commandMapper) inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeAuth:
		var d proto.AuthData
		if err := m.decode(inbound.Data, &d); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandAuth, Token: d.Token}, nil
	case proto.InboundTypeGetConversations:
		return &core.Command{Kind: core.CommandGetConversations}, nil
	case proto.InboundTypeCreateConversation:
		var d proto.CreateConversationData
		if err := m.decode(inbound.Data, &d); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:           core.CommandCreateConversation,
			ParticipantIDs: d.ParticipantIDs,
			Name:           strings.TrimSpace(d.Name),
			IsGroup:        d.IsGroup,
		}, nil
	case proto.InboundTypeGetMessages:
		var d proto.GetMessagesData
		if err := m.decode(inbound.Data, &d); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:           core.CommandGetMessages,
			ConversationID: d.ConversationID,
			Limit:          d.Limit,
			Offset:         d.Offset,
		}, nil
	case proto.InboundTypeSendMessage:
		var d proto.SendMessageData
		if err := m.decode(inbound.Data, &d); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandSendMessage, ConversationID: d.ConversationID, Content: d.Content}, nil
	case proto.InboundTypeMarkRead, proto.InboundTypeTyping:
		var d proto.ConversationData
		if err := m.decode(inbound.Data, &d); err != nil {
			return nil, err
		}
		kind := core.CommandMarkRead
		if inbound.Type == proto.InboundTypeTyping {
			kind = core.CommandTyping
		}
		return &core.Command{Kind: kind, ConversationID: d.ConversationID}, nil
	case proto.InboundTypeGetUnreadCounts:
		return &core.Command{Kind: core.CommandGetUnreadCounts}, nil
	case proto.InboundTypeAddParticipant, proto.InboundTypeRemoveParticipant:
		var d proto.ParticipantData
		if err := m.decode(inbound.Data, &d); err != nil {
			return nil, err
		}
		kind := core.CommandAddParticipant
		if inbound.Type == proto.InboundTypeRemoveParticipant {
			kind = core.CommandRemoveParticipant
		}
		return &core.Command{Kind: kind, ConversationID: d.ConversationID, UserID: d.UserID}, nil
	case proto.InboundTypeLogout:
		return &core.Command{Kind: core.CommandLogout}, nil
	default:
		return nil, core.ErrUnknownType
	}
}

var eventNames = map[core.EventKind]string{
	core.EventAuthSuccess:         proto.EventAuthSuccess,
	core.EventAuthError:           proto.EventAuthError,
	core.EventConversationsList:   proto.EventConversationsList,
	core.EventConversationCreated: proto.EventConversationCreated,
	core.EventMessagesList:        proto.EventMessagesList,
	core.EventNewMessage:          proto.EventNewMessage,
	core.EventMessagesRead:        proto.EventMessagesRead,
	core.EventUnreadCounts:        proto.EventUnreadCounts,
	core.EventParticipantAdded:    proto.EventParticipantAdded,
	core.EventParticipantRemoved:  proto.EventParticipantRemoved,
	core.EventUserTyping:          proto.EventUserTyping,
	core.EventLogoutSuccess:       proto.EventLogoutSuccess,
	core.EventSessionReplaced:     proto.EventSessionReplaced,
	core.EventError:               proto.EventError,
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	name := eventNames[event.Kind]
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: name}

	switch event.Kind {
	case core.EventAuthError, core.EventError:
		out.Type = proto.OutboundTypeError
		protoErr := &proto.Error{Code: core.ErrCodeInternal, Msg: "internal error", Command: event.Command}
		if event.Error != nil {
			protoErr.Code = event.Error.Code
			protoErr.Msg = event.Error.Message
		}
		out.Error = protoErr
	case core.EventAuthSuccess:
		if event.User != nil {
			out.Data = proto.AuthSuccess{User: profileToProto(*event.User)}
		}
	case core.EventConversationsList:
		out.Data = proto.ConversationsList{Conversations: conversationsToProto(event.Conversations)}
	case core.EventConversationCreated:
		if event.Conversation != nil {
			out.Data = proto.ConversationCreated{Conversation: conversationToProto(event.Conversation)}
		}
	case core.EventMessagesList:
		out.Data = proto.MessagesList{
			ConversationID: event.ConversationID,
			Messages: lo.Map(event.Messages, func(m *core.MessageView, _ int) proto.Message {
				return messageViewToProto(m)
			}),
		}
	case core.EventNewMessage:
		if event.Message != nil {
			out.Data = proto.NewMessage{Message: messageViewToProto(event.Message)}
		}
	case core.EventMessagesRead:
		out.Data = proto.MessagesRead{ConversationID: event.ConversationID, UserID: event.UserID, Count: event.Count}
	case core.EventUnreadCounts:
		out.Data = proto.UnreadCounts{Counts: lo.Map(event.UnreadCounts, func(c store.UnreadCount, _ int) proto.UnreadCount {
			return proto.UnreadCount{ConversationID: c.ConversationID, Count: c.Count}
		})}
	case core.EventParticipantAdded, core.EventParticipantRemoved:
		data := proto.ParticipantChanged{ConversationID: event.ConversationID, UserID: event.UserID}
		if event.User != nil {
			u := profileToProto(*event.User)
			data.User = &u
		}
		out.Data = data
	case core.EventUserTyping:
		out.Data = proto.UserTyping{ConversationID: event.ConversationID, UserID: event.UserID}
	}
	return out
}

func profileToProto(p core.Profile) proto.User {
	return proto.User{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Nickname:  p.Nickname,
		AvatarURL: p.AvatarURL,
	}
}

func userToProto(u *store.User) proto.User {
	return proto.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Nickname:  u.Nickname,
		AvatarURL: u.AvatarURL,
	}
}

func messageToProto(m *store.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

func messageViewToProto(m *core.MessageView) proto.Message {
	out := messageToProto(&m.Message)
	sender := profileToProto(m.Sender)
	out.Sender = &sender
	return out
}

func conversationToProto(v *core.ConversationView) proto.Conversation {
	out := proto.Conversation{
		ID:             v.ID,
		Name:           v.Name,
		IsGroup:        v.IsGroup,
		AvatarURL:      v.AvatarURL,
		ParticipantIDs: v.Participants,
		Participants:   lo.Map(v.Members, func(p core.Profile, _ int) proto.User { return profileToProto(p) }),
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	if v.LastMessage != nil {
		last := messageToProto(v.LastMessage)
		out.LastMessage = &last
	}
	return out
}

func conversationsToProto(views []*core.ConversationView) []proto.Conversation {
	return lo.Map(views, func(v *core.ConversationView, _ int) proto.Conversation {
		return conversationToProto(v)
	})
}
