package http

import (
	"encoding/json"

	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/proto"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

const mediaURLPrefix = "/media/"

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var typing proto.TypingData
		if len(inbound.Data) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "to_user_id is required"}
		}
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid typing payload"}
		}
		if typing.ToUserID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "to_user_id is required"}
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{Kind: kind, ToUserID: typing.ToUserID}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPresence:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresence,
			Data:  proto.EventPresenceData{Users: presenceToProto(event.Presence)},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTyping,
			Data: proto.EventTypingData{
				FromUserID: event.Typing.FromUserID,
				IsTyping:   event.Typing.IsTyping,
			},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  messageToProto(event.Message),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageDeleted,
			Data:  proto.EventMessageDeletedData{MessageID: event.MessageID},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func presenceToProto(entries []core.PresenceEntry) []proto.PresenceEntry {
	out := make([]proto.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, proto.PresenceEntry{
			UserID:     e.UserID,
			Username:   e.Username,
			Name:       e.Name,
			ProfileImg: e.ProfileImg,
		})
	}
	return out
}

func messageToProto(msg *store.Message) proto.Message {
	attachments := make([]proto.Attachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, proto.Attachment{
			Key:         att.Key,
			URL:         mediaURLPrefix + att.Key,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	return proto.Message{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		Text:        msg.Text,
		Attachments: attachments,
		Seen:        msg.Seen,
		CreatedAt:   msg.CreatedAt,
	}
}

func messagesToProto(msgs []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messageToProto(msg))
	}
	return out
}

func userToProto(u *store.User) proto.User {
	name := u.Name
	if name == "" {
		name = u.Username
	}
	return proto.User{
		ID:         u.ID,
		Username:   u.Username,
		Name:       name,
		ProfileImg: u.ProfileImg,
	}
}

func usersToProto(users []*store.User) []proto.User {
	out := make([]proto.User, 0, len(users))
	for _, u := range users {
		out = append(out, userToProto(u))
	}
	return out
}

func profileFromUser(u *store.User) core.Profile {
	return core.Profile{
		UserID:     u.ID,
		Username:   u.Username,
		Name:       u.Name,
		ProfileImg: u.ProfileImg,
	}
}
