package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event types pushed by the server.
const (
	EventWelcome                     = "welcome_message"
	EventChatMessageEcho             = "chat_message_echo"
	EventLastMessages                = "last_50_messages"
	EventLastGroupMessages           = "last_50_group_messages"
	EventUserJoin                    = "user_join"
	EventUserLeave                   = "user_leave"
	EventOnlineUserList              = "online_user_list"
	EventMembersList                 = "members_list"
	EventTyping                      = "typing"
	EventRedirect                    = "redirect"
	EventUnreadCount                 = "unread_count"
	EventUnreadGroupCount            = "unread_group_count"
	EventNewMessageNotification      = "new_message_notification"
	EventNewGroupMessageNotification = "new_message_group_notification"
)

// Outbound command types sent by the client.
const (
	CommandChatMessage       = "chat_message"
	CommandTyping            = "typing"
	CommandReadMessages      = "read_messages"
	CommandReadGroupMessages = "read_group_messages"
	CommandAddMember         = "add_member"
	CommandRemoveMember      = "remove_member"
)

// ErrMissingType is returned for frames without a "type" tag.
var ErrMissingType = errors.New("models: frame has no type")

// Frame is one inbound push-channel frame. Payload fields sit next to the
// type tag, so Raw keeps the whole object for a second, typed decode.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// DecodeFrame reads the type tag of a JSON frame.
func DecodeFrame(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if head.Type == "" {
		return Frame{}, ErrMissingType
	}
	return Frame{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// Decode unmarshals the frame into one of the event structs below.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return nil
}

type WelcomeEvent struct {
	Message string `json:"message"`
}

type ChatMessageEchoEvent struct {
	Username string  `json:"username"`
	Message  Message `json:"message"`
}

// SnapshotEvent covers both last_50_messages and last_50_group_messages;
// the server names the list differently for groups.
type SnapshotEvent struct {
	Messages      []Message `json:"messages"`
	GroupMessages []Message `json:"group_messages"`
	HasMore       bool      `json:"has_more"`
}

// All returns whichever message list the server filled.
func (e SnapshotEvent) All() []Message {
	if len(e.Messages) > 0 {
		return e.Messages
	}
	return e.GroupMessages
}

// PresenceEvent is user_join or user_leave.
type PresenceEvent struct {
	User string `json:"user"`
}

type OnlineUserListEvent struct {
	Users []string `json:"users"`
}

type MembersListEvent struct {
	Users []User `json:"users"`
}

type TypingEvent struct {
	User   string `json:"user"`
	Typing bool   `json:"typing"`
}

type RedirectEvent struct {
	URL string `json:"url"`
}

// UnreadCountEvent carries an absolute counter value; only the field that
// matches the frame type is set.
type UnreadCountEvent struct {
	UnreadCount      int `json:"unread_count"`
	UnreadGroupCount int `json:"unread_group_count"`
}

type NewMessageNotificationEvent struct {
	Name    string  `json:"name"`
	Message Message `json:"message"`
}

// Command is anything the client writes to a push channel.
type Command interface {
	CommandType() string
}

// ChatMessageCommand submits a new message. The server answers with a
// chat_message_echo carrying the stored message.
type ChatMessageCommand struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type TypingCommand struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

// ReadCommand is read_messages or read_group_messages.
type ReadCommand struct {
	Type string `json:"type"`
}

// MemberCommand is add_member or remove_member.
type MemberCommand struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func NewChatMessage(content string) ChatMessageCommand {
	return ChatMessageCommand{Type: CommandChatMessage, Message: content}
}

func NewTyping(typing bool) TypingCommand {
	return TypingCommand{Type: CommandTyping, Typing: typing}
}

// NewRead returns the read acknowledgement for conversations of kind k.
func NewRead(k Kind) ReadCommand {
	if k == KindGroup {
		return ReadCommand{Type: CommandReadGroupMessages}
	}
	return ReadCommand{Type: CommandReadMessages}
}

func NewAddMember(name string) MemberCommand {
	return MemberCommand{Type: CommandAddMember, Name: name}
}

func NewRemoveMember(name string) MemberCommand {
	return MemberCommand{Type: CommandRemoveMember, Name: name}
}

func (c ChatMessageCommand) CommandType() string { return c.Type }
func (c TypingCommand) CommandType() string      { return c.Type }
func (c ReadCommand) CommandType() string        { return c.Type }
func (c MemberCommand) CommandType() string      { return c.Type }
