package models

import (
	"fmt"
	"sort"
	"strings"
)

// Kind distinguishes one-to-one conversations from group conversations.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// NewGroupName asks the server to create a group and redirect to its
// canonical name.
const NewGroupName = "new"

const nameSeparator = "__"

// ConversationRef identifies a conversation. Name is used both as the REST
// resource key and as the push-channel route segment.
type ConversationRef struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Direct returns a reference to the one-to-one conversation named name.
func Direct(name string) ConversationRef {
	return ConversationRef{Kind: KindDirect, Name: name}
}

// Group returns a reference to the group conversation named name.
func Group(name string) ConversationRef {
	return ConversationRef{Kind: KindGroup, Name: name}
}

// Route returns the push-channel path for the conversation.
func (c ConversationRef) Route() string {
	if c.Kind == KindGroup {
		return "group_chats/" + c.Name + "/"
	}
	return "chats/" + c.Name + "/"
}

func (c ConversationRef) String() string {
	return string(c.Kind) + ":" + c.Name
}

// Validate rejects references the server would refuse to route.
func (c ConversationRef) Validate() error {
	if c.Kind != KindDirect && c.Kind != KindGroup {
		return fmt.Errorf("unknown conversation kind %q", c.Kind)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" || name == "undefined" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid conversation name %q", c.Name)
	}
	return nil
}

// DirectConversationName builds the name the server uses for the
// conversation between two users: both usernames, sorted, joined by "__".
func DirectConversationName(a, b string) string {
	names := []string{a, b}
	sort.Strings(names)
	return names[0] + nameSeparator + names[1]
}

// OtherParticipant returns the username in a direct conversation name that
// is not self.
func OtherParticipant(name, self string) string {
	for _, part := range strings.Split(name, nameSeparator) {
		if part != self {
			return part
		}
	}
	return ""
}

// FriendlyGroupName turns "group_chat_with__alice__2" into
// "Group chat with alice (2)".
func FriendlyGroupName(name string) string {
	parts := strings.Split(name, nameSeparator)
	if len(parts) < 3 {
		return name
	}
	return fmt.Sprintf("Group chat with %s (%s)", parts[1], parts[2])
}

// Conversation is the metadata returned by the conversation endpoints.
// OtherUser is set for direct conversations, Members and Admin for groups.
type Conversation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	OtherUser   *User    `json:"other_user,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	Members     []User   `json:"members,omitempty"`
	Admin       *User    `json:"admin,omitempty"`
}
