// Package chat runs the per-conversation views: each owns a push channel,
// a reconciled timeline, a presence roster and a typing debouncer, all
// mutated from a single event loop.
package chat

import (
	"context"
	"errors"

	"chatsync/models"
	"chatsync/realtime"
)

var (
	ErrClosed   = errors.New("chat: view is closed")
	ErrNotGroup = errors.New("chat: not a group conversation")
	ErrNoMember = errors.New("chat: member name is empty")
)

// Channel is the part of a push channel a view drives.
type Channel interface {
	Send(models.Command) error
	Status() realtime.Status
	Close() error
}

// Opener starts push channels. Without a valid identity the returned
// channel stays Uninstantiated.
type Opener interface {
	Open(ctx context.Context, route, label string, id *models.Identity, h realtime.Handler) Channel
}

// History is the REST side of a conversation.
type History interface {
	Conversation(ctx context.Context, ref models.ConversationRef) (*models.Conversation, error)
	Messages(ctx context.Context, ref models.ConversationRef, page int) (*models.Page, error)
}

// ChannelOpener adapts a realtime client to Opener.
func ChannelOpener(c *realtime.Client) Opener {
	return realtimeOpener{c}
}

type realtimeOpener struct {
	client *realtime.Client
}

func (o realtimeOpener) Open(ctx context.Context, route, label string, id *models.Identity, h realtime.Handler) Channel {
	return o.client.Open(ctx, route, label, id, h)
}

// Change types published to listeners.
const (
	ChangeStatus       = "status"
	ChangeTimeline     = "timeline"
	ChangePresence     = "presence"
	ChangeTyping       = "typing"
	ChangeWelcome      = "welcome"
	ChangeRedirect     = "redirect"
	ChangeConversation = "conversation"
	ChangeUnread       = "unread"
)

// Change describes one state change of a view, for the local update feed.
type Change struct {
	Type         string      `json:"type"`
	Conversation string      `json:"conversation,omitempty"`
	Kind         models.Kind `json:"kind,omitempty"`
	Data         any         `json:"data,omitempty"`
}

// Listener receives changes on the view's loop goroutine; it must not block.
type Listener func(Change)

// channelHandler tags callbacks with the generation of the channel they came
// from so frames of a replaced channel are ignored.
type channelHandler struct {
	gen     uint64
	post    func(func()) bool
	onFrame func(gen uint64, f models.Frame)
	onState func(gen uint64, s realtime.Status)
}

func (h channelHandler) HandleFrame(f models.Frame) {
	h.post(func() { h.onFrame(h.gen, f) })
}

func (h channelHandler) HandleStatus(s realtime.Status) {
	h.post(func() { h.onState(h.gen, s) })
}
