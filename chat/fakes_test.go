package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsync/debounce"
	"chatsync/models"
	"chatsync/realtime"
)

type fakeChannel struct {
	route    string
	identity *models.Identity
	handler  realtime.Handler

	mu     sync.Mutex
	status realtime.Status
	sent   []models.Command
	closed bool
}

func (c *fakeChannel) Send(cmd models.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != realtime.Open {
		return realtime.ErrNotOpen
	}
	c.sent = append(c.sent, cmd)
	return nil
}

func (c *fakeChannel) Status() realtime.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) setStatus(s realtime.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.handler.HandleStatus(s)
}

func (c *fakeChannel) push(t *testing.T, frame string) {
	t.Helper()
	f, err := models.DecodeFrame([]byte(frame))
	require.NoError(t, err)
	c.handler.HandleFrame(f)
}

// pushEvent sends v as a frame of type typ. typ may be empty when v already
// carries its "type" key.
func (c *fakeChannel) pushEvent(t *testing.T, typ string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	fields := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &fields))
	if typ != "" {
		fields["type"] = typ
	}
	data, err = json.Marshal(fields)
	require.NoError(t, err)
	c.push(t, string(data))
}

// commands returns the sent command types, plus the typing flag for typing
// commands.
func (c *fakeChannel) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, cmd := range c.sent {
		switch cmd := cmd.(type) {
		case models.TypingCommand:
			out = append(out, fmt.Sprintf("typing=%t", cmd.Typing))
		case models.ChatMessageCommand:
			out = append(out, "chat_message:"+cmd.Message)
		case models.MemberCommand:
			out = append(out, cmd.Type+":"+cmd.Name)
		default:
			out = append(out, cmd.CommandType())
		}
	}
	return out
}

type fakeOpener struct {
	mu       sync.Mutex
	channels []*fakeChannel
}

func (o *fakeOpener) Open(_ context.Context, route, _ string, id *models.Identity, h realtime.Handler) Channel {
	c := &fakeChannel{route: route, identity: id, handler: h, status: realtime.Uninstantiated}
	if id.Valid() {
		c.status = realtime.Connecting
	}
	o.mu.Lock()
	o.channels = append(o.channels, c)
	o.mu.Unlock()
	return c
}

func (o *fakeOpener) last(t *testing.T) *fakeChannel {
	t.Helper()
	var c *fakeChannel
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		if len(o.channels) == 0 {
			return false
		}
		c = o.channels[len(o.channels)-1]
		return true
	}, time.Second, time.Millisecond)
	return c
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.channels)
}

type pageCall struct {
	ref  models.ConversationRef
	page int
}

type pageResult struct {
	page *models.Page
	err  error
}

// fakeHistory answers page fetches from results, one entry per call, and
// blocks a fetch until release is closed when release is set.
type fakeHistory struct {
	mu      sync.Mutex
	calls   []pageCall
	results []pageResult
	release chan struct{}
	meta    *models.Conversation
	metaErr error
}

func (h *fakeHistory) Conversation(_ context.Context, ref models.ConversationRef) (*models.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.meta == nil && h.metaErr == nil {
		return &models.Conversation{Name: ref.Name}, nil
	}
	return h.meta, h.metaErr
}

func (h *fakeHistory) Messages(ctx context.Context, ref models.ConversationRef, page int) (*models.Page, error) {
	h.mu.Lock()
	h.calls = append(h.calls, pageCall{ref: ref, page: page})
	release := h.release
	var res pageResult
	if len(h.results) > 0 {
		res = h.results[0]
		h.results = h.results[1:]
	} else {
		res = pageResult{err: fmt.Errorf("no page %d", page)}
	}
	h.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res.page, res.err
}

func (h *fakeHistory) pageCalls() []pageCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]pageCall(nil), h.calls...)
}

type fakeTimer struct {
	f func()

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) schedule(_ time.Duration, f func()) debounce.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every pending timer.
func (c *fakeClock) fire() {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range pending {
		if t.live() {
			t.f()
		}
	}
}

func message(id int64, content string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		Content:   content,
		Timestamp: at,
		FromUser:  models.User{Username: "bob"},
	}
}

// messages returns ids from..to with timestamps increasing with id.
func messages(from, to int64) []models.Message {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var out []models.Message
	for id := from; id <= to; id++ {
		out = append(out, message(id, fmt.Sprintf("m%d", id), base.Add(time.Duration(id)*time.Minute)))
	}
	return out
}

func ids(msgs []models.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func nextURL() *string {
	s := "http://127.0.0.1:8000/api/messages/?page=next"
	return &s
}
