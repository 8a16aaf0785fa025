package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatsync/debounce"
	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/models"
	"chatsync/presence"
	"chatsync/realtime"
	"chatsync/timeline"
)

// ViewOptions configures a conversation view.
type ViewOptions struct {
	Opener        Opener
	History       History
	TypingTimeout time.Duration
	Scheduler     debounce.Scheduler
	Listener      Listener
	OnRedirect    func(from, to models.ConversationRef)
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// Presence is the roster as shown to the user.
type Presence struct {
	Online  []string      `json:"online"`
	Members []models.User `json:"members,omitempty"`
	Offline []models.User `json:"offline,omitempty"`
	Typing  []string      `json:"typing"`
	// SomeoneTyping collapses Typing into one flag for simple UIs.
	SomeoneTyping bool `json:"someone_typing"`
}

// ViewState is a consistent copy of everything a view holds.
type ViewState struct {
	Conversation models.ConversationRef `json:"conversation"`
	Status       realtime.Status        `json:"status"`
	Messages     []models.Message       `json:"messages"`
	HasMore      bool                   `json:"has_more"`
	Fetching     bool                   `json:"fetching"`
	Welcome      string                 `json:"welcome,omitempty"`
	Presence     Presence               `json:"presence"`
	Metadata     *models.Conversation   `json:"metadata,omitempty"`
}

// ConversationView is one open direct or group conversation. All fields
// below loop are owned by the loop goroutine.
type ConversationView struct {
	self    models.Identity
	hasSelf bool
	opts    ViewOptions
	log     *logger.Logger
	metrics *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	loop      *loop
	closeOnce sync.Once

	ref        models.ConversationRef
	channel    Channel
	gen        uint64
	status     realtime.Status
	reconciler *timeline.Reconciler
	roster     *presence.Roster
	typists    *presence.Typists
	debouncer  *debounce.Debouncer
	welcome    string
	meta       *models.Conversation
	closed     bool
}

// OpenConversation starts a view on ref. id may be nil; the view then exists
// but its channel stays Uninstantiated.
func OpenConversation(ctx context.Context, ref models.ConversationRef, id *models.Identity, opts ViewOptions) (*ConversationView, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	v := &ConversationView{
		opts:    opts,
		metrics: opts.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		loop:    newLoop(),
		ref:     ref,
	}
	if id.Valid() {
		v.self = *id
		v.hasSelf = true
	}
	v.relog()
	v.reset()

	debounceOpts := []debounce.Option{
		debounce.WithDeliver(func(f func()) { v.loop.post(f) }),
	}
	if opts.Scheduler != nil {
		debounceOpts = append(debounceOpts, debounce.WithScheduler(opts.Scheduler))
	}
	v.debouncer = debounce.New(opts.TypingTimeout, v.sendTyping, debounceOpts...)

	v.loop.post(v.connect)
	return v, nil
}

func (v *ConversationView) relog() {
	v.log = logger.OrNop(v.opts.Logger).
		WithField("conversation", v.ref.Name).
		WithField("kind", string(v.ref.Kind))
}

func (v *ConversationView) identity() *models.Identity {
	if !v.hasSelf {
		return nil
	}
	return &v.self
}

// reset discards everything learned about the current conversation.
func (v *ConversationView) reset() {
	if v.reconciler != nil {
		v.reconciler.Close()
	}
	v.reconciler = timeline.NewReconciler()
	v.roster = presence.NewRoster()
	v.typists = presence.NewTypists(v.identity())
	v.welcome = ""
	v.meta = nil
}

func (v *ConversationView) label() string {
	return string(v.ref.Kind)
}

func (v *ConversationView) connect() {
	v.gen++
	h := channelHandler{
		gen:     v.gen,
		post:    v.loop.post,
		onFrame: v.handleFrame,
		onState: v.handleStatus,
	}
	v.channel = v.opts.Opener.Open(v.ctx, v.ref.Route(), v.label(), v.identity(), h)
	v.status = v.channel.Status()
	v.fetchMetadata()
}

func (v *ConversationView) fetchMetadata() {
	if v.opts.History == nil || !v.hasSelf {
		return
	}
	ref, gen := v.ref, v.gen
	go func() {
		conv, err := v.opts.History.Conversation(v.ctx, ref)
		v.loop.post(func() {
			if gen != v.gen || v.closed {
				return
			}
			if err != nil {
				v.log.Warn("conversation metadata unavailable", logger.Error(err))
				return
			}
			v.meta = conv
			if len(conv.Members) > 0 && len(v.roster.Members()) == 0 {
				v.roster.SetMembers(conv.Members)
			}
			v.publish(ChangeConversation, conv)
		})
	}()
}

func (v *ConversationView) publish(kind string, data any) {
	if v.opts.Listener == nil {
		return
	}
	v.opts.Listener(Change{Type: kind, Conversation: v.ref.Name, Kind: v.ref.Kind, Data: data})
}

func (v *ConversationView) send(cmd models.Command) error {
	if v.channel == nil {
		return ErrClosed
	}
	if err := v.channel.Send(cmd); err != nil {
		v.log.Debug("command not sent", logger.String("command", cmd.CommandType()), logger.Error(err))
		return err
	}
	return nil
}

func (v *ConversationView) sendTyping(typing bool) {
	v.send(models.NewTyping(typing))
}

func (v *ConversationView) handleStatus(gen uint64, s realtime.Status) {
	if gen != v.gen || v.closed {
		return
	}
	prev := v.status
	v.status = s
	v.log.Info("channel status", logger.String("status", s.String()))

	switch {
	case s == realtime.Open:
		// Resync: the server answers with a fresh snapshot and roster.
		v.send(models.NewRead(v.ref.Kind))
	case prev == realtime.Open:
		v.debouncer.Teardown()
		v.typists.Clear()
		v.publish(ChangeTyping, v.typists.List())
	}
	v.publish(ChangeStatus, s)
}

func (v *ConversationView) handleFrame(gen uint64, f models.Frame) {
	if gen != v.gen || v.closed {
		return
	}

	var err error
	switch f.Type {
	case models.EventWelcome:
		var ev models.WelcomeEvent
		if err = f.Decode(&ev); err == nil {
			v.welcome = ev.Message
			v.publish(ChangeWelcome, ev.Message)
		}

	case models.EventChatMessageEcho:
		var ev models.ChatMessageEchoEvent
		if err = f.Decode(&ev); err == nil {
			v.applyEcho(ev.Message)
		}

	case models.EventLastMessages, models.EventLastGroupMessages:
		var ev models.SnapshotEvent
		if err = f.Decode(&ev); err == nil {
			if skipped := v.reconciler.ApplySnapshot(ev.All(), ev.HasMore); skipped > 0 {
				v.metrics.DuplicatesSkipped(skipped)
			}
			v.publish(ChangeTimeline, v.reconciler.Cursor())
		}

	case models.EventUserJoin:
		var ev models.PresenceEvent
		if err = f.Decode(&ev); err == nil && v.roster.Join(ev.User) {
			v.publish(ChangePresence, v.presence())
		}

	case models.EventUserLeave:
		var ev models.PresenceEvent
		if err = f.Decode(&ev); err == nil {
			left := v.roster.Leave(ev.User)
			if v.typists.Forget(ev.User) || left {
				v.publish(ChangePresence, v.presence())
			}
		}

	case models.EventOnlineUserList:
		var ev models.OnlineUserListEvent
		if err = f.Decode(&ev); err == nil {
			v.roster.Replace(ev.Users)
			for _, name := range v.typists.List() {
				if !v.roster.IsOnline(name) {
					v.typists.Forget(name)
				}
			}
			v.publish(ChangePresence, v.presence())
		}

	case models.EventMembersList:
		var ev models.MembersListEvent
		if err = f.Decode(&ev); err == nil {
			v.roster.SetMembers(ev.Users)
			v.publish(ChangePresence, v.presence())
		}

	case models.EventTyping:
		var ev models.TypingEvent
		if err = f.Decode(&ev); err == nil && v.typists.Apply(ev.User, ev.Typing) {
			v.publish(ChangeTyping, v.typists.List())
		}

	case models.EventRedirect:
		var ev models.RedirectEvent
		if err = f.Decode(&ev); err == nil {
			v.redirect(ev.URL)
		}

	default:
		v.metrics.FrameDropped(v.label(), "unknown")
		v.log.Debug("dropping unknown event", logger.String("type", f.Type))
		return
	}

	if err != nil {
		v.metrics.FrameDropped(v.label(), "malformed")
		v.log.Warn("dropping malformed event", logger.String("type", f.Type), logger.Error(err))
	}
}

func (v *ConversationView) applyEcho(m models.Message) {
	if v.reconciler.ApplyEcho(m) {
		v.publish(ChangeTimeline, m)
	} else {
		v.metrics.DuplicatesSkipped(1)
	}
	v.send(models.NewRead(v.ref.Kind))
}

// redirect moves a group view to the canonical name the server chose,
// usually after asking for a new group.
func (v *ConversationView) redirect(target string) {
	name := redirectName(target)
	if v.ref.Kind != models.KindGroup || name == "" || name == v.ref.Name {
		v.log.Warn("ignoring redirect", logger.String("url", target))
		return
	}

	from := v.ref
	to := models.Group(name)
	v.log.Info("redirected", logger.String("to", name))

	old := v.channel
	go old.Close()

	v.debouncer.Teardown()
	v.ref = to
	v.relog()
	v.reset()
	v.connect()

	if v.opts.OnRedirect != nil {
		v.opts.OnRedirect(from, to)
	}
	v.publish(ChangeRedirect, to)
}

// redirectName accepts a bare group name or a route such as
// "/group_chats/<name>/".
func redirectName(target string) string {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	return strings.TrimSpace(parts[len(parts)-1])
}

func (v *ConversationView) presence() Presence {
	return Presence{
		Online:        v.roster.Online(),
		Members:       v.roster.Members(),
		Offline:       v.roster.Offline(),
		Typing:        v.typists.List(),
		SomeoneTyping: v.typists.Anyone(),
	}
}

// Ref returns the conversation the view currently shows. It changes after a
// redirect.
func (v *ConversationView) Ref() models.ConversationRef {
	var ref models.ConversationRef
	if !v.loop.call(func() { ref = v.ref }) {
		return models.ConversationRef{}
	}
	return ref
}

// State returns a snapshot of the view.
func (v *ConversationView) State() (ViewState, error) {
	var st ViewState
	ok := v.loop.call(func() {
		cursor := v.reconciler.Cursor()
		st = ViewState{
			Conversation: v.ref,
			Status:       v.status,
			Messages:     v.reconciler.Messages(),
			HasMore:      cursor.HasMore,
			Fetching:     v.reconciler.Fetching(),
			Welcome:      v.welcome,
			Presence:     v.presence(),
			Metadata:     v.meta,
		}
	})
	if !ok {
		return ViewState{}, ErrClosed
	}
	return st, nil
}

// Status returns the channel state.
func (v *ConversationView) Status() realtime.Status {
	s := realtime.Closed
	v.loop.call(func() { s = v.status })
	return s
}

// Messages returns the timeline, newest first.
func (v *ConversationView) Messages() []models.Message {
	var msgs []models.Message
	v.loop.call(func() { msgs = v.reconciler.Messages() })
	return msgs
}

// Submit validates content and sends it. The message only enters the
// timeline when the server echoes it back.
func (v *ConversationView) Submit(content string) error {
	if err := timeline.ValidateContent(content); err != nil {
		return err
	}
	var err error
	if !v.loop.call(func() {
		if err = v.send(models.NewChatMessage(content)); err == nil {
			v.debouncer.Submit()
		}
	}) {
		return ErrClosed
	}
	return err
}

// Keystroke records local typing.
func (v *ConversationView) Keystroke() error {
	if !v.loop.call(func() {
		if v.status == realtime.Open {
			v.debouncer.Keystroke()
		}
	}) {
		return ErrClosed
	}
	return nil
}

// LoadOlder starts fetching the next historical page. It reports false when
// a fetch is already in flight or there is nothing more to load.
func (v *ConversationView) LoadOlder() bool {
	started := false
	v.loop.call(func() {
		if v.opts.History == nil || !v.hasSelf {
			return
		}
		req, ok := v.reconciler.BeginFetch()
		if !ok {
			return
		}
		started = true

		r, ref := v.reconciler, v.ref
		log := v.log.WithField("page", req.Page)
		go func() {
			page, err := v.opts.History.Messages(v.ctx, ref, req.Page)
			posted := v.loop.post(func() {
				outcome, skipped := r.CompleteFetch(req, page, err)
				switch outcome {
				case timeline.OutcomeApplied:
					if skipped > 0 {
						v.metrics.DuplicatesSkipped(skipped)
					}
					v.publish(ChangeTimeline, r.Cursor())
				case timeline.OutcomeFailed:
					log.Warn("page fetch failed", logger.Error(err))
				default:
					log.Debug("page result ignored", logger.String("outcome", outcome.String()))
				}
			})
			if !posted {
				log.Debug("page result arrived after close")
			}
		}()
	})
	return started
}

// AddMember asks the server to add name to the group.
func (v *ConversationView) AddMember(name string) error {
	return v.memberCommand(name, models.NewAddMember)
}

// RemoveMember asks the server to remove name from the group.
func (v *ConversationView) RemoveMember(name string) error {
	return v.memberCommand(name, models.NewRemoveMember)
}

func (v *ConversationView) memberCommand(name string, build func(string) models.MemberCommand) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoMember
	}
	var err error
	if !v.loop.call(func() {
		if v.ref.Kind != models.KindGroup {
			err = ErrNotGroup
			return
		}
		err = v.send(build(name))
	}) {
		return ErrClosed
	}
	return err
}

// Close cancels the typing timer, discards the timeline and closes the
// channel. Results that arrive afterwards are dropped.
func (v *ConversationView) Close() {
	v.closeOnce.Do(func() {
		var ch Channel
		v.loop.call(func() {
			v.closed = true
			v.debouncer.Teardown()
			v.reconciler.Close()
			ch = v.channel
			v.channel = nil
		})
		v.loop.stop()
		v.cancel()
		if ch != nil {
			ch.Close()
		}
		v.log.Info("view closed")
	})
}
