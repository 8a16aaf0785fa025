package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatsync/database"
	"chatsync/debounce"
	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/models"
)

var ErrInvalidIdentity = errors.New("chat: identity needs a username and a token")

// IdentityStore persists the single signed-in identity.
type IdentityStore interface {
	Save(ctx context.Context, id models.Identity) error
	Load(ctx context.Context) (*models.Identity, error)
	Clear(ctx context.Context) error
}

// EngineOptions wires an Engine.
type EngineOptions struct {
	Opener        Opener
	History       History
	Store         IdentityStore
	TypingTimeout time.Duration
	Scheduler     debounce.Scheduler
	Listener      Listener
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// Engine owns the identity, the notifications feed and every open
// conversation view. The identity is shared read-only by all views; changing
// it closes them.
type Engine struct {
	opts   EngineOptions
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	identity      *models.Identity
	views         map[string]openView
	notifications *NotificationsView
	closed        bool

	// displaced tracks views closed because a redirect took their name.
	displaced sync.WaitGroup
}

func NewEngine(ctx context.Context, opts EngineOptions) *Engine {
	ctx, cancel := context.WithCancel(ctx)
	return &Engine{
		opts:   opts,
		log:    logger.OrNop(opts.Logger),
		ctx:    ctx,
		cancel: cancel,
		views:  make(map[string]openView),
	}
}

// Start restores a stored identity, if any, and opens the notifications
// feed.
func (e *Engine) Start() error {
	if e.opts.Store != nil {
		id, err := e.opts.Store.Load(e.ctx)
		switch {
		case errors.Is(err, database.ErrNoIdentity):
			e.log.Info("no stored identity, waiting for sign-in")
		case err != nil:
			return fmt.Errorf("load identity: %w", err)
		default:
			e.mu.Lock()
			e.identity = id
			e.mu.Unlock()
			e.log.Info("restored identity", logger.String("username", id.Username))
		}
	}
	e.reopenNotifications()
	return nil
}

// Identity returns a copy of the signed-in identity, or nil.
func (e *Engine) Identity() *models.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == nil {
		return nil
	}
	id := *e.identity
	return &id
}

// SignIn stores id and restarts every channel under it.
func (e *Engine) SignIn(id models.Identity) error {
	if !id.Valid() {
		return ErrInvalidIdentity
	}
	if e.opts.Store != nil {
		if err := e.opts.Store.Save(e.ctx, id); err != nil {
			return fmt.Errorf("save identity: %w", err)
		}
	}

	views := e.swapIdentity(&id)
	closeViews(views)
	e.reopenNotifications()
	e.log.Info("signed in", logger.String("username", id.Username))
	return nil
}

// SignOut forgets the identity and closes every view.
func (e *Engine) SignOut() error {
	if e.opts.Store != nil {
		if err := e.opts.Store.Clear(e.ctx); err != nil {
			return fmt.Errorf("clear identity: %w", err)
		}
	}
	views := e.swapIdentity(nil)
	closeViews(views)
	e.reopenNotifications()
	e.log.Info("signed out")
	return nil
}

type openView struct {
	ref  models.ConversationRef
	view *ConversationView
}

func (e *Engine) swapIdentity(id *models.Identity) []*ConversationView {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.identity = id
	return e.takeViews()
}

// takeViews empties the registry. Callers hold mu and close the views after
// releasing it.
func (e *Engine) takeViews() []*ConversationView {
	views := make([]*ConversationView, 0, len(e.views))
	for key, ov := range e.views {
		views = append(views, ov.view)
		delete(e.views, key)
	}
	return views
}

func (e *Engine) reopenNotifications() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	old := e.notifications
	id := e.identity
	e.notifications = OpenNotifications(e.ctx, id, e.viewOptions())
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (e *Engine) viewOptions() ViewOptions {
	return ViewOptions{
		Opener:        e.opts.Opener,
		History:       e.opts.History,
		TypingTimeout: e.opts.TypingTimeout,
		Scheduler:     e.opts.Scheduler,
		Listener:      e.opts.Listener,
		OnRedirect:    e.rekey,
		Logger:        e.opts.Logger,
		Metrics:       e.opts.Metrics,
	}
}

// rekey runs on the redirected view's loop. A view already open under the
// new name is closed on its own goroutine.
func (e *Engine) rekey(from, to models.ConversationRef) {
	old := e.moveView(from, to)
	if old == nil {
		return
	}
	e.log.Info("closing view displaced by redirect", logger.String("conversation", to.Name))
	e.displaced.Add(1)
	go func() {
		defer e.displaced.Done()
		old.Close()
	}()
}

func (e *Engine) moveView(from, to models.ConversationRef) *ConversationView {
	e.mu.Lock()
	defer e.mu.Unlock()
	ov, ok := e.views[from.String()]
	if !ok {
		return nil
	}
	delete(e.views, from.String())
	prev, taken := e.views[to.String()]
	e.views[to.String()] = openView{ref: to, view: ov.view}
	if taken && prev.view != ov.view {
		return prev.view
	}
	return nil
}

// Open returns the view on ref, starting one if needed.
func (e *Engine) Open(ref models.ConversationRef) (*ConversationView, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if ov, ok := e.views[ref.String()]; ok {
		return ov.view, nil
	}

	v, err := OpenConversation(e.ctx, ref, e.identity, e.viewOptions())
	if err != nil {
		return nil, err
	}
	e.views[ref.String()] = openView{ref: ref, view: v}
	return v, nil
}

// View looks up an open view.
func (e *Engine) View(ref models.ConversationRef) (*ConversationView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ov, ok := e.views[ref.String()]
	return ov.view, ok
}

// CloseView closes the view on ref. It reports whether one was open.
func (e *Engine) CloseView(ref models.ConversationRef) bool {
	e.mu.Lock()
	ov, ok := e.views[ref.String()]
	delete(e.views, ref.String())
	e.mu.Unlock()

	if ok {
		ov.view.Close()
	}
	return ok
}

// Views lists the open conversations.
func (e *Engine) Views() []models.ConversationRef {
	e.mu.Lock()
	refs := make([]models.ConversationRef, 0, len(e.views))
	for _, ov := range e.views {
		refs = append(refs, ov.ref)
	}
	e.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}

// Notifications returns the current notifications view.
func (e *Engine) Notifications() *NotificationsView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notifications
}

// Close shuts every view down.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	n := e.notifications
	e.notifications = nil
	views := e.takeViews()
	e.mu.Unlock()

	closeViews(views)
	if n != nil {
		n.Close()
	}
	e.displaced.Wait()
	e.cancel()
}

func closeViews(views []*ConversationView) {
	var wg sync.WaitGroup
	for _, v := range views {
		wg.Add(1)
		go func(v *ConversationView) {
			defer wg.Done()
			v.Close()
		}(v)
	}
	wg.Wait()
}
