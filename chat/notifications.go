package chat

import (
	"context"
	"errors"
	"sync"

	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/models"
	"chatsync/notify"
	"chatsync/realtime"
)

// NotificationsRoute is the push route of the unread-count feed.
const NotificationsRoute = "notifications/"

// Unread is what the notifications view exposes.
type Unread struct {
	Status realtime.Status `json:"status"`
	Direct notify.Counter  `json:"direct"`
	Group  notify.Counter  `json:"group"`
}

// NotificationsView keeps the unread counters for the signed-in identity.
// It sends nothing on open; the server pushes absolute counts itself.
type NotificationsView struct {
	opts      ViewOptions
	log       *logger.Logger
	metrics   *metrics.Metrics
	cancel    context.CancelFunc
	loop      *loop
	closeOnce sync.Once

	channel    Channel
	status     realtime.Status
	aggregator *notify.Aggregator
	closed     bool
}

// OpenNotifications starts the notifications feed. History, Scheduler and
// OnRedirect in opts are not used.
func OpenNotifications(ctx context.Context, id *models.Identity, opts ViewOptions) *NotificationsView {
	ctx, cancel := context.WithCancel(ctx)
	v := &NotificationsView{
		opts:       opts,
		log:        logger.OrNop(opts.Logger).WithField("view", "notifications"),
		metrics:    opts.Metrics,
		cancel:     cancel,
		loop:       newLoop(),
		aggregator: notify.NewAggregator(),
	}
	v.loop.post(func() {
		h := channelHandler{
			post:    v.loop.post,
			onFrame: v.handleFrame,
			onState: v.handleStatus,
		}
		v.channel = opts.Opener.Open(ctx, NotificationsRoute, "notifications", id, h)
		v.status = v.channel.Status()
	})
	return v
}

func (v *NotificationsView) publish(kind string, data any) {
	if v.opts.Listener != nil {
		v.opts.Listener(Change{Type: kind, Data: data})
	}
}

func (v *NotificationsView) handleStatus(_ uint64, s realtime.Status) {
	if v.closed {
		return
	}
	v.status = s
	v.log.Info("channel status", logger.String("status", s.String()))
	v.publish(ChangeStatus, s)
}

func (v *NotificationsView) handleFrame(_ uint64, f models.Frame) {
	if v.closed {
		return
	}
	u, err := notify.UpdateFromFrame(f)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, notify.ErrUnknownEvent) {
			reason = "unknown"
		}
		v.metrics.FrameDropped("notifications", reason)
		v.log.Debug("dropping notification event", logger.String("type", f.Type), logger.Error(err))
		return
	}

	n := v.aggregator.Apply(u)
	v.metrics.SetUnread(string(u.Kind), n)
	v.publish(ChangeUnread, v.aggregator.Counters())
}

// Unread returns the counters and channel status.
func (v *NotificationsView) Unread() Unread {
	u := Unread{Status: realtime.Closed}
	v.loop.call(func() {
		u = Unread{
			Status: v.status,
			Direct: v.aggregator.Direct(),
			Group:  v.aggregator.Group(),
		}
	})
	return u
}

// Counters returns just the two totals.
func (v *NotificationsView) Counters() notify.Counters {
	var c notify.Counters
	v.loop.call(func() { c = v.aggregator.Counters() })
	return c
}

func (v *NotificationsView) Close() {
	v.closeOnce.Do(func() {
		var ch Channel
		v.loop.call(func() {
			v.closed = true
			ch = v.channel
			v.channel = nil
		})
		v.loop.stop()
		v.cancel()
		if ch != nil {
			ch.Close()
		}
	})
}
