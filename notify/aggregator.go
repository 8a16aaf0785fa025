// Package notify keeps the unread-message counters fed by the notifications
// channel.
package notify

import (
	"errors"
	"fmt"

	"chatsync/models"
)

// ErrUnknownEvent is returned for frames the notifications channel does not
// understand.
var ErrUnknownEvent = errors.New("notify: unknown event")

// Counter is one unread total. It starts Unsynced at zero and becomes Synced
// once the server pushes an absolute value; deltas never change that state.
type Counter struct {
	Value  int  `json:"value"`
	Synced bool `json:"synced"`
}

// Counters is the pair of totals surfaced to the view.
type Counters struct {
	Direct int `json:"direct"`
	Group  int `json:"group"`
}

// Update is one entry of the notification event log: either an absolute
// reset or a +1 delta for a conversation kind.
type Update struct {
	Kind     models.Kind
	Absolute bool
	Value    int
}

// UpdateFromFrame translates a notifications-channel frame into an Update.
func UpdateFromFrame(frame models.Frame) (Update, error) {
	switch frame.Type {
	case models.EventUnreadCount:
		var ev models.UnreadCountEvent
		if err := frame.Decode(&ev); err != nil {
			return Update{}, err
		}
		return Update{Kind: models.KindDirect, Absolute: true, Value: ev.UnreadCount}, nil
	case models.EventUnreadGroupCount:
		var ev models.UnreadCountEvent
		if err := frame.Decode(&ev); err != nil {
			return Update{}, err
		}
		return Update{Kind: models.KindGroup, Absolute: true, Value: ev.UnreadGroupCount}, nil
	case models.EventNewMessageNotification:
		return Update{Kind: models.KindDirect, Value: 1}, nil
	case models.EventNewGroupMessageNotification:
		return Update{Kind: models.KindGroup, Value: 1}, nil
	}
	return Update{}, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
}

// Aggregator reduces the ordered update log into the current counters.
// There is no client-side decrement: after a read elsewhere the server
// pushes a fresh absolute value.
type Aggregator struct {
	direct Counter
	group  Counter
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Apply folds one update into the counters and returns the new value of the
// affected counter.
func (a *Aggregator) Apply(u Update) int {
	c := &a.direct
	if u.Kind == models.KindGroup {
		c = &a.group
	}

	if u.Absolute {
		c.Value = u.Value
		if c.Value < 0 {
			c.Value = 0
		}
		c.Synced = true
		return c.Value
	}

	c.Value += u.Value
	return c.Value
}

func (a *Aggregator) Counters() Counters {
	return Counters{Direct: a.direct.Value, Group: a.group.Value}
}

func (a *Aggregator) Direct() Counter {
	return a.direct
}

func (a *Aggregator) Group() Counter {
	return a.group
}
