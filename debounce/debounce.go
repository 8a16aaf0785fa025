// Package debounce turns bursts of local keystrokes into a typing-started /
// typing-stopped signal pair.
package debounce

import "time"

// DefaultTimeout is how long typing stays active after the last keystroke.
const DefaultTimeout = 5 * time.Second

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// Scheduler starts a single-shot timer.
type Scheduler func(d time.Duration, f func()) Timer

// AfterFunc schedules with the runtime timer.
func AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithScheduler replaces the timer source, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(d *Debouncer) { d.schedule = s }
}

// WithDeliver routes timer expiry through deliver, so an owner running an
// event loop can apply it on its own goroutine.
func WithDeliver(deliver func(func())) Option {
	return func(d *Debouncer) { d.deliver = deliver }
}

// Debouncer is a two-state machine, Idle and Active. The first keystroke
// emits typing=true; further keystrokes only push the deadline back; expiry
// or Submit emits typing=false. It is not safe for concurrent use: call it
// from the goroutine deliver hands expiries to.
type Debouncer struct {
	timeout  time.Duration
	emit     func(typing bool)
	schedule Scheduler
	deliver  func(func())

	active bool
	timer  Timer
	gen    uint64
}

func New(timeout time.Duration, emit func(typing bool), opts ...Option) *Debouncer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Debouncer{
		timeout:  timeout,
		emit:     emit,
		schedule: AfterFunc,
		deliver:  func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Keystroke records local input.
func (d *Debouncer) Keystroke() {
	if !d.active {
		d.active = true
		d.emit(true)
	}
	d.restart()
}

// Submit ends the active period immediately.
func (d *Debouncer) Submit() {
	if !d.active {
		return
	}
	d.stop()
	d.active = false
	d.emit(false)
}

// Teardown cancels a pending timer without emitting; the channel is closing
// anyway.
func (d *Debouncer) Teardown() {
	d.stop()
	d.active = false
}

func (d *Debouncer) Active() bool {
	return d.active
}

func (d *Debouncer) restart() {
	d.stop()
	gen := d.gen
	d.timer = d.schedule(d.timeout, func() {
		d.deliver(func() { d.expire(gen) })
	})
}

// stop cancels the current timer and invalidates any expiry already queued
// for delivery.
func (d *Debouncer) stop() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) expire(gen uint64) {
	if gen != d.gen || !d.active {
		return
	}
	d.timer = nil
	d.active = false
	d.emit(false)
}
