package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) schedule(_ time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs the most recent timer, even if it was stopped, the way a real
// timer can fire just before Stop is called.
func (c *fakeClock) fire() {
	c.timers[len(c.timers)-1].f()
}

type recorder struct {
	emitted []bool
}

func (r *recorder) emit(typing bool) {
	r.emitted = append(r.emitted, typing)
}

func newTestDebouncer() (*Debouncer, *fakeClock, *recorder) {
	clock := &fakeClock{}
	rec := &recorder{}
	return New(DefaultTimeout, rec.emit, WithScheduler(clock.schedule)), clock, rec
}

func TestBurstEmitsOnePair(t *testing.T) {
	d, clock, rec := newTestDebouncer()

	for i := 0; i < 10; i++ {
		d.Keystroke()
	}
	assert.Equal(t, []bool{true}, rec.emitted)
	assert.True(t, d.Active())
	require.Len(t, clock.timers, 10)
	for _, timer := range clock.timers[:9] {
		assert.True(t, timer.stopped, "every keystroke restarts the timer")
	}

	clock.fire()
	assert.Equal(t, []bool{true, false}, rec.emitted)
	assert.False(t, d.Active())

	// a new burst starts a new cycle
	d.Keystroke()
	clock.fire()
	assert.Equal(t, []bool{true, false, true, false}, rec.emitted)
}

func TestSubmitStopsImmediately(t *testing.T) {
	d, clock, rec := newTestDebouncer()

	d.Keystroke()
	d.Submit()
	assert.Equal(t, []bool{true, false}, rec.emitted)
	assert.True(t, clock.timers[0].stopped)

	// the cancelled timer firing late must not emit again
	clock.fire()
	assert.Equal(t, []bool{true, false}, rec.emitted)
}

func TestSubmitWhileIdleIsSilent(t *testing.T) {
	d, _, rec := newTestDebouncer()
	d.Submit()
	assert.Empty(t, rec.emitted)
}

func TestStaleExpiryAfterRestartIgnored(t *testing.T) {
	d, clock, rec := newTestDebouncer()

	d.Keystroke()
	first := clock.timers[0]
	d.Keystroke()

	first.f()
	assert.Equal(t, []bool{true}, rec.emitted)
	assert.True(t, d.Active())
}

func TestTeardownDoesNotEmit(t *testing.T) {
	d, clock, rec := newTestDebouncer()

	d.Keystroke()
	d.Teardown()
	clock.fire()

	assert.Equal(t, []bool{true}, rec.emitted)
	assert.False(t, d.Active())
}

func TestDeliverRoutesExpiry(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	var queued []func()
	d := New(time.Second, rec.emit,
		WithScheduler(clock.schedule),
		WithDeliver(func(f func()) { queued = append(queued, f) }))

	d.Keystroke()
	clock.fire()
	assert.Equal(t, []bool{true}, rec.emitted, "expiry waits for the owner's loop")

	require.Len(t, queued, 1)
	queued[0]()
	assert.Equal(t, []bool{true, false}, rec.emitted)
}

func TestRealTimerExpires(t *testing.T) {
	var mu sync.Mutex
	var emitted []bool
	done := make(chan struct{})

	var d *Debouncer
	// emit always runs with mu held: either from Keystroke below or from
	// the deliver hook.
	d = New(20*time.Millisecond, func(typing bool) {
		emitted = append(emitted, typing)
		if !typing {
			close(done)
		}
	}, WithDeliver(func(f func()) {
		mu.Lock()
		defer mu.Unlock()
		f()
	}))

	mu.Lock()
	d.Keystroke()
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("typing=false never emitted")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, emitted)
}
