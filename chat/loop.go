package chat

import "sync"

// loop serializes every mutation of a view onto one goroutine. post never
// blocks, so channel goroutines and timers can hand work over while the
// loop itself is busy closing them.
type loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newLoop() *loop {
	l := &loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// post queues f. It reports false once the loop has stopped; f is then
// dropped.
func (l *loop) post(f func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs f on the loop and waits for it. Never call it from the loop.
func (l *loop) call(f func()) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		f()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// stop discards queued work and ends the loop.
func (l *loop) stop() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, false
	}
	if len(l.queue) == 0 {
		return nil, true
	}
	f := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return f, true
}

func (l *loop) run() {
	defer close(l.done)
	for {
		f, ok := l.next()
		if !ok {
			return
		}
		if f == nil {
			<-l.wake
			continue
		}
		f()
	}
}
