package subscription

import (
	"fmt"
	"sync"

	"github.com/autopeer-io/campustrack/pkg/log"
)

// eventLoop runs queued callbacks one at a time, in order, on its own
// goroutine. The queue is unbounded so producers never block, including
// producers that are themselves running inside a callback.
type eventLoop struct {
	mu      sync.Mutex
	items   []func()
	stopped bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// push queues fn. It reports false once the loop is stopped.
func (l *eventLoop) push(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.items = append(l.items, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.items) == 0 {
			l.mu.Unlock()
			select {
			case <-l.signal:
				continue
			case <-l.stop:
				return
			}
		}
		fn := l.items[0]
		l.items[0] = nil
		l.items = l.items[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *eventLoop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "Subscription callback panicked")
		}
	}()
	fn()
}

// close drops pending callbacks. A callback already running finishes on its
// own; close does not wait for it, so it is safe to call from a callback.
func (l *eventLoop) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.items = nil
	close(l.stop)
}
