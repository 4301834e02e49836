package session

import (
	"sync"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventRestored  EventType = "restored"
	EventSignedOut EventType = "signed_out"
)

// Event describes a session change. Session is zero for EventSignedOut.
type Event struct {
	Type    EventType
	Session model.Session
	// Reason explains a sign out that the user did not ask for.
	Reason string
}

// watchers is a small publish-subscribe registry. Listeners are invoked in
// registration order on the goroutine that caused the change.
type watchers struct {
	mu     sync.Mutex
	nextID uint64
	order  []uint64
	fns    map[uint64]func(Event)
}

func (w *watchers) add(fn func(Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fns == nil {
		w.fns = make(map[uint64]func(Event))
	}
	w.nextID++
	id := w.nextID
	w.fns[id] = fn
	w.order = append(w.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { w.remove(id) })
	}
}

func (w *watchers) remove(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.fns, id)
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *watchers) publish(ev Event) {
	w.mu.Lock()
	fns := make([]func(Event), 0, len(w.order))
	for _, id := range w.order {
		fns = append(fns, w.fns[id])
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
