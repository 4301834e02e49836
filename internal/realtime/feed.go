package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
)

type listener[F any] struct {
	id    uint64
	fn    F
	onErr ErrorFunc
	// seen is the feed version last handed to fn; zero until the first value.
	seen uint64
}

// claim reports whether l still has to receive version and records it.
// A listener never goes back to an older version.
func claim[F any](mu *sync.Mutex, l *listener[F], version uint64) bool {
	mu.Lock()
	defer mu.Unlock()
	if l.seen >= version {
		return false
	}
	l.seen = version
	return true
}

func removeListener[F any](ls []*listener[F], id uint64) []*listener[F] {
	for i, l := range ls {
		if l.id == id {
			return append(ls[:i], ls[i+1:]...)
		}
	}
	return ls
}

func findListener[F any](ls []*listener[F], id uint64) *listener[F] {
	for _, l := range ls {
		if l.id == id {
			return l
		}
	}
	return nil
}

func errorTargets[F any](ls []*listener[F]) []ErrorFunc {
	var out []ErrorFunc
	for _, l := range ls {
		if l.onErr != nil {
			out = append(out, l.onErr)
		}
	}
	return out
}

// recordFeed fans one record subscription out to every watcher of the path.
//
// Watchers hear nothing until the feed is ready: either the retained record
// arrived or the settle window passed without one, meaning there is none.
type recordFeed struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []*listener[ValueFunc]
	value     json.RawMessage
	version   uint64
	received  bool
	primed    bool
	ready     bool
	timer     *time.Timer
}

func newRecordFeed() *recordFeed { return &recordFeed{} }

func (f *recordFeed) add(fn ValueFunc, onErr ErrorFunc) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.listeners = append(f.listeners, &listener[ValueFunc]{id: f.nextID, fn: fn, onErr: onErr})
	return f.nextID
}

// remove drops a listener and returns how many remain.
func (f *recordFeed) remove(id uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = removeListener(f.listeners, id)
	if len(f.listeners) == 0 && f.timer != nil {
		f.timer.Stop()
	}
	return len(f.listeners)
}

// current returns the record and whether the feed knows it yet.
func (f *recordFeed) current() (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.ready
}

// prime is called once the subscription is in place. A record delivered
// during Subscribe, or a client that replays retained state synchronously,
// makes the feed ready at once; otherwise it waits up to settle.
func (f *recordFeed) prime(settle time.Duration, replayed bool) {
	f.mu.Lock()
	if f.primed {
		f.mu.Unlock()
		return
	}
	f.primed = true
	if !f.received && !replayed {
		f.timer = time.AfterFunc(settle, f.markReady)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.markReady()
}

func (f *recordFeed) markReady() {
	f.mu.Lock()
	if f.ready {
		f.mu.Unlock()
		return
	}
	f.ready = true
	f.version++
	value, version := f.value, f.version
	targets := append([]*listener[ValueFunc](nil), f.listeners...)
	f.mu.Unlock()

	f.deliver(value, version, targets)
}

func (f *recordFeed) apply(payload []byte) {
	if len(payload) > 0 && !json.Valid(payload) {
		f.fail(apperr.New(apperr.KindServer, "watch", fmt.Sprintf("record is not valid JSON (%d bytes)", len(payload))))
		return
	}

	f.mu.Lock()
	f.received = true
	if len(payload) == 0 {
		f.value = nil
	} else {
		f.value = append(json.RawMessage(nil), payload...)
	}
	f.version++
	if !f.primed {
		f.mu.Unlock()
		return
	}
	f.ready = true
	if f.timer != nil {
		f.timer.Stop()
	}
	value, version := f.value, f.version
	targets := append([]*listener[ValueFunc](nil), f.listeners...)
	f.mu.Unlock()

	f.deliver(value, version, targets)
}

func (f *recordFeed) deliver(value json.RawMessage, version uint64, targets []*listener[ValueFunc]) {
	for _, l := range targets {
		if claim(&f.mu, l, version) {
			l.fn(value)
		}
	}
}

// join hands a listener that joined a ready feed the current record.
// Listeners that joined earlier get it from markReady instead.
func (f *recordFeed) join(id uint64) {
	f.mu.Lock()
	if !f.ready {
		f.mu.Unlock()
		return
	}
	l := findListener(f.listeners, id)
	value, version := f.value, f.version
	f.mu.Unlock()

	if l != nil && claim(&f.mu, l, version) {
		l.fn(value)
	}
}

func (f *recordFeed) fail(err error) {
	f.mu.Lock()
	targets := errorTargets(f.listeners)
	f.mu.Unlock()
	for _, fn := range targets {
		fn(err)
	}
}

// childrenFeed folds child records of one collection into an ordered map.
// Keys keep their first-arrival position until removed.
//
// A collection has no end-of-snapshot marker, so the feed becomes ready once
// the retained burst has been quiet for the settle window.
type childrenFeed struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []*listener[ChildrenFunc]
	keys      []string
	data      map[string]json.RawMessage
	version   uint64
	settle    time.Duration
	primed    bool
	ready     bool
	timer     *time.Timer
}

func newChildrenFeed() *childrenFeed {
	return &childrenFeed{data: make(map[string]json.RawMessage)}
}

func (f *childrenFeed) add(fn ChildrenFunc, onErr ErrorFunc) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.listeners = append(f.listeners, &listener[ChildrenFunc]{id: f.nextID, fn: fn, onErr: onErr})
	return f.nextID
}

func (f *childrenFeed) remove(id uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = removeListener(f.listeners, id)
	if len(f.listeners) == 0 && f.timer != nil {
		f.timer.Stop()
	}
	return len(f.listeners)
}

// child returns one child and whether the feed has its full snapshot yet.
func (f *childrenFeed) child(key string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], f.ready
}

func (f *childrenFeed) snapshotLocked() []Child {
	out := make([]Child, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, Child{Key: k, Data: f.data[k]})
	}
	return out
}

func (f *childrenFeed) prime(settle time.Duration, replayed bool) {
	f.mu.Lock()
	if f.primed {
		f.mu.Unlock()
		return
	}
	f.primed = true
	f.settle = settle
	if !replayed {
		f.timer = time.AfterFunc(settle, f.markReady)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.markReady()
}

func (f *childrenFeed) markReady() {
	f.mu.Lock()
	if f.ready {
		f.mu.Unlock()
		return
	}
	f.ready = true
	f.version++
	snap, version := f.snapshotLocked(), f.version
	targets := append([]*listener[ChildrenFunc](nil), f.listeners...)
	f.mu.Unlock()

	f.deliver(snap, version, targets)
}

func (f *childrenFeed) apply(key string, payload []byte) {
	if len(payload) > 0 && !json.Valid(payload) {
		f.fail(apperr.New(apperr.KindServer, "watch", fmt.Sprintf("child %q is not valid JSON", key)))
		return
	}

	f.mu.Lock()
	if len(payload) == 0 {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			for i, k := range f.keys {
				if k == key {
					f.keys = append(f.keys[:i], f.keys[i+1:]...)
					break
				}
			}
		}
	} else {
		if _, ok := f.data[key]; !ok {
			f.keys = append(f.keys, key)
		}
		f.data[key] = append(json.RawMessage(nil), payload...)
	}
	f.version++
	if !f.ready {
		// still inside the retained burst
		if f.timer != nil {
			f.timer.Reset(f.settle)
		}
		f.mu.Unlock()
		return
	}
	snap, version := f.snapshotLocked(), f.version
	targets := append([]*listener[ChildrenFunc](nil), f.listeners...)
	f.mu.Unlock()

	f.deliver(snap, version, targets)
}

func (f *childrenFeed) deliver(snap []Child, version uint64, targets []*listener[ChildrenFunc]) {
	for _, l := range targets {
		if claim(&f.mu, l, version) {
			l.fn(snap)
		}
	}
}

func (f *childrenFeed) join(id uint64) {
	f.mu.Lock()
	if !f.ready {
		f.mu.Unlock()
		return
	}
	l := findListener(f.listeners, id)
	snap, version := f.snapshotLocked(), f.version
	f.mu.Unlock()

	if l != nil && claim(&f.mu, l, version) {
		l.fn(snap)
	}
}

func (f *childrenFeed) fail(err error) {
	f.mu.Lock()
	targets := errorTargets(f.listeners)
	f.mu.Unlock()
	for _, fn := range targets {
		fn(err)
	}
}
