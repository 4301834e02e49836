// Package subscription keeps views supplied with live data. A Manager holds
// at most one handle per resource key; each handle is either a realtime
// stream (push) or a periodic REST fetch (poll), and every update it
// produces is checked against the handle's generation before delivery.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/realtime"
	"github.com/autopeer-io/campustrack/pkg/log"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultSnapshotTTL = 5 * time.Minute
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("subscription manager closed")

// Backend is what the manager reads from. The gateway implements it.
type Backend interface {
	WatchVehicles(ctx context.Context, fn func([]model.VehicleSnapshot), onErr func(error)) (realtime.Disposer, error)
	WatchVehicleLocation(ctx context.Context, vehicleID string, fn func(*model.Location), onErr func(error)) (realtime.Disposer, error)
	WatchNotifications(ctx context.Context, userID string, fn func([]model.Notification), onErr func(error)) (realtime.Disposer, error)
	WatchChat(ctx context.Context, channelID string, fn func([]model.ChatMessage), onErr func(error)) (realtime.Disposer, error)

	DashboardStats(ctx context.Context) (*model.DashboardStats, error)
	TrackingVehicles(ctx context.Context) ([]model.VehicleSnapshot, error)
}

// UpdateFunc receives the full current value of a resource:
//
//	vehicles:list, tracking:vehicles  []model.VehicleSnapshot
//	vehicle:location:{id}             *model.Location (nil: no location yet)
//	notifications:{userId}            []model.Notification
//	chat:{channelId}                  []model.ChatMessage
//	dashboard:stats                   *model.DashboardStats
type UpdateFunc func(value any)

type ErrorFunc func(err error)

// Disposer ends a subscription. Calling it again, or after the key was
// re-subscribed, does nothing.
type Disposer func()

// Typed adapts a function over the resource's concrete type.
func Typed[T any](fn func(T)) UpdateFunc {
	return func(v any) {
		if t, ok := v.(T); ok {
			fn(t)
		}
	}
}

type SubscribeOption func(*handle)

// WithErrorHandler receives stream and fetch failures for the handle.
func WithErrorHandler(fn ErrorFunc) SubscribeOption {
	return func(h *handle) { h.onError = fn }
}

type handle struct {
	key      Key
	res      resource
	gen      uint64
	onUpdate UpdateFunc
	onError  ErrorFunc

	cancel  context.CancelFunc
	dispose realtime.Disposer
}

type snapshot struct {
	value any
	at    time.Time
}

type Manager struct {
	backend  Backend
	interval time.Duration
	clock    clock.WithTicker
	log      log.Logger

	snapshots *cache.Cache
	loop      *eventLoop

	mu      sync.Mutex
	gen     uint64
	handles map[Key]*handle
	closed  bool
}

type Option func(*Manager)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithSnapshotTTL sets how long a last good value stays servable.
func WithSnapshotTTL(d time.Duration) Option {
	return func(m *Manager) { m.snapshots = cache.New(d, 2*d) }
}

// WithClock replaces the poll ticker source, for tests.
func WithClock(c clock.WithTicker) Option {
	return func(m *Manager) { m.clock = c }
}

func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:   backend,
		interval:  DefaultInterval,
		clock:     clock.RealClock{},
		log:       log.WithName("subscription"),
		snapshots: cache.New(DefaultSnapshotTTL, 2*DefaultSnapshotTTL),
		handles:   make(map[Key]*handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loop = newEventLoop()
	return m
}

// Subscribe opens the resource named by key. An existing handle for the same
// key is disposed first. onUpdate and the error handler are called one at a
// time, never concurrently, on the manager's delivery goroutine.
func (m *Manager) Subscribe(key Key, onUpdate UpdateFunc, opts ...SubscribeOption) (Disposer, error) {
	res, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{key: key, res: res, onUpdate: onUpdate, cancel: cancel}
	for _, opt := range opts {
		opt(h)
	}

	// 1. Replace whatever is active for key and claim a new generation.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	prev := m.handles[key]
	m.gen++
	h.gen = m.gen
	m.handles[key] = h
	m.mu.Unlock()

	if prev != nil {
		m.release(prev)
	}
	metrics.SubscriptionsActive.WithLabelValues(res.mode.String()).Inc()

	// 2. Open the stream or start polling. The handle is already current, so
	// values delivered during the call are kept.
	switch res.mode {
	case Poll:
		go m.poll(ctx, h, m.clock.NewTicker(m.interval))
	default:
		dispose, err := m.watch(ctx, h)
		if err != nil {
			m.drop(h)
			return nil, err
		}
		m.mu.Lock()
		current := m.handles[key] == h
		if current {
			h.dispose = dispose
		}
		m.mu.Unlock()
		if !current {
			// Disposed or replaced while the stream was opening.
			dispose()
		}
	}

	m.log.Debug("Subscribed", "key", string(key), "generation", h.gen, "mode", res.mode.String())

	var once sync.Once
	return func() { once.Do(func() { m.drop(h) }) }, nil
}

func (m *Manager) watch(ctx context.Context, h *handle) (realtime.Disposer, error) {
	onErr := func(err error) { m.deliver(h, nil, err) }
	switch h.res.kind {
	case KindVehicles:
		return m.backend.WatchVehicles(ctx, func(v []model.VehicleSnapshot) { m.deliver(h, v, nil) }, onErr)
	case KindVehicleLocation:
		return m.backend.WatchVehicleLocation(ctx, h.res.arg, func(l *model.Location) { m.deliver(h, l, nil) }, onErr)
	case KindNotifications:
		return m.backend.WatchNotifications(ctx, h.res.arg, func(n []model.Notification) { m.deliver(h, n, nil) }, onErr)
	case KindChat:
		return m.backend.WatchChat(ctx, h.res.arg, func(c []model.ChatMessage) { m.deliver(h, c, nil) }, onErr)
	}
	return nil, apperr.New(apperr.KindValidation, "subscribe", "not a push resource: "+string(h.key))
}

// poll fetches immediately, then on every tick, until ctx is cancelled. A
// failed fetch is reported and the previous value stays in place.
func (m *Manager) poll(ctx context.Context, h *handle, ticker clock.Ticker) {
	defer ticker.Stop()

	for {
		value, err := m.fetch(ctx, h.res.kind)
		if ctx.Err() != nil {
			return
		}
		m.deliver(h, value, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

func (m *Manager) fetch(ctx context.Context, kind string) (any, error) {
	switch kind {
	case KindDashboardStats:
		return m.backend.DashboardStats(ctx)
	case KindTrackingVehicles:
		return m.backend.TrackingVehicles(ctx)
	}
	return nil, apperr.New(apperr.KindValidation, "poll", "not a poll resource: "+kind)
}

// deliver queues a result for h. Whether h is still current is decided when
// the result reaches the front of the queue, not when it was produced.
func (m *Manager) deliver(h *handle, value any, err error) {
	m.loop.push(func() {
		if !m.isCurrent(h) {
			metrics.UpdatesTotal.WithLabelValues(h.res.kind, "stale").Inc()
			return
		}
		if err != nil {
			metrics.UpdatesTotal.WithLabelValues(h.res.kind, "error").Inc()
			m.log.Warn("Live update failed", "key", string(h.key), "error", err.Error())
			if h.onError != nil {
				h.onError(err)
			}
			return
		}
		m.snapshots.SetDefault(string(h.key), snapshot{value: value, at: time.Now()})
		metrics.UpdatesTotal.WithLabelValues(h.res.kind, "delivered").Inc()
		if h.onUpdate != nil {
			h.onUpdate(value)
		}
	})
}

func (m *Manager) isCurrent(h *handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.handles[h.key]
	return ok && cur.gen == h.gen
}

// drop disposes h if it is still the active handle for its key.
func (m *Manager) drop(h *handle) {
	m.mu.Lock()
	if cur, ok := m.handles[h.key]; !ok || cur != h {
		m.mu.Unlock()
		return
	}
	delete(m.handles, h.key)
	m.mu.Unlock()

	m.release(h)
}

// release stops h's stream or poll loop. h must already be unlinked.
func (m *Manager) release(h *handle) {
	h.cancel()
	m.mu.Lock()
	dispose := h.dispose
	h.dispose = nil
	m.mu.Unlock()
	if dispose != nil {
		dispose()
	}
	metrics.SubscriptionsActive.WithLabelValues(h.res.mode.String()).Dec()
	m.log.Debug("Unsubscribed", "key", string(h.key), "generation", h.gen)
}

// Snapshot returns the last value delivered for key, while it is fresh
// enough to serve. It survives failed polls and disposal of the handle.
func (m *Manager) Snapshot(key Key) (value any, updatedAt time.Time, ok bool) {
	v, found := m.snapshots.Get(string(key))
	if !found {
		return nil, time.Time{}, false
	}
	s := v.(snapshot)
	return s.value, s.at, true
}

// Active lists the keys with a live handle.
func (m *Manager) Active() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]Key, 0, len(m.handles))
	for k := range m.handles {
		keys = append(keys, k)
	}
	return keys
}

// Sync waits until every callback queued before the call has run.
func (m *Manager) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !m.loop.push(func() { close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disposes every handle. Pending callbacks are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	handles := m.handles
	m.handles = make(map[Key]*handle)
	m.mu.Unlock()

	for _, h := range handles {
		m.release(h)
	}
	m.loop.close()
}
