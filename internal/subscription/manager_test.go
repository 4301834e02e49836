package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/realtime"
)

// fakeBackend records open streams and lets tests push values into them.
type fakeBackend struct {
	mu      sync.Mutex
	streams map[string]int // open streams by resource
	emit    map[string]func(any)
	watches int

	StatsFunc    func(ctx context.Context) (*model.DashboardStats, error)
	TrackingFunc func(ctx context.Context) ([]model.VehicleSnapshot, error)
	WatchErr     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{streams: map[string]int{}, emit: map[string]func(any){}}
}

func (f *fakeBackend) open(name string, emit func(any)) (realtime.Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchErr != nil {
		return nil, f.WatchErr
	}
	f.watches++
	f.streams[name]++
	f.emit[name] = emit
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.streams[name]--
			f.mu.Unlock()
		})
	}, nil
}

func (f *fakeBackend) openCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[name]
}

func (f *fakeBackend) send(name string, v any) {
	f.mu.Lock()
	emit := f.emit[name]
	f.mu.Unlock()
	emit(v)
}

func (f *fakeBackend) WatchVehicles(_ context.Context, fn func([]model.VehicleSnapshot), _ func(error)) (realtime.Disposer, error) {
	return f.open("vehicles", func(v any) { fn(v.([]model.VehicleSnapshot)) })
}

func (f *fakeBackend) WatchVehicleLocation(_ context.Context, id string, fn func(*model.Location), _ func(error)) (realtime.Disposer, error) {
	return f.open("location:"+id, func(v any) { fn(v.(*model.Location)) })
}

func (f *fakeBackend) WatchNotifications(_ context.Context, uid string, fn func([]model.Notification), _ func(error)) (realtime.Disposer, error) {
	return f.open("notifications:"+uid, func(v any) { fn(v.([]model.Notification)) })
}

func (f *fakeBackend) WatchChat(_ context.Context, ch string, fn func([]model.ChatMessage), onErr func(error)) (realtime.Disposer, error) {
	return f.open("chat:"+ch, func(v any) {
		if err, ok := v.(error); ok {
			onErr(err)
			return
		}
		fn(v.([]model.ChatMessage))
	})
}

func (f *fakeBackend) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	return f.StatsFunc(ctx)
}

func (f *fakeBackend) TrackingVehicles(ctx context.Context) ([]model.VehicleSnapshot, error) {
	return f.TrackingFunc(ctx)
}

func flush(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Sync(ctx))
}

func TestParseKey(t *testing.T) {
	valid := map[Key]resource{
		VehiclesList:          {kind: KindVehicles, mode: Push},
		VehicleLocation("v1"): {kind: KindVehicleLocation, mode: Push, arg: "v1"},
		Notifications("u-9"):  {kind: KindNotifications, mode: Push, arg: "u-9"},
		Chat("general"):       {kind: KindChat, mode: Push, arg: "general"},
		DashboardStats:        {kind: KindDashboardStats, mode: Poll},
		TrackingVehicles:      {kind: KindTrackingVehicles, mode: Poll},
	}
	for key, want := range valid {
		got, err := parseKey(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	for _, key := range []Key{"", "vehicles", "chat:", "chat:a/b", "vehicle:location:x:y", "weather:today"} {
		_, err := parseKey(key)
		assert.True(t, apperr.IsValidation(err), key)
	}
}

func TestDoubleSubscribeLeavesOneHandle(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend)
	defer m.Close()

	var first, second []int
	dispose1, err := m.Subscribe(VehiclesList, Typed(func(v []model.VehicleSnapshot) { first = append(first, len(v)) }))
	require.NoError(t, err)
	_, err = m.Subscribe(VehiclesList, Typed(func(v []model.VehicleSnapshot) { second = append(second, len(v)) }))
	require.NoError(t, err)

	assert.Equal(t, []Key{VehiclesList}, m.Active())
	assert.Equal(t, 1, backend.openCount("vehicles"))

	backend.send("vehicles", []model.VehicleSnapshot{{ID: "a"}, {ID: "b"}})
	flush(t, m)
	assert.Empty(t, first)
	assert.Equal(t, []int{2}, second)

	// the replaced handle's disposer no longer controls the key
	dispose1()
	assert.Equal(t, []Key{VehiclesList}, m.Active())
}

func TestPushValueReplacesAndSnapshots(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend)
	defer m.Close()

	var got []*model.Location
	_, err := m.Subscribe(VehicleLocation("v1"), Typed(func(l *model.Location) { got = append(got, l) }))
	require.NoError(t, err)

	backend.send("location:v1", &model.Location{Latitude: 1})
	backend.send("location:v1", &model.Location{Latitude: 2})
	flush(t, m)

	require.Len(t, got, 2)
	assert.InDelta(t, 2, got[1].Latitude, 1e-9)

	v, at, ok := m.Snapshot(VehicleLocation("v1"))
	require.True(t, ok)
	assert.False(t, at.IsZero())
	assert.InDelta(t, 2, v.(*model.Location).Latitude, 1e-9)
}

func TestStreamErrorsGoToErrorHandler(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend)
	defer m.Close()

	var errs []error
	updates := 0
	_, err := m.Subscribe(Chat("general"), func(any) { updates++ }, WithErrorHandler(func(err error) { errs = append(errs, err) }))
	require.NoError(t, err)

	backend.send("chat:general", []model.ChatMessage{{ID: "1"}})
	backend.send("chat:general", errors.New("connection lost"))
	flush(t, m)

	assert.Equal(t, 1, updates)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "connection lost")
}

func TestWatchFailureLeavesNoHandle(t *testing.T) {
	backend := newFakeBackend()
	backend.WatchErr = apperr.New(apperr.KindNetwork, "watch", "broker down")
	m := NewManager(backend)
	defer m.Close()

	_, err := m.Subscribe(Notifications("u1"), func(any) {})
	assert.True(t, apperr.IsNetwork(err))
	assert.Empty(t, m.Active())
}

func TestDisposedDuringDeliveryDropsLateValues(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend)
	defer m.Close()

	calls := 0
	dispose, err := m.Subscribe(VehiclesList, func(any) { calls++ })
	require.NoError(t, err)

	// queued before disposal, dispatched after: must be dropped
	block := make(chan struct{})
	m.loop.push(func() { <-block })
	backend.send("vehicles", []model.VehicleSnapshot{{ID: "a"}})
	dispose()
	close(block)
	flush(t, m)

	assert.Zero(t, calls)
	assert.Zero(t, backend.openCount("vehicles"))
}

func TestPollDisposedBeforeFetchResolves(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := newFakeBackend()
	backend.StatsFunc = func(context.Context) (*model.DashboardStats, error) {
		close(started)
		<-release // ignores cancellation on purpose
		return &model.DashboardStats{TotalUsers: 10}, nil
	}
	m := NewManager(backend)
	defer m.Close()

	calls := 0
	dispose, err := m.Subscribe(DashboardStats, func(any) { calls++ })
	require.NoError(t, err)

	<-started
	dispose()
	close(release)

	// give the poll goroutine time to hand in its late result
	time.Sleep(50 * time.Millisecond)
	flush(t, m)
	assert.Zero(t, calls)
	_, _, ok := m.Snapshot(DashboardStats)
	assert.False(t, ok)
}

func TestPollKeepsLastGoodValue(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	var tick int
	var mu sync.Mutex
	backend := newFakeBackend()
	backend.StatsFunc = func(context.Context) (*model.DashboardStats, error) {
		mu.Lock()
		defer mu.Unlock()
		tick++
		switch tick {
		case 2:
			return nil, apperr.FromStatus("GET /dashboard/stats", 503, "")
		default:
			return &model.DashboardStats{TotalTrips: int64(tick)}, nil
		}
	}
	m := NewManager(backend, WithClock(fc), WithInterval(30*time.Second))
	defer m.Close()

	var (
		cbMu    sync.Mutex
		updates []int64
		errs    []error
	)
	_, err := m.Subscribe(DashboardStats,
		Typed(func(s *model.DashboardStats) {
			cbMu.Lock()
			updates = append(updates, s.TotalTrips)
			cbMu.Unlock()
		}),
		WithErrorHandler(func(err error) {
			cbMu.Lock()
			errs = append(errs, err)
			cbMu.Unlock()
		}),
	)
	require.NoError(t, err)

	seen := func() (int, int) {
		cbMu.Lock()
		defer cbMu.Unlock()
		return len(updates), len(errs)
	}

	// tick 1: immediate fetch
	require.Eventually(t, func() bool { u, _ := seen(); return u == 1 }, time.Second, 5*time.Millisecond)

	// tick 2: failure reported, snapshot untouched
	require.Eventually(t, fc.HasWaiters, time.Second, 5*time.Millisecond)
	fc.Step(30 * time.Second)
	require.Eventually(t, func() bool { _, e := seen(); return e == 1 }, time.Second, 5*time.Millisecond)
	v, _, ok := m.Snapshot(DashboardStats)
	require.True(t, ok)
	assert.Equal(t, int64(1), v.(*model.DashboardStats).TotalTrips)
	assert.True(t, apperr.IsServer(errs[0]))

	// tick 3: recovered
	fc.Step(30 * time.Second)
	require.Eventually(t, func() bool { u, _ := seen(); return u == 2 }, time.Second, 5*time.Millisecond)
	cbMu.Lock()
	assert.Equal(t, []int64{1, 3}, updates)
	cbMu.Unlock()
}

func TestCloseDisposesEverything(t *testing.T) {
	backend := newFakeBackend()
	backend.TrackingFunc = func(ctx context.Context) ([]model.VehicleSnapshot, error) {
		return []model.VehicleSnapshot{{ID: "v1", Speed: 10}}, nil
	}
	m := NewManager(backend)

	for _, k := range []Key{VehiclesList, Chat("general"), TrackingVehicles, Notifications("u1")} {
		_, err := m.Subscribe(k, func(any) {})
		require.NoError(t, err)
	}
	active := m.Active()
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	assert.Len(t, active, 4)

	m.Close()
	m.Close()
	assert.Empty(t, m.Active())
	assert.Zero(t, backend.openCount("vehicles"))
	assert.Zero(t, backend.openCount("chat:general"))

	_, err := m.Subscribe(VehiclesList, func(any) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Sync(context.Background()), ErrClosed)
}

func TestCallbackMaySubscribe(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend)
	defer m.Close()

	var inner []int
	_, err := m.Subscribe(VehiclesList, Typed(func(v []model.VehicleSnapshot) {
		// follow the first vehicle's location from inside a callback
		_, err := m.Subscribe(VehicleLocation(v[0].ID), func(any) { inner = append(inner, 1) })
		assert.NoError(t, err)
	}))
	require.NoError(t, err)

	backend.send("vehicles", []model.VehicleSnapshot{{ID: "v7"}})
	flush(t, m)
	backend.send("location:v7", &model.Location{})
	flush(t, m)

	assert.Equal(t, []int{1}, inner)
}
