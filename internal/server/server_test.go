package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/subscription"
	"github.com/autopeer-io/campustrack/pkg/options"
)

type fakeSnapshots map[subscription.Key]any

var snapTime = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func (f fakeSnapshots) Snapshot(key subscription.Key) (any, time.Time, bool) {
	v, ok := f[key]
	return v, snapTime, ok
}

func (f fakeSnapshots) Active() []subscription.Key {
	keys := make([]subscription.Key, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys
}

func newTestServer(t *testing.T, snaps Snapshots, opts ...HTTPOption) *httptest.Server {
	t.Helper()
	s := NewHTTPServer(options.NewHttpOptions(), snaps, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestProbes(t *testing.T) {
	ready := errors.New("realtime database not connected")
	ts := newTestServer(t, fakeSnapshots{}, WithReadinessCheck("realtime", func() error { return ready }))

	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "realtime database not connected")

	ready = nil
	code, _ = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, fakeSnapshots{})
	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "campustrack_session_active")
}

func TestSnapshots(t *testing.T) {
	snaps := fakeSnapshots{
		subscription.DashboardStats:        &model.DashboardStats{TotalVehicles: 4},
		subscription.VehicleLocation("v1"): &model.Location{Latitude: 23.7},
	}
	ts := newTestServer(t, snaps)

	code, body := get(t, ts.URL+"/api/v1/snapshots")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"keys":["dashboard:stats","vehicle:location:v1"]}`, body)

	code, body = get(t, ts.URL+"/api/v1/snapshots/dashboard:stats")
	require.Equal(t, http.StatusOK, code)
	var got struct {
		Key       string         `json:"key"`
		UpdatedAt time.Time      `json:"updatedAt"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "dashboard:stats", got.Key)
	assert.True(t, got.UpdatedAt.Equal(snapTime))
	assert.EqualValues(t, 4, got.Data["totalVehicles"])

	code, _ = get(t, ts.URL+"/api/v1/snapshots/vehicle:location:v1")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, ts.URL+"/api/v1/snapshots/chat:general")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestManagerStopsAllOnFailure(t *testing.T) {
	boom := errors.New("boom")
	stopped := make(chan struct{})

	m := NewManager(Func(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}))
	m.Add(Func(func(context.Context) error { return boom }))

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling server was not cancelled")
	}
}

func TestHTTPServerShutsDownOnCancel(t *testing.T) {
	opts := options.NewHttpOptions()
	opts.Addr = "127.0.0.1:0"
	s := NewHTTPServer(opts, fakeSnapshots{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
