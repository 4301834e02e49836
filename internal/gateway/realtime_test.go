package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/push"
	"github.com/autopeer-io/campustrack/internal/realtime"
	"github.com/autopeer-io/campustrack/pkg/mqtt"
	"github.com/autopeer-io/campustrack/pkg/mqtt/mqtttest"
)

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newRealtimeGateway(t *testing.T) (*Gateway, *mqtt.MemoryClient) {
	t.Helper()
	client := mqtt.NewMemoryClient()
	require.NoError(t, client.Start(context.Background()))
	db := realtime.New(client, realtime.Options{Root: "db", Settle: 20 * time.Millisecond})
	g, err := New(Config{BaseURL: "http://127.0.0.1:1/api"}, nil, db, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return g, client
}

func TestWatchVehiclesActiveOnly(t *testing.T) {
	ctx := context.Background()
	g, _ := newRealtimeGateway(t)

	id1, err := g.AddVehicle(ctx, model.VehicleSnapshot{Number: "UNI-001", Type: model.VehicleStudentBus})
	require.NoError(t, err)
	id2, err := g.AddVehicle(ctx, model.VehicleSnapshot{Number: "UNI-002"})
	require.NoError(t, err)

	var got []model.VehicleSnapshot
	dispose, err := g.WatchVehicles(ctx, func(v []model.VehicleSnapshot) { got = v }, nil)
	require.NoError(t, err)
	defer dispose()

	require.Len(t, got, 2)
	assert.Equal(t, id1, got[0].ID)
	assert.Equal(t, "UNI-001", got[0].Number)
	assert.True(t, got[0].CreatedAt.Equal(fixedNow))

	require.NoError(t, g.DeleteVehicle(ctx, id1))
	require.Len(t, got, 1)
	assert.Equal(t, id2, got[0].ID)

	require.NoError(t, g.UpdateVehicle(ctx, id2, map[string]any{"status": "MAINTENANCE"}))
	require.Len(t, got, 1)
	assert.Equal(t, model.VehicleMaintenance, got[0].Status)
	assert.Equal(t, "UNI-002", got[0].Number)
}

func TestUpdateVehicleLocationTouchesVehicle(t *testing.T) {
	ctx := context.Background()
	g, client := newRealtimeGateway(t)

	id, err := g.AddVehicle(ctx, model.VehicleSnapshot{Number: "UNI-003"})
	require.NoError(t, err)

	var locs []*model.Location
	dispose, err := g.WatchVehicleLocation(ctx, id, func(l *model.Location) { locs = append(locs, l) }, nil)
	require.NoError(t, err)
	defer dispose()
	require.Len(t, locs, 1)
	assert.Nil(t, locs[0])

	require.NoError(t, g.UpdateVehicleLocation(ctx, id, model.Location{Latitude: 6.9271, Longitude: 79.8612, Speed: 30}))
	require.Len(t, locs, 2)
	assert.InDelta(t, 6.9271, locs[1].Latitude, 1e-9)
	assert.True(t, locs[1].Timestamp.Equal(fixedNow))

	raw, ok := client.Payload("db/vehicles/" + id)
	require.True(t, ok)
	var vehicle map[string]any
	require.NoError(t, json.Unmarshal(raw, &vehicle))
	assert.EqualValues(t, fixedNow.UnixMilli(), vehicle["updatedAt"])
	assert.Equal(t, "UNI-003", vehicle["vehicleNumber"])
}

func TestReportLocationAttemptsBothWrites(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
	}}
	g := newTestGateway(t, rec, nil)

	client := mqtt.NewMemoryClient()
	require.NoError(t, client.Start(ctx))
	g.db = realtime.New(client, realtime.Options{Root: "db", Settle: 20 * time.Millisecond})

	err := g.ReportLocation(ctx, model.LocationSample{VehicleID: "v9", Latitude: 1, Longitude: 2})
	assert.True(t, apperr.IsServer(err))
	assert.Equal(t, "/api/tracking/location", rec.path)
	_, ok := client.Payload("db/vehicles/v9/location")
	assert.True(t, ok)
}

func TestWatchNotificationsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	g, _ := newRealtimeGateway(t)
	db := g.db

	for i, n := range []model.Notification{
		{Recipient: "u1", Title: "old", Timestamp: model.At(fixedNow.Add(-2 * time.Hour))},
		{Recipient: "u2", Title: "other", Timestamp: model.At(fixedNow)},
		{Recipient: "u1", Title: "new", Timestamp: model.At(fixedNow.Add(-time.Minute))},
	} {
		require.NoError(t, db.Set(ctx, "notifications/n"+string(rune('a'+i)), n))
	}

	var got []model.Notification
	dispose, err := g.WatchNotifications(ctx, "u1", func(n []model.Notification) { got = n }, nil)
	require.NoError(t, err)
	defer dispose()

	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Title)
	assert.Equal(t, "nc", got[0].ID)
	assert.Equal(t, "old", got[1].Title)

	id, err := g.SendNotification(ctx, model.Notification{Recipient: "u1", Title: "Bus delayed", Read: true})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, id, got[0].ID)
	assert.False(t, got[0].Read)

	require.NoError(t, g.MarkNotificationRead(ctx, id))
	assert.True(t, got[0].Read)
}

func TestSelectNotificationsKeepsNewestFifty(t *testing.T) {
	var all []model.Notification
	for i := 0; i < 60; i++ {
		all = append(all, model.Notification{ID: string(rune('A' + i)), Recipient: "u", Timestamp: model.Millis(int64(i))})
	}
	got := selectNotifications(all, "u")
	require.Len(t, got, model.NotificationLimit)
	assert.Equal(t, int64(59), got[0].Timestamp.UnixMilli())
	assert.Equal(t, int64(10), got[len(got)-1].Timestamp.UnixMilli())
}

func TestChatArrivalOrder(t *testing.T) {
	ctx := context.Background()
	g, _ := newRealtimeGateway(t)
	sender := model.Sender{ID: "d1", Name: "Sam", Role: model.RoleDriver}

	_, err := g.SendChatMessage(ctx, "general", sender, "")
	assert.True(t, apperr.IsValidation(err))

	m1, err := g.SendChatMessage(ctx, "general", sender, "Leaving the depot")
	require.NoError(t, err)
	m2, err := g.SendChatMessage(ctx, "general", sender, "Arrived at library")
	require.NoError(t, err)

	var got []model.ChatMessage
	dispose, err := g.WatchChat(ctx, "general", func(m []model.ChatMessage) { got = m }, nil)
	require.NoError(t, err)
	defer dispose()

	require.Len(t, got, 2)
	assert.Equal(t, m1.ID, got[0].ID)
	assert.Equal(t, m2.ID, got[1].ID)
	assert.Equal(t, "general", got[1].ChannelID)
	assert.Equal(t, model.RoleDriver, got[1].Sender.Role)
}

func TestUsersAndDeviceTokens(t *testing.T) {
	ctx := context.Background()
	g, _ := newRealtimeGateway(t)

	_, err := g.User(ctx, "u1")
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, g.UpdateUser(ctx, "u1", map[string]any{"firstName": "Ada", "role": "TEACHER"}))
	u, err := g.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, model.RoleTeacher, u.Role)

	require.NoError(t, g.SaveDeviceToken(ctx, "u1", `{"endpoint":"https://push.example/abc"}`))
	tok, err := g.DeviceToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, `{"endpoint":"https://push.example/abc"}`, tok.Token)
	assert.True(t, tok.LastUpdated.Equal(fixedNow))

	require.NoError(t, g.RemoveDeviceToken(ctx, "u1"))
	_, err = g.DeviceToken(ctx, "u1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRealtimeRejectsBadIDs(t *testing.T) {
	g, _ := newRealtimeGateway(t)
	err := g.UpdateVehicle(context.Background(), "a/b", nil)
	assert.True(t, apperr.IsValidation(err))

	noDB, err := New(Config{BaseURL: "http://localhost/api"}, nil, nil)
	require.NoError(t, err)
	_, err = noDB.WatchVehicles(context.Background(), func([]model.VehicleSnapshot) {}, nil)
	assert.True(t, apperr.IsCapability(err))
}

type countingSender struct {
	mu  sync.Mutex
	ids []string
}

func (s *countingSender) Send(_ context.Context, payload []byte, _ *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	var msg push.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ids = append(s.ids, msg.ID)
	s.mu.Unlock()
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (s *countingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestRestartDoesNotPushExistingInbox(t *testing.T) {
	ctx := context.Background()
	mem := mqtt.NewMemoryClient()
	require.NoError(t, mem.Start(ctx))
	client := mqtttest.NewDelayedClient(mem, 20*time.Millisecond)
	db := realtime.New(client, realtime.Options{Root: "db", Settle: 100 * time.Millisecond})
	g, err := New(Config{BaseURL: "http://127.0.0.1:1/api"}, nil, db, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	require.NoError(t, g.SaveDeviceToken(ctx, "u1", `{"endpoint":"https://push.example/sub/1","keys":{"p256dh":"k","auth":"a"}}`))
	require.NoError(t, db.Set(ctx, "notifications/na", model.Notification{Recipient: "u1", Title: "Bus 7 late", Timestamp: model.At(fixedNow)}))
	require.NoError(t, db.Set(ctx, "notifications/nb", model.Notification{Recipient: "u1", Title: "Route change", Timestamp: model.At(fixedNow)}))

	sender := &countingSender{}
	relay := push.NewRelay(push.Config{Workers: 1}, g, push.WithSender(sender))
	rctx, cancel := context.WithCancel(ctx)
	relay.Start(rctx)
	defer func() {
		cancel()
		relay.Wait()
	}()

	var mu sync.Mutex
	var first []model.Notification
	calls := 0
	dispose, err := g.WatchNotifications(ctx, "u1", func(list []model.Notification) {
		mu.Lock()
		if calls == 0 {
			first = list
		}
		calls++
		mu.Unlock()
		relay.Observe(ctx, list)
	}, nil)
	require.NoError(t, err)
	defer dispose()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Len(t, first, 2)
	mu.Unlock()

	id, err := g.SendNotification(ctx, model.Notification{Recipient: "u1", Title: "Shuttle arriving"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{id}, sender.sent())
}
