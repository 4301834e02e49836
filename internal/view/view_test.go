package view

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

var frameTime = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return frameTime }

func vehicles() []model.VehicleSnapshot {
	lat, lon := 23.72751, 90.39571
	return []model.VehicleSnapshot{
		{ID: "v1", Number: "DHK-101", Status: model.VehicleActive, Speed: 32, FuelLevel: 80, Latitude: &lat, Longitude: &lon, DriverName: "Karim"},
		{ID: "v2", Number: "DHK-102", Status: model.VehicleMaintenance, FuelLevel: 45},
	}
}

func TestTableRendersTrackingSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TableRenderer{}.Render(&buf, Frame{View: "tracking:vehicles", At: frameTime, Data: vehicles()}))

	out := buf.String()
	assert.Contains(t, out, "== tracking:vehicles")
	assert.Contains(t, out, "Total: 2  Active: 1  Moving: 1  Avg fuel: 63%")
	assert.Contains(t, out, "DHK-101")
	assert.Contains(t, out, "23.72751,90.39571")
	assert.Contains(t, out, "MAINTENANCE")
}

func TestTableRendersEveryResource(t *testing.T) {
	values := map[string]any{
		"dashboard":     &model.DashboardStats{TotalUsers: 12, TotalVehicles: 4},
		"location":      &model.Location{Latitude: 1, Longitude: 2},
		"no location":   (*model.Location)(nil),
		"notifications": []model.Notification{{Title: "Delay", Body: "Bus 3 is late"}},
		"chat":          []model.ChatMessage{{Sender: model.Sender{Name: "Ada", Role: model.RoleTeacher}, Text: "hello"}},
		"announcements": []model.Announcement{{Title: "Exam shuttle", IsPinned: true}},
	}
	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.NoError(t, TableRenderer{}.Render(&buf, Frame{View: name, At: frameTime, Data: v}))
			assert.NotEmpty(t, buf.String())
		})
	}
}

func TestTableRejectsUnknownValues(t *testing.T) {
	err := TableRenderer{}.Render(io.Discard, Frame{View: "x", Data: 42})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestJSONAndYAMLKeepWireNames(t *testing.T) {
	f := Frame{View: "vehicles:list", At: frameTime, Data: vehicles()[:1]}

	var jbuf bytes.Buffer
	require.NoError(t, JSONRenderer{}.Render(&jbuf, f))
	var decoded struct {
		View string           `json:"view"`
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(jbuf.Bytes(), &decoded))
	assert.Equal(t, "vehicles:list", decoded.View)
	assert.Equal(t, "DHK-101", decoded.Data[0]["vehicleNumber"])

	var ybuf bytes.Buffer
	require.NoError(t, YAMLRenderer{}.Render(&ybuf, f))
	assert.True(t, strings.HasPrefix(ybuf.String(), "---\n"))
	var doc struct {
		View string           `yaml:"view"`
		Data []map[string]any `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(ybuf.Bytes(), &doc))
	assert.Equal(t, "vehicles:list", doc.View)
	assert.Equal(t, "DHK-101", doc.Data[0]["vehicleNumber"])
}

func TestNewRenderer(t *testing.T) {
	for _, format := range []string{"table", "json", "yaml", "none"} {
		r, err := NewRenderer(format)
		require.NoError(t, err, format)
		assert.NotNil(t, r)
	}
	_, err := NewRenderer("xml")
	assert.Error(t, err)
}

func TestSupervisorContainsPanics(t *testing.T) {
	calls := 0
	r := RendererFunc(func(w io.Writer, f Frame) error {
		calls++
		io.WriteString(w, "partial ")
		if f.Data == nil {
			panic("nil dereference")
		}
		_, err := io.WriteString(w, "ok\n")
		return err
	})

	var out bytes.Buffer
	s := NewSupervisor(r, &out, WithClock(fixedClock))

	assert.False(t, s.Render("dashboard:stats", nil))
	assert.Contains(t, out.String(), "Something went wrong")
	assert.NotContains(t, out.String(), "partial")
	require.Error(t, s.Failed("dashboard:stats"))

	// later updates still render
	out.Reset()
	assert.True(t, s.Render("dashboard:stats", 1))
	assert.Equal(t, "partial ok\n", out.String())
	assert.NoError(t, s.Failed("dashboard:stats"))
	assert.Equal(t, 2, calls)
}

func TestSupervisorFallbackOnError(t *testing.T) {
	boom := errors.New("boom")
	var gotView string
	var gotErr error
	s := NewSupervisor(
		RendererFunc(func(io.Writer, Frame) error { return boom }),
		io.Discard,
		WithFallback(func(_ io.Writer, view string, err error) { gotView, gotErr = view, err }),
	)

	assert.False(t, s.Render("chat:general", nil))
	assert.Equal(t, "chat:general", gotView)
	assert.ErrorIs(t, gotErr, boom)
	// other views are unaffected
	assert.NoError(t, s.Failed("vehicles:list"))
}
