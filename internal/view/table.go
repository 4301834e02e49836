package view

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

const maxColWidth = 48

// TableRenderer prints human readable tables.
type TableRenderer struct{}

func (TableRenderer) Render(w io.Writer, f Frame) error {
	var (
		header string
		table  *uitable.Table
	)

	switch v := f.Data.(type) {
	case []model.VehicleSnapshot:
		s := model.Summarize(v)
		header = fmt.Sprintf("Total: %d  Active: %d  Moving: %d  Avg fuel: %d%%", s.Total, s.Active, s.Moving, s.AverageFuel)
		table = vehicleTable(v)
	case *model.DashboardStats:
		if v == nil {
			return fmt.Errorf("%w: empty dashboard", ErrUnsupported)
		}
		table = statsTable(v)
	case *model.Location:
		table = newTable("LATITUDE", "LONGITUDE", "SPEED", "ACCURACY", "UPDATED")
		if v != nil {
			table.AddRow(coord(v.Latitude), coord(v.Longitude), kmh(v.Speed), fmt.Sprintf("%.0fm", v.Accuracy), clock(v.Timestamp))
		}
	case []model.Notification:
		table = newTable("", "TIME", "TITLE", "BODY")
		for _, n := range v {
			mark := "*"
			if n.Read {
				mark = ""
			}
			table.AddRow(mark, clock(n.Timestamp), n.Title, n.Body)
		}
	case []model.ChatMessage:
		table = newTable("TIME", "FROM", "ROLE", "MESSAGE")
		for _, m := range v {
			table.AddRow(clock(m.SentAt), m.Sender.Name, m.Sender.Role, m.Text)
		}
	case []model.Announcement:
		table = newTable("", "PRIORITY", "TITLE", "AUTHOR", "CREATED", "VIEWS")
		for _, a := range v {
			pin := ""
			if a.IsPinned {
				pin = "^"
			}
			table.AddRow(pin, a.EffectivePriority(), a.Title, a.AuthorName, clock(a.CreatedAt), a.Views)
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, f.Data)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "== %s  (%s)\n", f.View, f.At.Format(time.TimeOnly))
	if header != "" {
		b.WriteString(header)
		b.WriteByte('\n')
	}
	b.WriteString(table.String())
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func newTable(columns ...any) *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = maxColWidth
	t.AddRow(columns...)
	return t
}

func vehicleTable(vehicles []model.VehicleSnapshot) *uitable.Table {
	t := newTable("NUMBER", "TYPE", "STATUS", "DRIVER", "SPEED", "FUEL", "POSITION", "ROUTE", "UPDATED")
	for _, v := range vehicles {
		pos := "-"
		if lat, lon, ok := v.Position(); ok {
			pos = coord(lat) + "," + coord(lon)
		}
		updated := v.LastLocationUpdate
		if updated.IsZero() {
			updated = v.UpdatedAt
		}
		t.AddRow(v.Number, v.Type, v.Status, v.DriverName, kmh(v.Speed), fmt.Sprintf("%.0f%%", v.FuelLevel), pos, v.RouteName, clock(updated))
	}
	return t
}

func statsTable(s *model.DashboardStats) *uitable.Table {
	t := newTable("METRIC", "VALUE")
	t.AddRow("Users", s.TotalUsers)
	t.AddRow("Vehicles", fmt.Sprintf("%d (%d active, %d available)", s.TotalVehicles, s.ActiveVehicles, s.AvailableVehicles))
	t.AddRow("Drivers", fmt.Sprintf("%d (%d active)", s.TotalDrivers, s.ActiveDrivers))
	t.AddRow("Trips", fmt.Sprintf("%d (%d active, %d completed today)", s.TotalTrips, s.ActiveTrips, s.CompletedTripsToday))
	t.AddRow("Distance", fmt.Sprintf("%.1f km", s.TotalDistanceTraveled))
	if s.PendingApprovals > 0 {
		t.AddRow("Pending approvals", s.PendingApprovals)
	}
	return t
}

func coord(f float64) string { return fmt.Sprintf("%.5f", f) }

func kmh(f float64) string { return fmt.Sprintf("%.0f km/h", f) }

func clock(ts model.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}
