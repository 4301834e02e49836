package gateway

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

// DriverVehicle returns the vehicle assigned to the signed-in driver.
func (g *Gateway) DriverVehicle(ctx context.Context) (*model.VehicleSnapshot, error) {
	var out model.VehicleSnapshot
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/driver/vehicle", Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentTrip returns the driver's trip in progress. No trip is a NotFound error.
func (g *Gateway) CurrentTrip(ctx context.Context) (*model.Trip, error) {
	var out model.Trip
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/driver/current-trip", Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) Passengers(ctx context.Context) ([]model.Passenger, error) {
	var out []model.Passenger
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/driver/passengers", Out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) Maintenance(ctx context.Context) ([]model.MaintenanceRecord, error) {
	var out []model.MaintenanceRecord
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/driver/maintenance", Out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) SetDutyStatus(ctx context.Context, onDuty bool) (*model.DutyStatus, error) {
	var out model.DutyStatus
	err := g.do(ctx, call{
		Method: http.MethodPost,
		Route:  "/driver/duty-status",
		Body:   map[string]bool{"onDuty": onDuty},
		Out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) StartTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	var out model.Trip
	err := g.do(ctx, call{
		Method: http.MethodPost,
		Route:  "/driver/start-trip",
		Body:   map[string]string{"tripId": tripID},
		Out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) CompleteStop(ctx context.Context, tripID, stopID string) (*model.Trip, error) {
	var out model.Trip
	err := g.do(ctx, call{
		Method: http.MethodPost,
		Route:  "/driver/complete-stop",
		Body:   map[string]string{"tripId": tripID, "stopId": stopID},
		Out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitReport uploads attachments to object storage, then files the report
// with their download URLs. Nothing is filed if an upload fails.
func (g *Gateway) SubmitReport(ctx context.Context, report model.Report, files ...Upload) (*model.MessageResponse, error) {
	const op = "POST /driver/report"

	fields := map[string]string{}
	if report.VehicleID == "" {
		fields["vehicleId"] = "Vehicle is required"
	}
	if report.Description == "" {
		fields["description"] = "Description is required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(op, fields)
	}

	if len(files) > 0 {
		if g.storage == nil {
			return nil, apperr.New(apperr.KindCapability, op, "attachments are not available")
		}
		for _, f := range files {
			key := path.Join("reports", report.VehicleID, uuid.NewString()+"-"+path.Base(f.Name))
			att, err := g.storage.Upload(ctx, key, f)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindNetwork, op, fmt.Errorf("upload %s: %w", f.Name, err))
			}
			report.Attachments = append(report.Attachments, att)
		}
	}

	var out model.MessageResponse
	if err := g.do(ctx, call{Method: http.MethodPost, Route: "/driver/report", Body: report, Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}
