package gateway

import (
	"context"
	"net/http"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

func (g *Gateway) AdminVehicles(ctx context.Context) ([]model.VehicleSnapshot, error) {
	var out []model.VehicleSnapshot
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/admin/vehicles", Out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) AdminUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/admin/users", Out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) AdminStats(ctx context.Context) (*model.DashboardStats, error) {
	var out model.DashboardStats
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/admin/stats", Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// DashboardStats returns the signed-in role's dashboard figures.
func (g *Gateway) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	var out model.DashboardStats
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/dashboard/stats", Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackingVehicles returns the tracking table: every vehicle with its last
// reported position.
func (g *Gateway) TrackingVehicles(ctx context.Context) ([]model.VehicleSnapshot, error) {
	var out []model.VehicleSnapshot
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/tracking/vehicles", Out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) PostLocation(ctx context.Context, sample model.LocationSample) error {
	return g.do(ctx, call{Method: http.MethodPost, Route: "/tracking/location", Body: sample})
}
