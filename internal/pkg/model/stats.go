package model

type RecentActivity struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	UserName    string    `json:"userName,omitempty"`
	Timestamp   Timestamp `json:"timestamp,omitzero"`
}

// DashboardStats is the aggregate served by /dashboard/stats and
// /admin/stats. Fields a role does not receive stay zero.
type DashboardStats struct {
	TotalUsers            int64            `json:"totalUsers"`
	TotalVehicles         int64            `json:"totalVehicles"`
	ActiveVehicles        int64            `json:"activeVehicles"`
	AvailableVehicles     int64            `json:"availableVehicles"`
	TotalDrivers          int64            `json:"totalDrivers"`
	ActiveDrivers         int64            `json:"activeDrivers"`
	TotalTrips            int64            `json:"totalTrips"`
	ActiveTrips           int64            `json:"activeTrips"`
	CompletedTripsToday   int64            `json:"completedTripsToday"`
	PendingApprovals      int64            `json:"pendingApprovals"`
	TotalDistanceTraveled float64          `json:"totalDistanceTraveled"`
	UsersByRole           map[string]int64 `json:"usersByRole,omitempty"`
	VehiclesByStatus      map[string]int64 `json:"vehiclesByStatus,omitempty"`
	RecentActivities      []RecentActivity `json:"recentActivities,omitempty"`
}
