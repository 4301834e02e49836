package model

import "math"

type VehicleStatus string

const (
	VehicleActive       VehicleStatus = "ACTIVE"
	VehicleInactive     VehicleStatus = "INACTIVE"
	VehicleMaintenance  VehicleStatus = "MAINTENANCE"
	VehicleOutOfService VehicleStatus = "OUT_OF_SERVICE"
)

type VehicleType string

const (
	VehicleStudentBus  VehicleType = "STUDENT_BUS"
	VehicleTeacherBus  VehicleType = "TEACHER_BUS"
	VehicleOfficeAdmin VehicleType = "OFFICE_ADMIN_VEHICLE"
	VehicleGeneral     VehicleType = "GENERAL_TRANSPORT"
)

// VehicleSnapshot is the last known state of a vehicle. It is only ever
// replaced by a newer snapshot from the server, never edited locally.
type VehicleSnapshot struct {
	ID                 string        `json:"id"`
	Number             string        `json:"vehicleNumber"`
	Brand              string        `json:"brand,omitempty"`
	Model              string        `json:"model,omitempty"`
	Capacity           int           `json:"capacity,omitempty"`
	Type               VehicleType   `json:"vehicleType,omitempty"`
	Status             VehicleStatus `json:"status,omitempty"`
	University         string        `json:"university,omitempty"`
	DriverID           string        `json:"driverId,omitempty"`
	DriverName         string        `json:"driverName,omitempty"`
	DriverPhone        string        `json:"driverPhone,omitempty"`
	Latitude           *float64      `json:"currentLatitude,omitempty"`
	Longitude          *float64      `json:"currentLongitude,omitempty"`
	Speed              float64       `json:"currentSpeed"`
	FuelLevel          float64       `json:"fuelLevel"`
	Direction          string        `json:"direction,omitempty"`
	RouteName          string        `json:"routeName,omitempty"`
	IsActive           bool          `json:"isActive"`
	Location           *Location     `json:"location,omitempty"`
	LastLocationUpdate Timestamp     `json:"lastLocationUpdate,omitzero"`
	CreatedAt          Timestamp     `json:"createdAt,omitzero"`
	UpdatedAt          Timestamp     `json:"updatedAt,omitzero"`
}

// Position returns the best known coordinates: the embedded realtime
// location when present, otherwise the current latitude/longitude pair.
func (v VehicleSnapshot) Position() (lat, lon float64, ok bool) {
	if v.Location != nil {
		return v.Location.Latitude, v.Location.Longitude, true
	}
	if v.Latitude != nil && v.Longitude != nil {
		return *v.Latitude, *v.Longitude, true
	}
	return 0, 0, false
}

// Moving reports a strictly positive speed.
func (v VehicleSnapshot) Moving() bool { return v.Speed > 0 }

// TrackingSummary aggregates a tracking table snapshot.
type TrackingSummary struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Moving      int `json:"moving"`
	AverageFuel int `json:"avgFuel"`
}

// Summarize computes the header figures shown above the tracking table.
func Summarize(vehicles []VehicleSnapshot) TrackingSummary {
	s := TrackingSummary{Total: len(vehicles)}
	if len(vehicles) == 0 {
		return s
	}

	var fuel float64
	for _, v := range vehicles {
		if v.Status == VehicleActive {
			s.Active++
		}
		if v.Moving() {
			s.Moving++
		}
		fuel += v.FuelLevel
	}
	s.AverageFuel = int(math.Round(fuel / float64(len(vehicles))))
	return s
}
