package model

import "time"

// Location is the record stored at vehicles/{id}/location.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp Timestamp `json:"timestamp,omitzero"`
}

// LocationSample is one reading taken on a driver's device.
type LocationSample struct {
	VehicleID  string    `json:"vehicleId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      float64   `json:"speed"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Location converts the sample into the realtime record, stamped at now.
func (s LocationSample) Location(now time.Time) Location {
	return Location{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Speed:     s.Speed,
		Accuracy:  s.Accuracy,
		Timestamp: At(now),
	}
}
