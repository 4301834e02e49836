package model

type TripStatus string

const (
	TripScheduled  TripStatus = "SCHEDULED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

type Stop struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Completed bool      `json:"completed"`
	ArrivedAt Timestamp `json:"arrivedAt,omitzero"`
}

type Trip struct {
	ID         string     `json:"id"`
	VehicleID  string     `json:"vehicleId"`
	RouteName  string     `json:"routeName,omitempty"`
	Status     TripStatus `json:"status"`
	Stops      []Stop     `json:"stops,omitempty"`
	Passengers int        `json:"passengers"`
	StartedAt  Timestamp  `json:"startedAt,omitzero"`
	EndedAt    Timestamp  `json:"endedAt,omitzero"`
}

// NextStop returns the first stop not yet completed.
func (t Trip) NextStop() (Stop, bool) {
	for _, s := range t.Stops {
		if !s.Completed {
			return s, true
		}
	}
	return Stop{}, false
}

type Passenger struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role,omitempty"`
	StopID  string `json:"stopId,omitempty"`
	Boarded bool   `json:"boarded"`
}

type MaintenanceRecord struct {
	ID          string    `json:"id"`
	VehicleID   string    `json:"vehicleId"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	ScheduledAt Timestamp `json:"scheduledAt,omitzero"`
	CompletedAt Timestamp `json:"completedAt,omitzero"`
}

// DutyStatus is the driver's on-duty toggle.
type DutyStatus struct {
	OnDuty    bool      `json:"onDuty"`
	VehicleID string    `json:"vehicleId,omitempty"`
	UpdatedAt Timestamp `json:"updatedAt,omitzero"`
}

type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// Report is an incident or issue filed by a driver.
type Report struct {
	VehicleID   string       `json:"vehicleId"`
	TripID      string       `json:"tripId,omitempty"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
