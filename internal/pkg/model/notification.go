package model

// NotificationLimit is how many of the newest notifications a user sees.
const NotificationLimit = 50

type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Type      string    `json:"type,omitempty"`
	Read      bool      `json:"read"`
	Timestamp Timestamp `json:"timestamp,omitzero"`
}

// DeviceToken is the push registration stored at userTokens/{userID}.
// Token carries the serialized Web Push subscription.
type DeviceToken struct {
	Token       string    `json:"token"`
	LastUpdated Timestamp `json:"lastUpdated,omitzero"`
}
