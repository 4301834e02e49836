// Package paths holds the realtime database layout shared by every client.
// A record at path P lives on the retained topic {root}/P.
package paths

import "strings"

// Collections.
const (
	// Vehicles holds one record per vehicle.
	// Pattern: vehicles/{vehicleID}
	Vehicles = "vehicles"

	// Notifications holds every user notification; readers filter by recipient.
	// Pattern: notifications/{notificationID}
	Notifications = "notifications"

	// Users holds profile records.
	// Pattern: users/{userID}
	Users = "users"

	// UserTokens holds one push registration per user.
	// Payload: { "token": "...", "lastUpdated": 1700000000000 }
	// Pattern: userTokens/{userID}
	UserTokens = "userTokens"

	// Chats holds one collection of messages per channel.
	// Pattern: chats/{channelID}/{messageID}
	Chats = "chats"
)

// Location is the child segment carrying a vehicle's last reported position.
// Pattern: vehicles/{vehicleID}/location
const Location = "location"

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func Vehicle(id string) string         { return Join(Vehicles, id) }
func VehicleLocation(id string) string { return Join(Vehicles, id, Location) }
func Notification(id string) string    { return Join(Notifications, id) }
func User(id string) string            { return Join(Users, id) }
func UserToken(id string) string       { return Join(UserTokens, id) }
func Chat(channel string) string       { return Join(Chats, channel) }
func ChatMessage(channel, id string) string {
	return Join(Chats, channel, id)
}

// Valid reports whether a single path segment is usable as a key. Topic
// wildcards and separators are rejected.
func Valid(segment string) bool {
	return segment != "" && !strings.ContainsAny(segment, "/+#")
}
