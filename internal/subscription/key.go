package subscription

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/mqtt/paths"
)

// Key names a live resource, e.g. "vehicles:list" or "chat:general".
type Key string

// Mode is how a resource is kept fresh.
type Mode int

const (
	// Push resources are streamed by the realtime database.
	Push Mode = iota
	// Poll resources are re-fetched over REST on an interval.
	Poll
)

func (m Mode) String() string {
	if m == Poll {
		return "poll"
	}
	return "push"
}

// Resource kinds.
const (
	KindVehicles         = "vehicles"
	KindVehicleLocation  = "vehicle:location"
	KindNotifications    = "notifications"
	KindChat             = "chat"
	KindDashboardStats   = "dashboard"
	KindTrackingVehicles = "tracking"
)

const (
	VehiclesList     Key = "vehicles:list"
	DashboardStats   Key = "dashboard:stats"
	TrackingVehicles Key = "tracking:vehicles"
)

func VehicleLocation(vehicleID string) Key { return Key("vehicle:location:" + vehicleID) }
func Notifications(userID string) Key      { return Key("notifications:" + userID) }
func Chat(channelID string) Key            { return Key("chat:" + channelID) }

// resource is a parsed Key.
type resource struct {
	kind string
	mode Mode
	// arg is the vehicle, user or channel id.
	arg string
}

func parseKey(key Key) (resource, error) {
	s := string(key)
	switch key {
	case VehiclesList:
		return resource{kind: KindVehicles, mode: Push}, nil
	case DashboardStats:
		return resource{kind: KindDashboardStats, mode: Poll}, nil
	case TrackingVehicles:
		return resource{kind: KindTrackingVehicles, mode: Poll}, nil
	}

	for _, p := range []struct {
		prefix string
		kind   string
	}{
		{"vehicle:location:", KindVehicleLocation},
		{"notifications:", KindNotifications},
		{"chat:", KindChat},
	} {
		if arg, ok := strings.CutPrefix(s, p.prefix); ok {
			if !paths.Valid(arg) || strings.Contains(arg, ":") {
				break
			}
			return resource{kind: p.kind, mode: Push, arg: arg}, nil
		}
	}
	return resource{}, apperr.New(apperr.KindValidation, "subscribe", fmt.Sprintf("unknown resource key %q", s))
}
