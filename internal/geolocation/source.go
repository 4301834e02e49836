package geolocation

import (
	"context"
	"math"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/pkg/log"
)

// WatchOptions are passed to the position source on every watch.
type WatchOptions struct {
	HighAccuracy bool
	// Timeout bounds a single fix.
	Timeout time.Duration
	// MaximumAge is the oldest cached fix the source may hand out.
	MaximumAge time.Duration
}

// Position is one fix from a Source.
type Position struct {
	Latitude   float64
	Longitude  float64
	Speed      float64 // km/h
	Accuracy   float64 // meters
	CapturedAt time.Time
}

// Source produces positions until the returned stop function is called or
// ctx ends.
type Source interface {
	Available() bool
	Watch(ctx context.Context, opts WatchOptions, fn func(Position), onErr func(error)) (stop func(), err error)
}

// Unavailable is a Source for devices without positioning.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Watch(context.Context, WatchOptions, func(Position), func(error)) (func(), error) {
	return nil, apperr.New(apperr.KindCapability, "watch position", "geolocation is not available on this device")
}

// Waypoint is a corner of a simulated route.
type Waypoint struct {
	Latitude  float64
	Longitude float64
}

// CampusLoop is the default simulated route, a loop around a campus.
var CampusLoop = []Waypoint{
	{Latitude: 23.7275, Longitude: 90.3957},
	{Latitude: 23.7301, Longitude: 90.3982},
	{Latitude: 23.7336, Longitude: 90.3969},
	{Latitude: 23.7329, Longitude: 90.3921},
	{Latitude: 23.7291, Longitude: 90.3914},
}

// Simulated walks a route of waypoints at a fixed speed, one fix per step.
// It is the development stand-in for a device GPS.
type Simulated struct {
	Route []Waypoint
	// Step is the time between fixes.
	Step time.Duration
	// SpeedKMH is the travel speed along the route.
	SpeedKMH float64
	Clock    clock.WithTicker
}

func NewSimulated(step time.Duration) *Simulated {
	return &Simulated{
		Route:    CampusLoop,
		Step:     step,
		SpeedKMH: 25,
		Clock:    clock.RealClock{},
	}
}

func (s *Simulated) Available() bool { return len(s.Route) > 1 && s.Step > 0 }

func (s *Simulated) Watch(ctx context.Context, opts WatchOptions, fn func(Position), onErr func(error)) (func(), error) {
	if !s.Available() {
		return nil, apperr.New(apperr.KindCapability, "watch position", "simulated route is empty")
	}

	accuracy := 50.0
	if opts.HighAccuracy {
		accuracy = 5
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := s.Clock.NewTicker(s.Step)
	walker := &routeWalker{route: s.Route}
	stepMeters := s.SpeedKMH * 1000 / 3600 * s.Step.Seconds()

	log.Info("[Geo-Sim] Simulated position source started", "waypoints", len(s.Route), "step", s.Step.String())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("[Geo-Sim] Simulated position source stopped")
				return
			case now := <-ticker.C():
				lat, lon := walker.advance(stepMeters)
				fn(Position{
					Latitude:   lat,
					Longitude:  lon,
					Speed:      s.SpeedKMH,
					Accuracy:   accuracy,
					CapturedAt: now,
				})
			}
		}
	}()
	return cancel, nil
}

// routeWalker tracks progress along a closed route.
type routeWalker struct {
	route []Waypoint
	leg   int     // index of the waypoint the current leg starts at
	done  float64 // meters covered on the current leg
}

func (w *routeWalker) advance(meters float64) (lat, lon float64) {
	// a route of identical points never moves
	for range 2 * len(w.route) {
		from := w.route[w.leg]
		to := w.route[(w.leg+1)%len(w.route)]
		length := haversine(from, to)
		if meters < length-w.done {
			w.done += meters
			f := w.done / length
			return from.Latitude + (to.Latitude-from.Latitude)*f,
				from.Longitude + (to.Longitude-from.Longitude)*f
		}
		meters -= length - w.done
		w.done = 0
		w.leg = (w.leg + 1) % len(w.route)
	}
	p := w.route[w.leg]
	return p.Latitude, p.Longitude
}

const earthRadius = 6371000.0 // meters

func haversine(a, b Waypoint) float64 {
	rad := math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * rad
	dLon := (b.Longitude - a.Longitude) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*rad)*math.Cos(b.Latitude*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(h))
}
