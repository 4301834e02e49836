// Package geolocation reports a driver's position while they are on duty.
// The Reporter is a two-state machine (stopped, tracking) around one
// position watch; samples are rate bounded and handed to a LocationSink
// without waiting for the result.
package geolocation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/time/rate"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	fsmutil "github.com/autopeer-io/campustrack/internal/pkg/util/fsm"
	"github.com/autopeer-io/campustrack/pkg/log"
)

const (
	StateStopped  = "stopped"
	StateTracking = "tracking"

	EventStart = "start"
	EventStop  = "stop"
)

const (
	DefaultMinInterval = 3 * time.Second
	DefaultTimeout     = 10 * time.Second
	DefaultMaximumAge  = 5 * time.Second
)

// LocationSink receives delivered samples. The gateway implements it.
type LocationSink interface {
	ReportLocation(ctx context.Context, sample model.LocationSample) error
}

type Option func(*Reporter)

// WithMinInterval bounds delivery to one sample per d.
func WithMinInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithWatchOptions replaces the options passed to the source.
func WithWatchOptions(opts WatchOptions) Option {
	return func(r *Reporter) { r.watchOpts = opts }
}

// WithClock overrides time.Now for rate limiting, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// Reporter streams the device position for one vehicle at a time.
type Reporter struct {
	source    Source
	sink      LocationSink
	watchOpts WatchOptions
	limiter   *rate.Limiter
	now       func() time.Time
	log       log.Logger

	fsm *fsm.FSM

	// mu serializes Start and Stop; the fields below change only under it.
	mu        sync.Mutex
	vehicleID string
	stopWatch func()
	cancel    context.CancelFunc
}

func NewReporter(source Source, sink LocationSink, opts ...Option) *Reporter {
	r := &Reporter{
		source: source,
		sink:   sink,
		watchOpts: WatchOptions{
			HighAccuracy: true,
			Timeout:      DefaultTimeout,
			MaximumAge:   DefaultMaximumAge,
		},
		limiter: rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		now:     time.Now,
		log:     log.WithName("geolocation"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.fsm = fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: EventStart, Src: []string{StateStopped}, Dst: StateTracking},
			{Name: EventStop, Src: []string{StateTracking}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"before_" + EventStart:   fsmutil.WrapEvent(r.guardStart),
			"leave_" + StateTracking: fsmutil.WrapEvent(r.actionLeaveTracking),
		},
	)
	return r
}

// State returns StateStopped or StateTracking.
func (r *Reporter) State() string { return r.fsm.Current() }

// VehicleID returns the vehicle being tracked, or "".
func (r *Reporter) VehicleID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vehicleID
}

// Start begins reporting for vehicleID. Tracking the same vehicle already is
// a no-op; tracking another one stops that watch first. Without a usable
// position source it fails with a capability error and stays stopped.
func (r *Reporter) Start(ctx context.Context, vehicleID string) error {
	if vehicleID == "" {
		return apperr.Validation("start tracking", map[string]string{"vehicleId": "Vehicle is required"})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fsm.Is(StateTracking) {
		if r.vehicleID == vehicleID {
			return nil
		}
		r.log.Info("Switching tracked vehicle", "from", r.vehicleID, "to", vehicleID)
		if err := r.fsm.Event(ctx, EventStop); fsmutil.IsRealError(err) {
			return err
		}
	}

	if err := r.fsm.Event(ctx, EventStart, vehicleID); fsmutil.IsRealError(err) {
		return fsmutil.Cause(err)
	}
	r.log.Info("Location reporting started", "vehicle", vehicleID)
	return nil
}

// Stop ends reporting. It is safe to call at any time.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.fsm.Is(StateTracking) {
		return
	}
	vid := r.vehicleID
	if err := r.fsm.Event(context.Background(), EventStop); fsmutil.IsRealError(err) {
		r.log.Error(err, "Failed to stop location reporting")
		return
	}
	r.log.Info("Location reporting stopped", "vehicle", vid)
}

// guardStart opens the position watch; a failure cancels the transition.
func (r *Reporter) guardStart(ctx context.Context, e *fsm.Event) error {
	if !r.source.Available() {
		return apperr.New(apperr.KindCapability, "start tracking", "geolocation is not available on this device")
	}
	vehicleID := e.Args[0].(string)

	// The watch outlives the Start call, so it hangs off a fresh context.
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop, err := r.source.Watch(watchCtx, r.watchOpts,
		func(p Position) { r.onPosition(watchCtx, vehicleID, p) },
		r.onSourceError,
	)
	if err != nil {
		cancel()
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Wrap(apperr.KindCapability, "start tracking", err)
		}
		return err
	}

	r.vehicleID = vehicleID
	r.stopWatch = stop
	r.cancel = cancel
	return nil
}

// actionLeaveTracking closes the watch before the machine settles in stopped.
func (r *Reporter) actionLeaveTracking(context.Context, *fsm.Event) error {
	if r.stopWatch != nil {
		r.stopWatch()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.vehicleID = ""
	r.stopWatch = nil
	r.cancel = nil
	return nil
}

func (r *Reporter) onPosition(ctx context.Context, vehicleID string, p Position) {
	if ctx.Err() != nil {
		return
	}
	if !r.limiter.AllowN(r.now(), 1) {
		metrics.LocationSamplesTotal.WithLabelValues("throttled").Inc()
		return
	}

	captured := p.CapturedAt
	if captured.IsZero() {
		captured = r.now()
	}
	sample := model.LocationSample{
		VehicleID:  vehicleID,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Speed:      p.Speed,
		Accuracy:   p.Accuracy,
		CapturedAt: captured,
	}

	go r.deliver(ctx, sample)
}

func (r *Reporter) deliver(ctx context.Context, sample model.LocationSample) {
	ctx, cancel := context.WithTimeout(ctx, r.deliveryTimeout())
	defer cancel()

	if err := r.sink.ReportLocation(ctx, sample); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.LocationSamplesTotal.WithLabelValues("failed").Inc()
		r.log.Warn("Location update failed", "vehicle", sample.VehicleID, "error", err.Error())
		return
	}
	metrics.LocationSamplesTotal.WithLabelValues("sent").Inc()
	r.log.Debug("Location update sent", "vehicle", sample.VehicleID, "lat", sample.Latitude, "lng", sample.Longitude)
}

func (r *Reporter) deliveryTimeout() time.Duration {
	if r.watchOpts.Timeout > 0 {
		return r.watchOpts.Timeout
	}
	return DefaultTimeout
}

func (r *Reporter) onSourceError(err error) {
	metrics.LocationSamplesTotal.WithLabelValues("source_error").Inc()
	r.log.Warn("Position error", "error", err.Error())
}
