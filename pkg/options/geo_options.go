package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Position sources.
const (
	GeoSourceSimulated = "simulated"
	GeoSourceNone      = "none"
)

var _ IOptions = (*GeoOptions)(nil)

// GeoOptions configures driver location reporting.
type GeoOptions struct {
	// OnDuty starts reporting for VehicleID as soon as the driver is signed in.
	OnDuty    bool   `json:"on-duty" mapstructure:"on-duty"`
	VehicleID string `json:"vehicle-id" mapstructure:"vehicle-id"`

	Source string `json:"source" mapstructure:"source"`

	// MinInterval bounds how often samples are delivered.
	MinInterval  time.Duration `json:"min-interval" mapstructure:"min-interval"`
	HighAccuracy bool          `json:"high-accuracy" mapstructure:"high-accuracy"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	MaximumAge   time.Duration `json:"maximum-age" mapstructure:"maximum-age"`

	// SimulatedStep is the sampling period of the simulated source.
	SimulatedStep time.Duration `json:"simulated-step" mapstructure:"simulated-step"`
}

func NewGeoOptions() *GeoOptions {
	return &GeoOptions{
		Source:        GeoSourceSimulated,
		MinInterval:   3 * time.Second,
		HighAccuracy:  true,
		Timeout:       10 * time.Second,
		MaximumAge:    5 * time.Second,
		SimulatedStep: time.Second,
	}
}

func (o *GeoOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	switch o.Source {
	case GeoSourceSimulated, GeoSourceNone:
	default:
		errs = append(errs, fmt.Errorf("--geo.source: unknown source %q", o.Source))
	}
	if o.OnDuty && o.VehicleID == "" {
		errs = append(errs, errors.New("--geo.vehicle-id is required with --geo.on-duty"))
	}
	if o.MinInterval <= 0 {
		errs = append(errs, errors.New("--geo.min-interval must be positive"))
	}
	if o.Source == GeoSourceSimulated && o.SimulatedStep <= 0 {
		errs = append(errs, errors.New("--geo.simulated-step must be positive"))
	}
	return errs
}

func (o *GeoOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.OnDuty, "geo.on-duty", o.OnDuty, "Report the driver's location while signed in as a driver.")
	fs.StringVar(&o.VehicleID, "geo.vehicle-id", o.VehicleID, "Vehicle the driver is on duty for.")
	fs.StringVar(&o.Source, "geo.source", o.Source, "Position source: simulated or none.")
	fs.DurationVar(&o.MinInterval, "geo.min-interval", o.MinInterval, "Minimum time between delivered location samples.")
	fs.BoolVar(&o.HighAccuracy, "geo.high-accuracy", o.HighAccuracy, "Ask the position source for high accuracy fixes.")
	fs.DurationVar(&o.Timeout, "geo.timeout", o.Timeout, "Give up on a single fix after this long.")
	fs.DurationVar(&o.MaximumAge, "geo.maximum-age", o.MaximumAge, "Accept cached fixes up to this age.")
	fs.DurationVar(&o.SimulatedStep, "geo.simulated-step", o.SimulatedStep, "Sampling period of the simulated source.")
}
