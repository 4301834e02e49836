package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
	OutputNone  = "none"
)

var _ IOptions = (*ViewOptions)(nil)

// ViewOptions configures how live data is rendered and how often pull
// resources are refreshed.
type ViewOptions struct {
	Output       string        `json:"output" mapstructure:"output"`
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
	// SnapshotTTL is how long the last good value of a resource is served
	// after its subscription stops updating.
	SnapshotTTL time.Duration `json:"snapshot-ttl" mapstructure:"snapshot-ttl"`
	// Chat lists the chat channels to follow.
	Chat []string `json:"chat" mapstructure:"chat"`
}

func NewViewOptions() *ViewOptions {
	return &ViewOptions{
		Output:       OutputTable,
		PollInterval: 30 * time.Second,
		SnapshotTTL:  5 * time.Minute,
	}
}

func (o *ViewOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	switch o.Output {
	case OutputTable, OutputJSON, OutputYAML, OutputNone:
	default:
		errs = append(errs, fmt.Errorf("--view.output: unknown format %q", o.Output))
	}
	if o.PollInterval <= 0 {
		errs = append(errs, errors.New("--view.poll-interval must be positive"))
	}
	if o.SnapshotTTL < o.PollInterval {
		errs = append(errs, errors.New("--view.snapshot-ttl must not be shorter than --view.poll-interval"))
	}
	return errs
}

func (o *ViewOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVarP(&o.Output, "view.output", "o", o.Output, "Render updates as table, json, yaml or none.")
	fs.DurationVar(&o.PollInterval, "view.poll-interval", o.PollInterval, "Refresh period of pulled resources (dashboard, tracking table).")
	fs.DurationVar(&o.SnapshotTTL, "view.snapshot-ttl", o.SnapshotTTL, "How long a last good value stays servable.")
	fs.StringSliceVar(&o.Chat, "view.chat", o.Chat, "Chat channels to follow.")
}
