package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*APIOptions)(nil)

// APIOptions configures the backend REST client.
type APIOptions struct {
	BaseURL string        `json:"base-url" mapstructure:"base-url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewAPIOptions() *APIOptions {
	return &APIOptions{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

func (o *APIOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if err := ValidateURL("api.base-url", o.BaseURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if o.Timeout <= 0 {
		errs = append(errs, errors.New("--api.timeout must be positive"))
	}
	return errs
}

func (o *APIOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, "api.base-url", o.BaseURL, "Base URL of the backend REST API.")
	fs.DurationVar(&o.Timeout, "api.timeout", o.Timeout, "Per-request timeout for REST calls.")
}
