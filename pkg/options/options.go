// Package options holds the configurable components of campustrack. Each
// component owns its defaults, flag registration and validation.
package options

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option component.
type IOptions interface {
	// Validate checks the component and returns every problem found.
	Validate() []error

	// AddFlags registers the component's flags on fs.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks a host:port listen address.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	if host != "" && net.ParseIP(host) == nil && host != "localhost" {
		return fmt.Errorf("%q is not a valid IP address or localhost", host)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port", port)
	}
	return nil
}

// ValidateURL checks that raw is an absolute URL with one of schemes.
func ValidateURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("--%s: %w", name, err)
	}
	if u.Host == "" && u.Opaque == "" {
		return fmt.Errorf("--%s: %q is not an absolute URL", name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("--%s: unsupported scheme %q", name, u.Scheme)
}
