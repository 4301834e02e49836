// Package gateway is the client's only I/O boundary: REST calls to the
// backend and reads/writes on the realtime database. It owns no state.
package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autopeer-io/campustrack/internal/realtime"
	"github.com/autopeer-io/campustrack/pkg/log"
)

// CredentialSource supplies the bearer credential at request time. An empty
// string means the request goes out unauthenticated.
type CredentialSource interface {
	Credential() string
}

// Config holds the REST settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Gateway struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client

	creds       CredentialSource
	onAuthError func(error)

	db      realtime.Database
	storage AttachmentStore

	now func() time.Time
	log log.Logger
}

type Option func(*Gateway)

// WithAuthErrorHandler registers fn to be told about every Auth failure of
// an authenticated request. The session store uses it to sign out.
func WithAuthErrorHandler(fn func(error)) Option {
	return func(g *Gateway) { g.onAuthError = fn }
}

// WithAttachmentStore enables report attachments.
func WithAttachmentStore(s AttachmentStore) Option {
	return func(g *Gateway) { g.storage = s }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.http = c }
}

// WithClock overrides time.Now for realtime timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a Gateway. db may be nil when only REST is needed.
func New(cfg Config, creds CredentialSource, db realtime.Database, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	g := &Gateway{
		base:    base,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		creds:   creds,
		db:      db,
		now:     time.Now,
		log:     log.WithName("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}
