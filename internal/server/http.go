// Package server runs the client's local endpoints: liveness and readiness
// probes, Prometheus metrics and a read-only view of the live snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
	"github.com/autopeer-io/campustrack/internal/subscription"
	"github.com/autopeer-io/campustrack/pkg/log"
	"github.com/autopeer-io/campustrack/pkg/options"
)

// Snapshots is the read side of the subscription manager.
type Snapshots interface {
	Snapshot(key subscription.Key) (value any, updatedAt time.Time, ok bool)
	Active() []subscription.Key
}

// Check reports nil when a dependency is ready.
type Check func() error

// HTTPServer serves the local endpoints.
type HTTPServer struct {
	server  *http.Server
	options *options.HttpOptions
	checks  map[string]Check
	snaps   Snapshots
}

type HTTPOption func(*HTTPServer)

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, c Check) HTTPOption {
	return func(s *HTTPServer) { s.checks[name] = c }
}

func NewHTTPServer(opts *options.HttpOptions, snaps Snapshots, hopts ...HTTPOption) *HTTPServer {
	s := &HTTPServer{
		options: opts,
		checks:  make(map[string]Check),
		snaps:   snaps,
	}
	for _, o := range hopts {
		o(s)
	}

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshots", s.listSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{key}", s.getSnapshot).Methods(http.MethodGet)
	return r
}

func (s *HTTPServer) readyz(w http.ResponseWriter, _ *http.Request) {
	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type snapshotResponse struct {
	Key       subscription.Key `json:"key"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Data      any              `json:"data"`
}

func (s *HTTPServer) listSnapshots(w http.ResponseWriter, _ *http.Request) {
	keys := s.snaps.Active()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *HTTPServer) getSnapshot(w http.ResponseWriter, r *http.Request) {
	key := subscription.Key(mux.Vars(r)["key"])
	value, at, ok := s.snaps.Snapshot(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no snapshot for " + string(key)})
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Key: key, UpdatedAt: at, Data: value})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "error", err.Error())
	}
}

func (s *HTTPServer) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "network", s.options.Network, "addr", s.server.Addr)

	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
