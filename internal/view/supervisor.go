package view

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
	"github.com/autopeer-io/campustrack/pkg/log"
)

// FallbackFunc writes what is shown in place of a view that failed to render.
type FallbackFunc func(w io.Writer, view string, err error)

// DefaultFallback prints a one-line notice.
func DefaultFallback(w io.Writer, view string, err error) {
	fmt.Fprintf(w, "== %s\n! Something went wrong while showing this view (%v). It will refresh with the next update.\n\n", view, err)
}

type SupervisorOption func(*Supervisor)

func WithFallback(fn FallbackFunc) SupervisorOption {
	return func(s *Supervisor) { s.fallback = fn }
}

// WithClock overrides time.Now for frame stamps, for tests.
func WithClock(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor renders frames one at a time. A renderer that errors or panics
// is contained: its partial output is discarded, the fallback is written
// instead, and the view recovers on its next successful render.
type Supervisor struct {
	renderer Renderer
	fallback FallbackFunc
	now      func() time.Time
	log      log.Logger

	mu     sync.Mutex
	out    io.Writer
	failed map[string]error
}

func NewSupervisor(r Renderer, out io.Writer, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		renderer: r,
		fallback: DefaultFallback,
		now:      time.Now,
		log:      log.WithName("view"),
		out:      out,
		failed:   make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render draws value as view. It reports whether the real view was shown.
func (s *Supervisor) Render(view string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	err := s.safeRender(&buf, Frame{View: view, At: s.now(), Data: value})
	if err == nil {
		delete(s.failed, view)
		if _, werr := s.out.Write(buf.Bytes()); werr != nil {
			s.log.Error(werr, "Failed to write view", "view", view)
		}
		return true
	}

	metrics.RenderFailuresTotal.WithLabelValues(view).Inc()
	s.log.Error(err, "Render failed, showing fallback", "view", view)
	s.failed[view] = err
	s.fallback(s.out, view, err)
	return false
}

// RenderError draws a notice for a resource whose update failed. The last
// good frame stays on screen above it.
func (s *Supervisor) RenderError(view string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "! %s: %v\n", view, err)
}

// Failed returns the error of a view currently showing its fallback, or nil.
func (s *Supervisor) Failed(view string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[view]
}

func (s *Supervisor) safeRender(w io.Writer, f Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()
	return s.renderer.Render(w, f)
}
