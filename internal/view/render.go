// Package view projects live resource values onto an output stream. A
// Renderer turns one value into text; the Supervisor runs renderers so a
// failing render is replaced by a fallback instead of taking the client
// down.
package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/campustrack/pkg/options"
)

// ErrUnsupported is returned by a renderer that has no projection for a value.
var ErrUnsupported = errors.New("no projection for value")

// Frame is one rendered update.
type Frame struct {
	View string    `json:"view" yaml:"view"`
	At   time.Time `json:"at" yaml:"at"`
	Data any       `json:"data" yaml:"data"`
}

// Renderer writes a frame to w.
type Renderer interface {
	Render(w io.Writer, f Frame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer, f Frame) error

func (fn RendererFunc) Render(w io.Writer, f Frame) error { return fn(w, f) }

// NewRenderer returns the renderer for an output format.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case options.OutputTable:
		return TableRenderer{}, nil
	case options.OutputJSON:
		return JSONRenderer{}, nil
	case options.OutputYAML:
		return YAMLRenderer{}, nil
	case options.OutputNone:
		return RendererFunc(func(io.Writer, Frame) error { return nil }), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONRenderer writes one JSON object per line.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, f Frame) error {
	return json.NewEncoder(w).Encode(f)
}

// YAMLRenderer writes one YAML document per frame.
type YAMLRenderer struct{}

func (YAMLRenderer) Render(w io.Writer, f Frame) error {
	// Go through JSON first so model types keep their wire names and
	// timestamps their epoch form.
	raw, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Frame{View: f.View, At: f.At, Data: data}); err != nil {
		return err
	}
	return enc.Close()
}
