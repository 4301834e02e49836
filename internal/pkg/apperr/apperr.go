// Package apperr defines the error taxonomy shared by the client core.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failure by how callers must react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a local pre-submit check or a 4xx rejection.
	KindValidation
	// KindAuth is a missing, expired or rejected credential. Forces logout.
	KindAuth
	KindNotFound
	// KindServer is a 5xx or otherwise broken backend response.
	KindServer
	// KindNetwork means the backend could not be reached.
	KindNetwork
	// KindCapability means the device lacks a required feature.
	KindCapability
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindCapability:
		return "capability"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Message is safe to show to a user.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	// Fields holds per-field messages for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s", k, e.Fields[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so errors.Is(err, apperr.ErrAuth) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrServer     = &Error{Kind: KindServer}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrCapability = &Error{Kind: KindCapability}
)

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation builds a validation error from per-field messages.
func Validation(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "invalid input", Fields: fields}
}

// FromStatus classifies an HTTP status. 2xx/3xx return nil.
func FromStatus(op string, status int, message string) *Error {
	var kind Kind
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindServer
	default:
		kind = KindValidation
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the user-facing message of err, or fallback.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

func IsAuth(err error) bool       { return KindOf(err) == KindAuth }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsNetwork(err error) bool    { return KindOf(err) == KindNetwork }
func IsServer(err error) bool     { return KindOf(err) == KindServer }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsCapability(err error) bool { return KindOf(err) == KindCapability }
