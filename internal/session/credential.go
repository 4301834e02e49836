package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoCredential        = errors.New("no credential")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrExpiredCredential   = errors.New("credential expired")
)

// claims is the subset of the backend token the client reads.
type claims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role,omitempty"`
}

var parser = jwtlib.NewParser()

// decodeExpiry reads the exp claim of a bearer token without verifying its
// signature; the backend verifies. A token without exp yields the zero time.
func decodeExpiry(token string) (time.Time, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return time.Time{}, ErrNoCredential
	}

	c := &claims{}
	if _, _, err := parser.ParseUnverified(token, c); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if c.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return c.ExpiresAt.Time, nil
}

// checkCredential returns the expiry of token, or ErrExpiredCredential when
// it is already past at now.
func checkCredential(token string, now time.Time) (time.Time, error) {
	exp, err := decodeExpiry(token)
	if err != nil {
		return time.Time{}, err
	}
	if !exp.IsZero() && now.After(exp) {
		return exp, ErrExpiredCredential
	}
	return exp, nil
}
