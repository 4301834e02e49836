package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindValidation},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
	}
	for _, tt := range tests {
		err := FromStatus("GET /x", tt.status, "m")
		assert.Equal(t, tt.want, err.Kind, "status %d", tt.status)
		assert.Equal(t, tt.status, err.Status)
	}
	assert.Nil(t, FromStatus("GET /x", http.StatusOK, ""))
}

func TestKindThroughWrapping(t *testing.T) {
	base := Wrap(KindNetwork, "GET /tracking/vehicles", errors.New("connection refused"))
	wrapped := fmt.Errorf("refresh: %w", base)

	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.True(t, IsNetwork(wrapped))
	assert.True(t, errors.Is(wrapped, ErrNetwork))
	assert.False(t, errors.Is(wrapped, ErrAuth))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestValidationMessage(t *testing.T) {
	err := Validation("register", map[string]string{"studentId": "required", "email": "required"})
	assert.True(t, IsValidation(err))
	assert.Equal(t, "register: validation: invalid input [email: required; studentId: required]", err.Error())
	assert.Equal(t, "invalid input", MessageOf(err, "x"))
	assert.Equal(t, "fallback", MessageOf(errors.New("raw"), "fallback"))
}
