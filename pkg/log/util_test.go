package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestToFields(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		in   []any
		keys []string
	}{
		{"empty", nil, nil},
		{"pairs", []any{"vehicle", "UNI-001", "speed", 25.5, "active", true}, []string{"vehicle", "speed", "active"}},
		{"bare error", []any{boom}, []string{"error"}},
		{"field passthrough", []any{zap.String("key", "vehicles:list"), "gen", uint64(3)}, []string{"key", "gen"}},
		{"unpaired tail", []any{"resource", "dashboard:stats", "dangling"}, []string{"resource", "arg#2"}},
		{"non-string key", []any{42, "value"}, []string{"invalid_key_1"}},
		{"duration and time", []any{"interval", 30 * time.Second, "at", time.Unix(0, 0)}, []string{"interval", "at"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.in...)
			got := make([]string, 0, len(fields))
			for _, f := range fields {
				got = append(got, f.Key)
			}
			if len(tt.keys) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.keys, got)
		})
	}
}

func TestTypedField(t *testing.T) {
	assert.Equal(t, zapcore.StringType, typedField("s", "x").Type)
	assert.Equal(t, zapcore.Float64Type, typedField("f", 1.5).Type)
	assert.Equal(t, zapcore.DurationType, typedField("d", time.Second).Type)
	assert.Equal(t, zapcore.ErrorType, typedField("e", errors.New("x")).Type)
}

func TestSetLevel(t *testing.T) {
	assert.False(t, SetLevel("loud"))
	assert.True(t, SetLevel("debug"))
}
