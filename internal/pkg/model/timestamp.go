package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a point in time that decodes from either epoch milliseconds
// (realtime records) or an RFC 3339 / ISO local date-time string (REST
// payloads). It always encodes as epoch milliseconds; the zero value encodes
// as null.
type Timestamp struct {
	time.Time
}

// At wraps t.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

// Millis builds a Timestamp from epoch milliseconds.
func Millis(ms int64) Timestamp { return Timestamp{Time: time.UnixMilli(ms)} }

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999", // java LocalDateTime
	"2006-01-02T15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range isoLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("timestamp: unrecognised value %q", s)
	}

	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}
