package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a citizen-supplied point in time. It decodes from an ISO-like
// string or a number of epoch milliseconds and is always normalised to UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Accepted range: years 0001 through 9999, in epoch milliseconds.
const (
	minTimestampMillis = -62135596800000
	maxTimestampMillis = 253402300799999
)

// ParseTimestamp parses s using the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if ms := t.UnixMilli(); ms < minTimestampMillis || ms > maxTimestampMillis {
				return Timestamp{}, fmt.Errorf("date %q out of range", s)
			}
			return Timestamp{t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised date %q", s)
}

// UnmarshalJSON accepts a date string, epoch milliseconds, or null.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("unrecognised date %s", b)
	}
	if ms < minTimestampMillis || ms > maxTimestampMillis {
		return fmt.Errorf("date %s out of range", b)
	}
	*t = Timestamp{time.UnixMilli(int64(ms)).UTC()}
	return nil
}

// MarshalJSON encodes t as an RFC 3339 string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}
