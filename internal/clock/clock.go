// Package clock provides the wall-clock source used to mint version ids,
// job ids and lifecycle timestamps, plus the ISO-8601 timestamp encoding
// shared by every persisted document.
package clock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Clock returns the current time.
//
// Production code uses System; tests substitute a deterministic clock so that
// ids, durations and timeouts can be asserted exactly.
type Clock interface {
	Now() time.Time
}

// System is the real UTC wall clock.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Layouts used for identifiers derived from time. Both sort lexicographically
// in time order.
const (
	idLayout = "20060102150405"
	isoBase  = "2006-01-02T15:04:05"
)

// Stamp formats t as a sortable id fragment with microsecond precision,
// e.g. "20261019083000123456".
func Stamp(t time.Time) string {
	t = t.UTC()
	return t.Format(idLayout) + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}

// Timestamp is a UTC instant persisted as a zone-less ISO-8601 string with
// microsecond precision ("2026-10-19T08:30:00.123456"). The fraction is
// omitted when it is zero.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to microseconds and normalises it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// String returns the ISO form.
func (ts Timestamp) String() string {
	t := ts.Time.UTC()
	if micros := t.Nanosecond() / 1000; micros != 0 {
		return t.Format(isoBase) + fmt.Sprintf(".%06d", micros)
	}
	return t.Format(isoBase)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// Parse reads an ISO timestamp with or without fractional seconds.
// A trailing zone offset is accepted and converted to UTC.
func Parse(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewTimestamp(t), nil
	}
	// Fractional seconds are accepted after the seconds field even though the
	// layout does not mention them.
	t, err := time.ParseInLocation(isoBase, s, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp: parse %q: %w", s, err)
	}
	return NewTimestamp(t), nil
}
