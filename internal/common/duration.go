package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can use human-readable values
// like "30s" or "1h30m" in YAML, JSON, and TOML alike.
type Duration struct {
	time.Duration
}

// NewDuration creates a Duration from a time.Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements encoding.TextUnmarshaler (used by YAML and TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalJSON accepts a quoted duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON renders the duration as a quoted string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}
