package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: "250ms", expected: 250 * time.Millisecond},
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "complex duration", input: "1h30m45s", expected: 1*time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero duration", input: "0s", expected: 0},
		{name: "missing unit", input: "100", wantErr: true},
		{name: "invalid unit", input: "100x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration)
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	var cfg struct {
		Interval Duration `yaml:"interval"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("interval: 15s\n"), &cfg))
	assert.Equal(t, 15*time.Second, cfg.Interval.Duration)
}

func TestDuration_JSON(t *testing.T) {
	var cfg struct {
		Interval Duration `json:"interval"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"interval":"2m"}`), &cfg))
	assert.Equal(t, 2*time.Minute, cfg.Interval.Duration)

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"interval":"2m0s"}`, string(out))
}
