package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
ledger:
  endpoint: "http://localhost:8545"
db:
  path: "/tmp/mirror.db"
poller:
  interval: 5s
contracts:
  - address: "EQC0marketplace"
    start_sequence: 12
logging:
  default_level: debug
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, "config.yaml", validYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Ledger.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval.Duration)
	require.Len(t, cfg.Contracts, 1)
	assert.Equal(t, uint64(12), cfg.Contracts[0].StartSequence)

	// defaults applied
	assert.Equal(t, "WAL", cfg.DB.JournalMode)
	assert.Equal(t, 10, cfg.Poller.MaxDeferralCycles)
	assert.Equal(t, uint64(1000), cfg.Poller.PlatformFeeBps)
	assert.Equal(t, 4096, cfg.Cache.Size)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Duration)
}

func TestLoadFromJSON(t *testing.T) {
	content := `{
		"ledger": {"endpoint": "http://localhost:8545"},
		"db": {"path": "/tmp/mirror.db"},
		"contracts": [{"address": "EQC0marketplace"}]
	}`
	cfg, err := LoadFromFile(writeConfig(t, "config.json", content))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.Ledger.Endpoint)
}

func TestLoadFromTOML(t *testing.T) {
	content := `
[ledger]
endpoint = "http://localhost:8545"

[db]
path = "/tmp/mirror.db"

[[contracts]]
address = "EQC0marketplace"
`
	cfg, err := LoadFromFile(writeConfig(t, "config.toml", content))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mirror.db", cfg.DB.Path)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing endpoint",
			content: "db:\n  path: /tmp/x.db\ncontracts:\n  - address: a\n",
			errMsg:  "ledger.endpoint is required",
		},
		{
			name:    "missing db path",
			content: "ledger:\n  endpoint: http://x\ncontracts:\n  - address: a\n",
			errMsg:  "db.path is required",
		},
		{
			name:    "no contracts",
			content: "ledger:\n  endpoint: http://x\ndb:\n  path: /tmp/x.db\n",
			errMsg:  "at least one monitored contract",
		},
		{
			name: "duplicate contract",
			content: "ledger:\n  endpoint: http://x\ndb:\n  path: /tmp/x.db\n" +
				"contracts:\n  - address: a\n  - address: a\n",
			errMsg: "duplicate address",
		},
		{
			name: "unknown log component",
			content: "ledger:\n  endpoint: http://x\ndb:\n  path: /tmp/x.db\n" +
				"contracts:\n  - address: a\nlogging:\n  component_levels:\n    nosuch: debug\n",
			errMsg: "unknown component",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "config.ini", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}
