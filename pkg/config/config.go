package config

import (
	"fmt"
	"time"

	"github.com/workmesh/marketmirror/internal/common"
	"github.com/workmesh/marketmirror/internal/logger"
)

// Config is the complete configuration for the mirror.
type Config struct {
	// Poller contains the poll scheduler configuration
	Poller PollerConfig `yaml:"poller" json:"poller" toml:"poller"`

	// Ledger contains the ledger client configuration
	Ledger LedgerConfig `yaml:"ledger" json:"ledger" toml:"ledger"`

	// DB contains the state store database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Cache contains the read cache configuration
	Cache CacheConfig `yaml:"cache" json:"cache" toml:"cache"`

	// Contracts is the registry of monitored contract addresses, resolved once
	// at startup and injected into the poller and ledger client.
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the read-only query API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// PollerConfig configures the fetch-decode-reconcile cycle.
type PollerConfig struct {
	// Interval is the delay between poll cycles per monitored address
	Interval common.Duration `yaml:"interval" json:"interval" toml:"interval"`

	// FetchLimit is the maximum number of transactions fetched per cycle
	FetchLimit int `yaml:"fetch_limit" json:"fetch_limit" toml:"fetch_limit"`

	// MaxDeferralCycles bounds how many poll cycles an out-of-order event is
	// retried before it is escalated as a permanent error
	MaxDeferralCycles int `yaml:"max_deferral_cycles" json:"max_deferral_cycles" toml:"max_deferral_cycles"`

	// MaxBackoff caps the delay applied after consecutive failing cycles
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// PlatformFeeBps is the platform fee in basis points taken from escrow
	// payouts on completion
	PlatformFeeBps uint64 `yaml:"platform_fee_bps" json:"platform_fee_bps" toml:"platform_fee_bps"`
}

// ApplyDefaults sets default values for optional poller fields.
func (p *PollerConfig) ApplyDefaults() {
	if p.Interval.Duration == 0 {
		p.Interval = common.NewDuration(10 * time.Second)
	}
	if p.FetchLimit == 0 {
		p.FetchLimit = 100
	}
	if p.MaxDeferralCycles == 0 {
		p.MaxDeferralCycles = 10
	}
	if p.MaxBackoff.Duration == 0 {
		p.MaxBackoff = common.NewDuration(2 * time.Minute)
	}
	if p.PlatformFeeBps == 0 {
		p.PlatformFeeBps = 1000
	}
}

// LedgerConfig configures the ledger client boundary.
type LedgerConfig struct {
	// Endpoint is the base URL of the ledger transaction API
	Endpoint string `yaml:"endpoint" json:"endpoint" toml:"endpoint"`

	// RequestTimeout bounds a single fetch call; calls exceeding it are
	// treated as transient failures and retried
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// Retry contains retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional ledger fields.
func (l *LedgerConfig) ApplyDefaults() {
	if l.RequestTimeout.Duration == 0 {
		l.RequestTimeout = common.NewDuration(15 * time.Second)
	}
	if l.Retry != nil {
		l.Retry.ApplyDefaults()
	}
}

// RetryConfig represents retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the backoff duration before the first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second)
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents SQLite database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional database fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// CacheConfig configures the read-through cache.
type CacheConfig struct {
	// Size is the maximum number of cached entries
	Size int `yaml:"size" json:"size" toml:"size"`

	// TTL bounds how long an entry may be served before falling back to the
	// state store
	TTL common.Duration `yaml:"ttl" json:"ttl" toml:"ttl"`
}

// ApplyDefaults sets default values for optional cache fields.
func (c *CacheConfig) ApplyDefaults() {
	if c.Size == 0 {
		c.Size = 4096
	}
	if c.TTL.Duration == 0 {
		c.TTL = common.NewDuration(5 * time.Minute)
	}
}

// ContractConfig identifies one monitored contract address.
type ContractConfig struct {
	// Address is the ledger account address to poll
	Address string `yaml:"address" json:"address" toml:"address"`

	// StartSequence is the transaction sequence to start from when no cursor
	// has been persisted yet
	StartSequence uint64 `yaml:"start_sequence" json:"start_sequence" toml:"start_sequence"`
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels overrides the level for specific components
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, ok := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !ok {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, ok := common.AllComponents[common.ToLowerWithTrim(component)]; !ok {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}
		if _, ok := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !ok {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component, falling
// back to DefaultLevel.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP endpoint is active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" || m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// APIConfig configures the read-only query API server.
type APIConfig struct {
	// Enabled controls whether the API server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout, WriteTimeout, IdleTimeout map to http.Server timeouts
	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
}

// ApplyDefaults sets default values for optional API fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second)
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second)
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second)
	}
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Poller.ApplyDefaults()
	c.Ledger.ApplyDefaults()
	c.DB.ApplyDefaults()
	c.Cache.ApplyDefaults()

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger.endpoint is required")
	}

	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}

	switch c.DB.JournalMode {
	case "", "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY":
	default:
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	switch c.DB.Synchronous {
	case "", "FULL", "NORMAL", "OFF":
	default:
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if c.Poller.PlatformFeeBps > 10000 {
		return fmt.Errorf("poller.platform_fee_bps must not exceed 10000")
	}

	if len(c.Contracts) == 0 {
		return fmt.Errorf("at least one monitored contract must be configured")
	}

	seen := make(map[string]bool)
	for i, contract := range c.Contracts {
		if contract.Address == "" {
			return fmt.Errorf("contracts[%d]: address is required", i)
		}
		if seen[contract.Address] {
			return fmt.Errorf("contracts[%d]: duplicate address '%s'", i, contract.Address)
		}
		seen[contract.Address] = true
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
