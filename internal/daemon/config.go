// Package daemon holds the long-running process configuration: where data
// lives, which backends to talk to, and the timing of the pollers.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/satoshipuzzles/lumaledger/internal/generation"
	"github.com/satoshipuzzles/lumaledger/internal/payments"
)

// Config is the full daemon configuration, loaded from
// ~/.lumaledger/config.toml. Missing file or missing keys fall back to
// DefaultConfig.
type Config struct {
	API        APIConfig        `toml:"api"`
	Store      StoreConfig      `toml:"store"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Payments   PaymentsConfig   `toml:"payments"`
	Generation GenerationConfig `toml:"generation"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// StoreConfig configures the SQLite data directory.
type StoreConfig struct {
	Path string `toml:"path"` // data directory; empty means <home>/data
}

// LedgerConfig configures the credit ledger.
type LedgerConfig struct {
	// Secret keys the integrity digest of persisted balance records.
	// Generated and stored on first run when empty.
	Secret string `toml:"secret"`
}

// PaymentsConfig configures the payment backend and invoice watching.
// Durations are strings ("5s", "10m") so the TOML stays readable.
type PaymentsConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
	PollInterval   string `toml:"poll_interval"`
	InvoiceTTL     string `toml:"invoice_ttl"`

	// Reconciler retry schedule: base_delay + attempt*delay_step.
	ReconcileAttempts  int    `toml:"reconcile_attempts"`
	ReconcileBaseDelay string `toml:"reconcile_base_delay"`
	ReconcileDelayStep string `toml:"reconcile_delay_step"`
}

// GenerationConfig configures the generation provider and job watching.
type GenerationConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
	PollInterval   string `toml:"poll_interval"`
	ProbeAttempts  int    `toml:"probe_attempts"`
	ProbeDelay     string `toml:"probe_delay"`

	// PriceCredits is debited per generation and refunded if the
	// submission or the job itself fails.
	PriceCredits int64 `toml:"price_credits"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8777,
			Metrics: true,
		},
		Store: StoreConfig{
			Path: "",
		},
		Payments: PaymentsConfig{
			RequestTimeout:     "10s",
			PollInterval:       "5s",
			InvoiceTTL:         "10m",
			ReconcileAttempts:  10,
			ReconcileBaseDelay: "1s",
			ReconcileDelayStep: "500ms",
		},
		Generation: GenerationConfig{
			RequestTimeout: "30s",
			PollInterval:   "2s",
			ProbeAttempts:  3,
			ProbeDelay:     "500ms",
			PriceCredits:   500,
		},
	}
}

// Load reads the config file under the home directory, applying defaults for
// anything unset. A missing file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(HomeDir(), "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// HomeDir returns the lumaledger home directory, honoring LUMALEDGER_HOME.
func HomeDir() string {
	if env := os.Getenv("LUMALEDGER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lumaledger")
}

// DataDir returns the directory holding the SQLite database.
func (c *Config) DataDir() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(HomeDir(), "data")
}

// PaymentPollerConfig converts the TOML timing strings into the payment
// poller's configuration.
func (c *Config) PaymentPollerConfig() payments.PollerConfig {
	def := payments.DefaultPollerConfig()
	return payments.PollerConfig{
		Interval:   parseDuration(c.Payments.PollInterval, def.Interval),
		InvoiceTTL: parseDuration(c.Payments.InvoiceTTL, def.InvoiceTTL),
	}
}

// ReconcilerConfig converts the TOML retry schedule into the reconciler's
// configuration.
func (c *Config) ReconcilerConfig() payments.ReconcilerConfig {
	def := payments.DefaultReconcilerConfig()
	cfg := payments.ReconcilerConfig{
		MaxAttempts: c.Payments.ReconcileAttempts,
		BaseDelay:   parseDuration(c.Payments.ReconcileBaseDelay, def.BaseDelay),
		DelayStep:   parseDuration(c.Payments.ReconcileDelayStep, def.DelayStep),
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return cfg
}

// GenerationPollerConfig converts the TOML timing strings into the
// generation poller's configuration.
func (c *Config) GenerationPollerConfig() generation.PollerConfig {
	def := generation.DefaultPollerConfig()
	cfg := generation.PollerConfig{
		Interval:      parseDuration(c.Generation.PollInterval, def.Interval),
		ProbeAttempts: c.Generation.ProbeAttempts,
		ProbeDelay:    parseDuration(c.Generation.ProbeDelay, def.ProbeDelay),
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = def.ProbeAttempts
	}
	return cfg
}

// PaymentTimeout returns the HTTP timeout for the payment backend client.
func (c *Config) PaymentTimeout() time.Duration {
	return parseDuration(c.Payments.RequestTimeout, 10*time.Second)
}

// GenerationTimeout returns the HTTP timeout for the generation client.
func (c *Config) GenerationTimeout() time.Duration {
	return parseDuration(c.Generation.RequestTimeout, 30*time.Second)
}

// parseDuration parses a duration string, falling back on empty or
// malformed input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
