package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lido-go/registry-reconciler/internal/constants"
	"gopkg.in/yaml.v3"
)

// Variant selects which flavour of the reconciliation engine a module runs (§4.6).
type Variant string

const (
	// VariantKeys refetches up to totalSigningKeys ("key-mirror" flavour).
	VariantKeys Variant = "keys"
	// VariantValidators refetches up to usedSigningKeys ("validator-mirror" flavour).
	VariantValidators Variant = "validators"
)

// Config holds all configuration for the registry reconciler.
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Update   UpdateConfig   `yaml:"update"`
	API      APIConfig      `yaml:"api"`
	Modules  []ModuleConfig `yaml:"modules"`
}

// RPCConfig holds execution-layer RPC client configuration.
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the relational store configuration.
type DatabaseConfig struct {
	// Path is a database/sql DSN, e.g. "file:./registry.db?_busy_timeout=5000"
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UpdateConfig holds update-loop tuning (§4.8).
type UpdateConfig struct {
	// IntervalMs is the period between update cycles.
	IntervalMs int64 `yaml:"interval_ms"`
	// TimeoutMs is the stall watchdog deadline, reset after every successful cycle.
	TimeoutMs int64 `yaml:"timeout_ms"`
	// OperatorBatchSize bounds getNodeOperator calls per JSON-RPC batch (§4.3).
	OperatorBatchSize int `yaml:"operator_batch_size"`
	// KeyBatchSize bounds getSigningKey calls per JSON-RPC batch (§4.4).
	KeyBatchSize int `yaml:"key_batch_size"`
	// RateLimitPerSecond and RateLimitBurst throttle outgoing RPC calls.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
}

// APIConfig holds the HTTP read-surface server configuration (§6).
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ModuleConfig names one tracked staking-module registry contract.
type ModuleConfig struct {
	// Enabled mirrors the registry-enabled flag of §6.
	Enabled bool `yaml:"enabled"`
	// Address is the on-chain contract address, as a hex string.
	Address string `yaml:"address"`
	// Variant selects the diff-policy flavour for this module (§4.6).
	Variant Variant `yaml:"variant"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration.
func (c *Config) SetDefaults() {
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultQueryTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Update.IntervalMs == 0 {
		c.Update.IntervalMs = constants.DefaultIntervalMs
	}
	if c.Update.TimeoutMs == 0 {
		c.Update.TimeoutMs = constants.DefaultUpdateTimeoutMs
	}
	if c.Update.OperatorBatchSize == 0 {
		c.Update.OperatorBatchSize = constants.DefaultOperatorBatchSize
	}
	if c.Update.KeyBatchSize == 0 {
		c.Update.KeyBatchSize = constants.DefaultKeyBatchSize
	}
	if c.Update.RateLimitPerSecond == 0 {
		c.Update.RateLimitPerSecond = constants.DefaultRPCRateLimit
	}
	if c.Update.RateLimitBurst == 0 {
		c.Update.RateLimitBurst = constants.DefaultRPCRateBurst
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}

	for i := range c.Modules {
		if c.Modules[i].Variant == "" {
			c.Modules[i].Variant = VariantKeys
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("REGISTRY_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if timeout := os.Getenv("REGISTRY_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid REGISTRY_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = duration
	}

	if path := os.Getenv("REGISTRY_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if level := os.Getenv("REGISTRY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("REGISTRY_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if interval := os.Getenv("REGISTRY_UPDATE_INTERVAL_MS"); interval != "" {
		val, err := strconv.ParseInt(interval, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REGISTRY_UPDATE_INTERVAL_MS: %w", err)
		}
		c.Update.IntervalMs = val
	}
	if timeout := os.Getenv("REGISTRY_UPDATE_TIMEOUT_MS"); timeout != "" {
		val, err := strconv.ParseInt(timeout, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REGISTRY_UPDATE_TIMEOUT_MS: %w", err)
		}
		c.Update.TimeoutMs = val
	}

	if enabled := os.Getenv("REGISTRY_API_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid REGISTRY_API_ENABLED: %w", err)
		}
		c.API.Enabled = val
	}
	if host := os.Getenv("REGISTRY_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("REGISTRY_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid REGISTRY_API_PORT: %w", err)
		}
		c.API.Port = val
	}

	if addrs := os.Getenv("REGISTRY_MODULE_ADDRESSES"); addrs != "" {
		c.Modules = nil
		for _, addr := range strings.Split(addrs, ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			c.Modules = append(c.Modules, ModuleConfig{
				Enabled: true,
				Address: addr,
				Variant: VariantKeys,
			})
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Update.IntervalMs <= 0 {
		return fmt.Errorf("update interval_ms must be positive")
	}
	if c.Update.TimeoutMs <= 0 {
		return fmt.Errorf("update timeout_ms must be positive")
	}
	if c.Update.OperatorBatchSize <= 0 {
		return fmt.Errorf("update operator_batch_size must be positive")
	}
	if c.Update.KeyBatchSize <= 0 {
		return fmt.Errorf("update key_batch_size must be positive")
	}

	if len(c.Modules) == 0 {
		return fmt.Errorf("at least one module must be configured")
	}
	for i, m := range c.Modules {
		if m.Address == "" {
			return fmt.Errorf("modules[%d]: address is required", i)
		}
		if m.Variant != VariantKeys && m.Variant != VariantValidators {
			return fmt.Errorf("modules[%d]: invalid variant %q", i, m.Variant)
		}
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
