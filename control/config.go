// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Process configuration: typed settings loaded from the environment and an
// optional YAML file, plus a thread-safe store with hot-reload propagation.

package control

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"
)

// Recognized environment variables.
const (
	EnvMapFile       = "MOC_MAPFILE"
	EnvOpportunist   = "MOC_OPPORTUNIST"
	EnvRetryInterval = "MOC_RETRY_INTERVAL"
	EnvMaxAttempts   = "MOC_MAX_ATTEMPTS"
	EnvMaxThreads    = "MOC_MAX_THREADS"
	EnvLogLevel      = "MOC_LOG_LEVEL"
	EnvRebind        = "MOC_REBIND"
	EnvConfigFile    = "MOC_CONFIG"
)

const (
	// DefaultMapFile is used when no table path is configured.
	DefaultMapFile = "moc.dat"
	// DefaultRetryInterval is the sleep between two claim scans.
	DefaultRetryInterval = time.Millisecond
	// DefaultMaxThreads bounds the per-thread record array.
	DefaultMaxThreads = 48
)

// Config holds the settings of one process taking part in core lending.
type Config struct {
	MapFile       string        `yaml:"mapfile"`
	Opportunist   bool          `yaml:"opportunist"`
	RetryInterval time.Duration `yaml:"retryInterval"`
	MaxAttempts   int           `yaml:"maxAttempts"` // 0 retries until success or finalization
	MaxThreads    int           `yaml:"maxThreads"`
	LogLevel      string        `yaml:"logLevel"`
	Rebind        bool          `yaml:"rebind"`
}

// DefaultConfig returns a primary-role configuration with package defaults.
func DefaultConfig() *Config {
	return &Config{
		MapFile:       DefaultMapFile,
		RetryInterval: DefaultRetryInterval,
		MaxThreads:    DefaultMaxThreads,
		LogLevel:      "info",
	}
}

// LoadConfig builds a Config from defaults, then the YAML file named by
// MOC_CONFIG (if any), then individual MOC_* variables. getenv is usually
// os.Getenv.
func LoadConfig(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if path := getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromEnv is LoadConfig over the process environment.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(os.Getenv)
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("control: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("control: parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvMapFile); v != "" {
		c.MapFile = v
	}
	if v, ok := lookup(getenv, EnvOpportunist); ok {
		c.Opportunist = parseRole(v)
	}
	if v, ok := lookup(getenv, EnvRetryInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("control: %s: %w", EnvRetryInterval, err)
		}
		c.RetryInterval = d
	}
	if v, ok := lookup(getenv, EnvMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("control: %s: %w", EnvMaxAttempts, err)
		}
		c.MaxAttempts = n
	}
	if v, ok := lookup(getenv, EnvMaxThreads); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("control: %s: %w", EnvMaxThreads, err)
		}
		c.MaxThreads = n
	}
	if v, ok := lookup(getenv, EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(getenv, EnvRebind); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("control: %s: %w", EnvRebind, err)
		}
		c.Rebind = b
	}
	return nil
}

func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	return v, v != ""
}

// parseRole follows atoi semantics: any non-zero leading integer selects the
// opportunist role; zero or non-numeric text selects primary.
func parseRole(v string) bool {
	end := 0
	for end < len(v) && (v[end] >= '0' && v[end] <= '9' || end == 0 && (v[end] == '-' || v[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(v[:end])
	return err == nil && n != 0
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.MapFile == "" {
		errs = append(errs, errors.New("mapfile must not be empty"))
	}
	if c.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("retryInterval must be > 0, got %s", c.RetryInterval))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("maxAttempts must be >= 0, got %d", c.MaxAttempts))
	}
	if c.MaxThreads < 1 {
		errs = append(errs, fmt.Errorf("maxThreads must be >= 1, got %d", c.MaxThreads))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to informational.
func (c *Config) Level() logiface.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return logiface.LevelInformational
	}
	return lvl
}

// ToMap renders the config for the dynamic store.
func (c *Config) ToMap() map[string]any {
	return map[string]any{
		"mapfile":       c.MapFile,
		"opportunist":   c.Opportunist,
		"retryInterval": c.RetryInterval,
		"maxAttempts":   c.MaxAttempts,
		"maxThreads":    c.MaxThreads,
		"logLevel":      c.LogLevel,
		"rebind":        c.Rebind,
	}
}

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns a single value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges new values and notifies listeners synchronously, after
// the lock is released.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
