// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "CHATGATE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete chatgate configuration.
type Config struct {
	// Environment selects which override block applies.
	Environment Environment `yaml:"environment"`

	Listen     ListenConfig     `yaml:"listen"`
	Token      TokenConfig      `yaml:"token"`
	Revocation RevocationConfig `yaml:"revocation"`
	Store      StoreConfig      `yaml:"store"`
	Limits     LimitsConfig     `yaml:"limits"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`

	// QueueDepth is the per-connection outbound queue capacity.
	QueueDepth int `yaml:"queue_depth"`

	// MaxFrameBytes is the largest inbound frame accepted.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// Per-environment overrides. Each block has the same shape as the
	// top level and is decoded over it when Environment matches, so
	// only the keys present in the block change. An absent block has
	// Kind zero. These must stay yaml.Node values; yaml.v3 decodes a
	// mapping into a *yaml.Node as if it were an ordinary struct.
	Development yaml.Node `yaml:"development,omitempty"`
	Staging     yaml.Node `yaml:"staging,omitempty"`
	Production  yaml.Node `yaml:"production,omitempty"`
}

// ListenConfig configures the HTTP listener.
type ListenConfig struct {
	// Address is the TCP listen address, e.g. ":8080".
	Address string `yaml:"address"`

	// Prefix is the first path segment of the chat and admin routes.
	Prefix string `yaml:"prefix"`

	// ShutdownTimeout bounds graceful shutdown of the gateway and the
	// HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists Origin header values accepted on the chat
	// endpoint. Empty applies the same-origin check; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TokenConfig configures credential validation.
type TokenConfig struct {
	// Algorithm is the JWT alg every credential must carry.
	Algorithm string `yaml:"algorithm"`

	// Secret is the HMAC secret for HS* algorithms. Usually given as
	// ${VAR} so the secret stays out of the file.
	Secret string `yaml:"secret"`

	// KeyFile is a PEM public key for asymmetric algorithms, or a raw
	// secret file for HS*.
	KeyFile string `yaml:"key_file"`

	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	Skew     time.Duration `yaml:"skew"`
}

// RevocationConfig configures the revocation sources. Every source is
// optional.
type RevocationConfig struct {
	// File is a YAML revocation list reloaded on change.
	File string `yaml:"file"`

	// RedisURL and RedisKey name a Redis set of revoked identifiers.
	RedisURL     string        `yaml:"redis_url"`
	RedisKey     string        `yaml:"redis_key"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// CleanupInterval is how often expired entries are dropped.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// PushPublicKeyFile is a PEM Ed25519 public key. When set, signed
	// pushes are accepted at POST /<prefix>/admin/revocations.
	PushPublicKeyFile string `yaml:"push_public_key_file"`
}

// StoreConfig selects the thread store.
type StoreConfig struct {
	// Driver is sqlite, postgres, or memory.
	Driver string `yaml:"driver"`

	SQLitePath  string `yaml:"sqlite_path"`
	PoolSize    int    `yaml:"pool_size"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// SeedFile, when set, is applied to the store at startup.
	SeedFile string `yaml:"seed_file"`
}

// LimitsConfig is the per-connection rate limit.
type LimitsConfig struct {
	BurstMax  int `yaml:"burst_max"`
	MinuteMax int `yaml:"minute_max"`
}

// TimeoutsConfig holds the connection timers.
type TimeoutsConfig struct {
	Handshake         time.Duration `yaml:"handshake"`
	Idle              time.Duration `yaml:"idle"`
	Drain             time.Duration `yaml:"drain"`
	SlowConsumerGrace time.Duration `yaml:"slow_consumer_grace"`
	Write             time.Duration `yaml:"write"`
}

// Default returns the default configuration. The config file is still
// required; defaults only fill what it leaves out.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			Address:         ":8080",
			Prefix:          "v1",
			ShutdownTimeout: 10 * time.Second,
		},
		Token: TokenConfig{
			Algorithm: "HS256",
			Skew:      30 * time.Second,
		},
		Revocation: RevocationConfig{
			RedisKey:        "chatgate:revoked",
			PollInterval:    15 * time.Second,
			CleanupInterval: time.Minute,
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "chatgate.db",
		},
		Limits: LimitsConfig{
			BurstMax:  10,
			MinuteMax: 30,
		},
		Timeouts: TimeoutsConfig{
			Handshake:         5 * time.Second,
			Idle:              120 * time.Second,
			Drain:             2 * time.Second,
			SlowConsumerGrace: 5 * time.Second,
			Write:             10 * time.Second,
		},
		QueueDepth:    64,
		MaxFrameBytes: 64 << 10,
		LogLevel:      "info",
	}
}

// Load loads configuration from the file named by CHATGATE_CONFIG.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your chatgate.yaml config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults, applies
// the matching environment block, and expands ${VAR} references. It
// does not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides decodes the block for the configured
// environment over the base values.
func (c *Config) applyEnvironmentOverrides() error {
	var overrides yaml.Node
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	c.clearOverrides()
	if overrides.Kind == 0 {
		return nil
	}
	if overrides.Kind != yaml.MappingNode {
		return fmt.Errorf("config: %s overrides: must be a mapping", c.Environment)
	}

	environment := c.Environment
	if err := overrides.Decode(c); err != nil {
		return fmt.Errorf("config: %s overrides: %w", environment, err)
	}
	// An override block cannot switch environments or nest blocks.
	c.Environment = environment
	c.clearOverrides()
	return nil
}

func (c *Config) clearOverrides() {
	c.Development, c.Staging, c.Production = yaml.Node{}, yaml.Node{}, yaml.Node{}
}

// expandVariables expands ${VAR} and ${VAR:-default} in the fields
// that carry paths, addresses, and secrets.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Listen.Address,
		&c.Token.Secret,
		&c.Token.KeyFile,
		&c.Revocation.File,
		&c.Revocation.RedisURL,
		&c.Revocation.PushPublicKeyFile,
		&c.Store.SQLitePath,
		&c.Store.PostgresDSN,
		&c.Store.SeedFile,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Listen.Address == "" {
		errs = append(errs, errors.New("listen.address is required"))
	}
	if prefix := strings.Trim(c.Listen.Prefix, "/"); prefix == "" || strings.Contains(prefix, "/") {
		errs = append(errs, fmt.Errorf("listen.prefix must be a single path segment, got %q", c.Listen.Prefix))
	}

	if c.Token.Algorithm == "" {
		errs = append(errs, errors.New("token.algorithm is required"))
	}
	switch {
	case c.Token.Secret != "" && c.Token.KeyFile != "":
		errs = append(errs, errors.New("token.secret and token.key_file are mutually exclusive"))
	case c.Token.Secret == "" && c.Token.KeyFile == "":
		errs = append(errs, errors.New("token.secret or token.key_file is required"))
	case c.Token.Secret != "" && !strings.HasPrefix(c.Token.Algorithm, "HS"):
		errs = append(errs, fmt.Errorf("token.secret requires an HS algorithm, got %s", c.Token.Algorithm))
	}

	if c.Revocation.RedisURL != "" {
		if c.Revocation.RedisKey == "" {
			errs = append(errs, errors.New("revocation.redis_key is required with redis_url"))
		}
		if c.Revocation.PollInterval <= 0 {
			errs = append(errs, errors.New("revocation.poll_interval must be positive"))
		}
	}
	if c.Revocation.CleanupInterval <= 0 {
		errs = append(errs, errors.New("revocation.cleanup_interval must be positive"))
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be one of: %v",
			[]string{DriverSQLite, DriverPostgres, DriverMemory}))
	}

	if c.Limits.BurstMax <= 0 || c.Limits.MinuteMax <= 0 {
		errs = append(errs, errors.New("limits.burst_max and limits.minute_max must be positive"))
	}

	for name, value := range map[string]time.Duration{
		"timeouts.handshake":           c.Timeouts.Handshake,
		"timeouts.idle":                c.Timeouts.Idle,
		"timeouts.drain":               c.Timeouts.Drain,
		"timeouts.slow_consumer_grace": c.Timeouts.SlowConsumerGrace,
		"timeouts.write":               c.Timeouts.Write,
		"listen.shutdown_timeout":      c.Listen.ShutdownTimeout,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.QueueDepth <= 0 {
		errs = append(errs, errors.New("queue_depth must be positive"))
	}
	if c.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("max_frame_bytes must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// OriginAllowed reports whether origin may open a chat connection. It
// is only consulted when AllowedOrigins is non-empty.
func (c *Config) OriginAllowed(origin string) bool {
	return slices.Contains(c.Listen.AllowedOrigins, "*") || slices.Contains(c.Listen.AllowedOrigins, origin)
}
