// Package config loads the gateway configuration from the environment into a
// single typed value, applying defaults and validating once at startup.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"gateport/internal/constants"
)

const envPrefix = "GATEPORT_"

// Store backend selectors recognized by Config.Store.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
	StoreNone  = "none"
)

type Config struct {
	// Host is the address advertised to players in connection endpoints and
	// QR codes. It is not a bind address; listeners bind all interfaces.
	Host    string `env:"HOST" envDefault:"localhost"`
	APIPort int    `env:"API_PORT" envDefault:"8080"`

	// Candidate forwarding ports, half-open range [low, high).
	PortRangeLow  int `env:"PORT_RANGE_LOW" envDefault:"30000"`
	PortRangeHigh int `env:"PORT_RANGE_HIGH" envDefault:"40000"`

	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"30s"`

	CodeLength   int    `env:"CODE_LENGTH" envDefault:"8"`
	CodeAlphabet string `env:"CODE_ALPHABET" envDefault:"0123456789ABCDEF"`

	RequireApproval bool `env:"REQUIRE_APPROVAL" envDefault:"true"`

	BackendHost string        `env:"BACKEND_HOST" envDefault:"127.0.0.1"`
	BackendPort int           `env:"BACKEND_PORT" envDefault:"25565"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`

	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"15s"`

	// MaxSessionConns caps concurrent relayed clients per session; 0 disables.
	MaxSessionConns int `env:"MAX_SESSION_CONNS" envDefault:"0"`

	DataDir string `env:"DATA_DIR" envDefault:"data"`

	Store         string `env:"STORE" envDefault:"file"`
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	EnableTLS bool   `env:"ENABLE_TLS" envDefault:"false"`
	CertFile  string `env:"CERT_FILE" envDefault:"certs/server.crt"`
	KeyFile   string `env:"KEY_FILE" envDefault:"certs/server.key"`
}

// Load parses GATEPORT_* environment variables and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every field at its default value.
// Used by tests that need a valid baseline without touching the environment.
func Default() *Config {
	return &Config{
		Host:            "localhost",
		APIPort:         8080,
		PortRangeLow:    30000,
		PortRangeHigh:   40000,
		SessionTTL:      constants.SessionDuration,
		CleanupInterval: constants.CleanupInterval,
		CodeLength:      constants.DefaultCodeLength,
		CodeAlphabet:    constants.DefaultAlphabet,
		RequireApproval: true,
		BackendHost:     "127.0.0.1",
		BackendPort:     25565,
		DialTimeout:     constants.DialTimeout,
		ProbeInterval:   15 * time.Second,
		DataDir:         "data",
		Store:           StoreFile,
		RedisPort:       "6379",
		CertFile:        "certs/server.crt",
		KeyFile:         "certs/server.key",
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("config: host must not be empty")
	}
	if c.APIPort < constants.MinPort || c.APIPort > constants.MaxPort {
		return fmt.Errorf("config: api port %d out of range", c.APIPort)
	}
	if c.PortRangeLow < constants.MinPort || c.PortRangeLow > constants.MaxPort {
		return fmt.Errorf("config: port range low %d out of range", c.PortRangeLow)
	}
	if c.PortRangeHigh < constants.MinPort || c.PortRangeHigh > constants.MaxPort+1 {
		return fmt.Errorf("config: port range high %d out of range", c.PortRangeHigh)
	}
	if c.PortRangeLow >= c.PortRangeHigh {
		return fmt.Errorf("config: empty port range [%d, %d)", c.PortRangeLow, c.PortRangeHigh)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("config: cleanup interval must be positive")
	}
	if c.CodeLength < 4 {
		return fmt.Errorf("config: code length %d too short", c.CodeLength)
	}
	if len(c.CodeAlphabet) < 2 {
		return errors.New("config: code alphabet needs at least two characters")
	}
	seen := make(map[rune]bool, len(c.CodeAlphabet))
	for _, r := range c.CodeAlphabet {
		if seen[r] {
			return fmt.Errorf("config: code alphabet repeats %q", r)
		}
		seen[r] = true
	}
	if c.BackendHost == "" {
		return errors.New("config: backend host must not be empty")
	}
	if c.BackendPort < constants.MinPort || c.BackendPort > constants.MaxPort {
		return fmt.Errorf("config: backend port %d out of range", c.BackendPort)
	}
	if c.DialTimeout <= 0 {
		return errors.New("config: dial timeout must be positive")
	}
	if c.ProbeInterval <= 0 {
		return errors.New("config: probe interval must be positive")
	}
	if c.MaxSessionConns < 0 {
		return fmt.Errorf("config: max session conns %d must not be negative", c.MaxSessionConns)
	}
	switch c.Store {
	case StoreFile, StoreRedis, StoreNone:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	return nil
}

// BackendAddr returns the host:port of the protected backend service.
func (c *Config) BackendAddr() string {
	return net.JoinHostPort(c.BackendHost, strconv.Itoa(c.BackendPort))
}

// APIAddr returns the bind address for the HTTP API server.
func (c *Config) APIAddr() string {
	return fmt.Sprintf(":%d", c.APIPort)
}

// PoolSize returns the number of candidate forwarding ports.
func (c *Config) PoolSize() int {
	return c.PortRangeHigh - c.PortRangeLow
}
