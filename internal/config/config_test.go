package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateport/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 30000, cfg.PortRangeLow)
	assert.Equal(t, 40000, cfg.PortRangeHigh)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.Equal(t, 8, cfg.CodeLength)
	assert.Equal(t, "0123456789ABCDEF", cfg.CodeAlphabet)
	assert.True(t, cfg.RequireApproval)
	assert.Equal(t, "127.0.0.1:25565", cfg.BackendAddr())
	assert.Equal(t, ":8080", cfg.APIAddr())
	assert.Equal(t, config.StoreFile, cfg.Store)
	assert.Equal(t, 10000, cfg.PoolSize())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GATEPORT_HOST", "play.example.com")
	t.Setenv("GATEPORT_PORT_RANGE_LOW", "20000")
	t.Setenv("GATEPORT_PORT_RANGE_HIGH", "20010")
	t.Setenv("GATEPORT_SESSION_TTL", "15m")
	t.Setenv("GATEPORT_REQUIRE_APPROVAL", "false")
	t.Setenv("GATEPORT_BACKEND_PORT", "19132")
	t.Setenv("GATEPORT_STORE", "none")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "play.example.com", cfg.Host)
	assert.Equal(t, 20000, cfg.PortRangeLow)
	assert.Equal(t, 20010, cfg.PortRangeHigh)
	assert.Equal(t, 10, cfg.PoolSize())
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.RequireApproval)
	assert.Equal(t, "127.0.0.1:19132", cfg.BackendAddr())
	assert.Equal(t, config.StoreNone, cfg.Store)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("GATEPORT_PORT_RANGE_LOW", "40000")
	t.Setenv("GATEPORT_PORT_RANGE_HIGH", "30000")

	_, err := config.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *config.Config) {},
		},
		{
			name:   "empty host",
			mutate: func(c *config.Config) { c.Host = "" },
			want:   "host",
		},
		{
			name:   "api port out of range",
			mutate: func(c *config.Config) { c.APIPort = 0 },
			want:   "api port",
		},
		{
			name:   "range low above high",
			mutate: func(c *config.Config) { c.PortRangeLow, c.PortRangeHigh = 40000, 30000 },
			want:   "port range",
		},
		{
			name:   "empty range",
			mutate: func(c *config.Config) { c.PortRangeLow, c.PortRangeHigh = 30000, 30000 },
			want:   "empty port range",
		},
		{
			name:   "zero ttl",
			mutate: func(c *config.Config) { c.SessionTTL = 0 },
			want:   "session ttl",
		},
		{
			name:   "negative cleanup interval",
			mutate: func(c *config.Config) { c.CleanupInterval = -time.Second },
			want:   "cleanup interval",
		},
		{
			name:   "code too short",
			mutate: func(c *config.Config) { c.CodeLength = 2 },
			want:   "code length",
		},
		{
			name:   "alphabet with duplicates",
			mutate: func(c *config.Config) { c.CodeAlphabet = "AAB" },
			want:   "alphabet",
		},
		{
			name:   "backend port out of range",
			mutate: func(c *config.Config) { c.BackendPort = 70000 },
			want:   "backend port",
		},
		{
			name:   "negative max session conns",
			mutate: func(c *config.Config) { c.MaxSessionConns = -1 },
			want:   "max session conns",
		},
		{
			name:   "unknown store",
			mutate: func(c *config.Config) { c.Store = "etcd" },
			want:   "unknown store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPortRangeIsHalfOpen(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.PortRangeLow = 65535
	cfg.PortRangeHigh = 65536

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.PoolSize())
}
