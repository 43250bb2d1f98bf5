package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError string
		validate    func(*testing.T, *Config)
	}{
		{
			name: "full config",
			configFile: `
debug: true
rpc_url: "http://localhost:8899"
ws_url: "ws://localhost:8900"
log:
  level: debug
sentry:
  dsn: "https://key@sentry.example.com/1"
postgres:
  dsn: "postgres://ledger@localhost/ledger"
  max_conns: 20
clickhouse:
  dsn: "clickhouse://localhost:9000/ledger"
redis:
  addr: "localhost:6379"
  prefix: "pm"
nats:
  url: "nats://localhost:4222"
listener:
  queue_capacity: 500
backfill:
  enabled: false
reconciliation:
  interval: "1h"
  treasury_address: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
  tolerance: 0.05
leaderboard:
  interval: "30s"
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
				assert.Equal(t, "ws://localhost:8900", cfg.WSURL)
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "https://key@sentry.example.com/1", cfg.Sentry.DSN)
				assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
				assert.Equal(t, "clickhouse://localhost:9000/ledger", cfg.Clickhouse.DSN)
				assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
				assert.Equal(t, "pm", cfg.Redis.Prefix)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, 500, cfg.Listener.QueueCapacity)
				assert.False(t, cfg.Backfill.Enabled)
				assert.Equal(t, time.Hour, cfg.Reconciliation.Interval)
				assert.Equal(t, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", cfg.Reconciliation.TreasuryAddress)
				assert.InDelta(t, 0.05, cfg.Reconciliation.Tolerance, 1e-9)
				assert.Equal(t, 30*time.Second, cfg.Leaderboard.Interval)
			},
		},
		{
			name: "defaults",
			configFile: `
rpc_url: "http://localhost:8899"
ws_url: "ws://localhost:8900"
postgres:
  dsn: "postgres://ledger@localhost/ledger"
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Debug)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Equal(t, 100, cfg.Listener.QueueCapacity)
				assert.True(t, cfg.Backfill.Enabled)
				assert.Equal(t, 1000, cfg.Backfill.PageSize)
				assert.Equal(t, 5*time.Minute, cfg.Registry.RefreshInterval)
				assert.Equal(t, 24*time.Hour, cfg.Reconciliation.Interval)
				assert.Empty(t, cfg.Reconciliation.TreasuryAddress)
				assert.Equal(t, 4, cfg.Reconciliation.Workers)
				assert.InDelta(t, 0.01, cfg.Reconciliation.Tolerance, 1e-9)
				assert.Equal(t, 10*time.Minute, cfg.Leaderboard.Interval)
				assert.Equal(t, 3, cfg.Retry.MaxAttempts)
				assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialInterval)
				assert.Equal(t, 5*time.Second, cfg.Retry.MaxInterval)
				assert.Equal(t, ":9090", cfg.Metrics.Addr)
				assert.Empty(t, cfg.Redis.Addr)
				assert.Empty(t, cfg.NATS.URL)
				assert.Empty(t, cfg.Clickhouse.DSN)
			},
		},
		{
			name: "missing required keys",
			configFile: `
rpc_url: "http://localhost:8899"
`,
			expectError: "missing required config: ws_url, postgres.dsn",
		},
		{
			name: "non-positive queue capacity",
			configFile: `
rpc_url: "http://localhost:8899"
ws_url: "ws://localhost:8900"
postgres:
  dsn: "postgres://ledger@localhost/ledger"
listener:
  queue_capacity: 0
`,
			expectError: "listener.queue_capacity must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "config.yaml", tt.configFile)

			cfg, err := Load(path, dir)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	envDir := filepath.Join(dir, "env")
	require.NoError(t, os.MkdirAll(envDir, 0750))

	writeFile(t, envDir, ".env", `LEDGER_POSTGRES_DSN=postgres://env@db/ledger
LEDGER_RECONCILIATION_TREASURY_ADDRESS=treasury-from-env
LEDGER_LISTENER_QUEUE_CAPACITY=7
`)
	writeFile(t, envDir, ".env.local", "LEDGER_LISTENER_QUEUE_CAPACITY=9\n")
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_POSTGRES_DSN")
		os.Unsetenv("LEDGER_RECONCILIATION_TREASURY_ADDRESS")
		os.Unsetenv("LEDGER_LISTENER_QUEUE_CAPACITY")
	})

	path := writeFile(t, dir, "config.yaml", `
rpc_url: "http://localhost:8899"
ws_url: "ws://localhost:8900"
postgres:
  dsn: "postgres://file@localhost/ledger"
`)

	cfg, err := Load(path, envDir)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db/ledger", cfg.Postgres.DSN)
	assert.Equal(t, "treasury-from-env", cfg.Reconciliation.TreasuryAddress)
	assert.Equal(t, 9, cfg.Listener.QueueCapacity)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("LEDGER_RPC_URL", "http://rpc")
	t.Setenv("LEDGER_WS_URL", "ws://rpc")
	t.Setenv("LEDGER_POSTGRES_DSN", "postgres://env/ledger")
	t.Chdir(t.TempDir())

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://rpc", cfg.RPCURL)
	assert.Equal(t, 100, cfg.Listener.QueueCapacity)
}
