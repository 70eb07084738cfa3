package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "bridge.db", cfg.Store.DSN)
	assert.Equal(t, 3600, cfg.Session.TTLSeconds)
	assert.Equal(t, 0, cfg.Session.MaxWorkflows)
	assert.Equal(t, 60, cfg.Session.SweepIntervalSeconds)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.False(t, cfg.TLS.Enable)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
store:
  driver: postgres
  dsn: postgres://localhost/bridge
session:
  ttl_seconds: 5
  max_workflows: 2
  sweep_interval_seconds: 1
openai:
  model: gpt-4o
  base_url: http://localhost:11434/v1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/bridge", cfg.Store.DSN)
	assert.Equal(t, 5*time.Second, cfg.SessionTTL())
	assert.Equal(t, 2, cfg.Session.MaxWorkflows)
	assert.Equal(t, time.Second, cfg.SweepInterval())
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.OpenAI.BaseURL)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BRIDGE_STORE_DSN", "/tmp/env-bridge.db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  dsn: file.db\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-bridge.db", cfg.Store.DSN)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
