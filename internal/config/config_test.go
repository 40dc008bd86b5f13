package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "elympics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	path := writeFile(t, `
server:
  addr: ":9000"
  proto: kcp
  ticks_per_second: 60
client:
  ping_interval: 500ms
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "kcp", cfg.Server.Proto)
	assert.Equal(t, 60, cfg.Server.TicksPerSecond)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.PingInterval)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Equal(t, Default().Server.MaxPlayers, cfg.Server.MaxPlayers)
	assert.Equal(t, Default().Client.BufferCapacity, cfg.Client.BufferCapacity)
	assert.Equal(t, 60, cfg.Tick().TicksPerSecond)
}

func TestLoad_EnvOverridesSecret(t *testing.T) {
	t.Setenv(EnvJWTSecret, "from-env")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	tests := []struct {
		name    string
		content string
	}{
		{"tick rate", "server:\n  ticks_per_second: 0\n"},
		{"capacity", "client:\n  buffer_capacity: 1\n"},
		{"prediction limit", "client:\n  buffer_capacity: 16\n  prediction_limit_ticks: 16\n"},
		{"proto", "server:\n  proto: quic\n"},
		{"syntax", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
