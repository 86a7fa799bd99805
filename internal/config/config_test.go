package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMustLoadPath(t *testing.T) {
	path := writeConfig(t, `
env: dev
http_server:
  address: ":9090"
database:
  driver: sqlite
  dsn: file.db
upload:
  chunk_size: 1048576
broker:
  pong_wait: 20s
auth:
  jwt_secret: s3cret
`)
	t.Setenv("DB_DSN", "override.db")

	cfg := MustLoadPath(path)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "override.db", cfg.Database.DSN, "environment wins over the file")
	assert.Equal(t, int64(1<<20), cfg.Upload.ChunkSize)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)

	assert.Equal(t, 20*time.Second, cfg.Broker.PongWait)
	assert.Equal(t, 18*time.Second, cfg.Broker.PingPeriod, "ping period follows pong wait")
	assert.Equal(t, 2*time.Minute, cfg.Broker.DisconnectGrace)
	assert.Equal(t, "fs", cfg.Storage.Driver)
	assert.Equal(t, "@hourly", cfg.Janitor.RoomCleanupSpec)
	assert.NotEmpty(t, cfg.Upload.AllowedMimeTypes)
	assert.NotEmpty(t, cfg.WebRTC.STUNServers)
}

func TestMustLoadPathMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoadPath(filepath.Join(t.TempDir(), "absent.yaml"))
	})
}
