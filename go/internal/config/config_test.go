package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrumscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsNeedSecret(t *testing.T) {
	_, err := Load("")
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("AUTH_DEV_MODE", "true")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.Auth.DevMode)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
port: 9000
app_base_url: https://poker.example.com/
store_driver: postgres
auth:
  jwt_secret: file-secret
  token_ttl: 2h
session:
  write_timeout: 3s
decks:
  - id: hours
    name: Hours
    cards: ["1", "2", "4", "8"]
`)
	t.Setenv("PORT", "9100")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "https://poker.example.com", cfg.AppBaseURL)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 3*time.Second, cfg.Session.WriteTimeout)
	require.Len(t, cfg.Decks, 1)
	assert.Equal(t, []string{"1", "2", "4", "8"}, cfg.Decks[0].Cards)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	_, err := Load(writeFile(t, "store_driver: sqlite\n"))
	assert.ErrorContains(t, err, "store_driver")

	_, err = Load(writeFile(t, "port: [\n"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestInvalidEnvKeepsValue(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PORT", "eighty")
	t.Setenv("TOKEN_TTL", "forever")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}
