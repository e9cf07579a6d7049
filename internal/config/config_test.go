package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GESTORIA_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 60*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.LoginRatePerMinute)
	assert.False(t, cfg.Tenancy.AllowClientIDHeader)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gestoria.yaml")
	body := []byte(`
env: staging
auth:
  jwt_secret: from-file
  token_ttl: 30m
tenancy:
  allow_x_client_id_header: true
server:
  http_addr: ":9000"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("GESTORIA_CONFIG", path)
	t.Setenv("GESTORIA_HTTP_ADDR", ":9100")
	t.Setenv("GESTORIA_LOGIN_RATE_PER_MINUTE", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Tenancy.AllowClientIDHeader)
	assert.Equal(t, ":9100", cfg.Server.HTTPAddr)
	assert.Equal(t, 5, cfg.Auth.LoginRatePerMinute)
}

func TestValidateRequiresSecretOutsideDevelopment(t *testing.T) {
	cfg := Default()
	cfg.Env = "production"
	require.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "s3cr3t"
	require.NoError(t, cfg.Validate())

	cfg.Tenancy.AllowClientIDHeader = true
	require.Error(t, cfg.Validate())
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("GESTORIA_CONFIG", "")
	t.Setenv("GESTORIA_TOKEN_TTL", "forever")
	_, err := Load()
	require.Error(t, err)
}
