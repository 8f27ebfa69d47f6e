package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokman/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
log:
  level: debug
service:
  name: billing
server:
  addr: ":9090"
store:
  kind: redis
  redis:
    addr: "redis:6379"
    db: 2
tokens:
  ttl: 60s
  public_key_ttl: 1h
  old_key_ttl: 48h
  fetch_timeout: 2s
trusted_issuers:
  ledger:
    url: "http://ledger:8080/v1/keys"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "billing", cfg.Service.Name)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "redis", cfg.Store.Kind)
	require.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	require.Equal(t, 2, cfg.Store.Redis.DB)
	require.Equal(t, time.Minute, cfg.TokenTTL())
	require.Equal(t, time.Hour, cfg.PublicKeyTTL())
	require.Equal(t, 48*time.Hour, cfg.OldKeyTTL())
	require.Equal(t, 2*time.Second, cfg.FetchTimeout())
	require.Equal(t, "http://ledger:8080/v1/keys", cfg.TrustedIssuers["ledger"].URL)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
service:
  name: billing
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Store.Kind)
	require.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	require.Equal(t, time.Duration(0), cfg.TokenTTL())
	require.Equal(t, 24*time.Hour, cfg.PublicKeyTTL())
	require.Equal(t, 30*24*time.Hour, cfg.OldKeyTTL())
	require.Equal(t, 5*time.Second, cfg.FetchTimeout())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
service:
  name: from-file
server:
  addr: ":9090"
`)

	t.Setenv("TOKMAN_SERVICE_NAME", "from-env")
	t.Setenv("TOKMAN_LISTEN_ADDR", ":7070")
	t.Setenv("TOKMAN_STORE_KIND", "redis")
	t.Setenv("TOKMAN_TOKEN_TTL", "90s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Service.Name)
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, "redis", cfg.Store.Kind)
	require.Equal(t, 90*time.Second, cfg.TokenTTL())
}

func TestLoad_MissingServiceName(t *testing.T) {
	t.Setenv("TOKMAN_SERVICE_NAME", "")
	path := writeConfig(t, `
server:
  addr: ":9090"
`)
	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrMissingServiceName)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("TOKMAN_SERVICE_NAME", "billing")
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "billing", cfg.Service.Name)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	path := writeConfig(t, `
service:
  name: billing
tokens:
  fetch_timeout: not-a-duration
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.FetchTimeout())
}
