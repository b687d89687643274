package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 30*time.Second, cfg.Router.Timeout)
	assert.Equal(t, "memory", cfg.Threads.Backend)
	assert.True(t, cfg.Gateway.BuiltinAgents)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Empty(t, cfg.Agents)
	require.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Gateway.Addr, cfg.Gateway.Addr)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
agents:
  - id: "refiner"
    name: "Remote Refiner"
    capability: "prompt-refine"
    endpoint: "https://refine.example.com/v1"
    token: "secret-token"
router:
  timeout: 12s
  circuit_breaker:
    enabled: true
    max_failures: 3
    timeout: 20s
threads:
  backend: "sqlite"
  path: "/var/lib/coral/threads.db"
gateway:
  addr: "0.0.0.0:9090"
  auth:
    type: "static"
    tokens:
      - token: "gw-token"
        name: "ci"
logger:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "prompt-refine", cfg.Agents[0].Capability)
	assert.Equal(t, "secret-token", cfg.Agents[0].Token)
	assert.Equal(t, 12*time.Second, cfg.Router.Timeout)
	assert.True(t, cfg.Router.CircuitBreaker.Enabled)
	assert.Equal(t, uint32(3), cfg.Router.CircuitBreaker.MaxFailures)
	assert.Equal(t, "sqlite", cfg.Threads.Backend)
	assert.Equal(t, "static", cfg.Gateway.Auth.Type)
	assert.Equal(t, "json", cfg.Logger.Format)
	// Unset nested fields keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.Router.Pool.IdleConnTimeout)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "logger:\n  level: info\n")
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
agents:
  - capability: "deploy"
    endpoint: "ftp://nope"
threads:
  backend: "redis"
`)

	_, err := Load(path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Errors), 2)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CORAL_LOGGER_LEVEL", "debug")
	t.Setenv("CORAL_ROUTER_TIMEOUT", "3s")
	t.Setenv("CORAL_THREADS_BACKEND", "sqlite")
	t.Setenv("CORAL_GATEWAY_ADDR", ":7000")
	t.Setenv("CORAL_GATEWAY_TOKEN", "env-token")
	t.Setenv("CORAL_GATEWAY_BUILTIN_AGENTS", "false")
	t.Setenv("CORAL_ROUTER_CIRCUIT_BREAKER", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3*time.Second, cfg.Router.Timeout)
	assert.Equal(t, "sqlite", cfg.Threads.Backend)
	assert.Equal(t, ":7000", cfg.Gateway.Addr)
	assert.Equal(t, "static", cfg.Gateway.Auth.Type)
	require.Len(t, cfg.Gateway.Auth.Tokens, 1)
	assert.Equal(t, "env-token", cfg.Gateway.Auth.Tokens[0].Token)
	assert.False(t, cfg.Gateway.BuiltinAgents)
	assert.True(t, cfg.Router.CircuitBreaker.Enabled)
}

func TestEnvOverrideBadDurationIgnored(t *testing.T) {
	t.Setenv("CORAL_ROUTER_TIMEOUT", "soon")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 30*time.Second, cfg.Router.Timeout)
}

func TestGatewayBaseURL(t *testing.T) {
	tests := []struct {
		gw   GatewayConfig
		want string
	}{
		{GatewayConfig{Addr: "127.0.0.1:8080"}, "http://127.0.0.1:8080"},
		{GatewayConfig{Addr: ":9000"}, "http://127.0.0.1:9000"},
		{GatewayConfig{Addr: "0.0.0.0:9000"}, "http://127.0.0.1:9000"},
		{GatewayConfig{Addr: ":9000", PublicURL: "https://coral.example.com/"}, "https://coral.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.gw.BaseURL(), "%+v", tt.gw)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("super-secret", "passphrase")
	require.NoError(t, err)
	assert.NotContains(t, enc, "super-secret")

	plain, err := DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "super-secret", plain)

	_, err = DecryptValue(enc, "wrong")
	assert.Error(t, err)
	_, err = DecryptValue("no-separator", "passphrase")
	assert.Error(t, err)
}

func TestLoadDecryptsSecrets(t *testing.T) {
	const pass = "test-passphrase"
	agentTok, err := EncryptSecret("agent-secret", pass)
	require.NoError(t, err)
	gwTok, err := EncryptSecret("gw-secret", pass)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(agentTok, "enc:"))

	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
agents:
  - id: "fixer"
    capability: "code-fix"
    endpoint: "http://fixer:8000/fix"
    token: "`+agentTok+`"
gateway:
  auth:
    type: static
    tokens:
      - name: ops
        token: "`+gwTok+`"
`)
	t.Setenv(PassphraseEnv, pass)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "agent-secret", cfg.Agents[0].Token)
	assert.Equal(t, "gw-secret", cfg.Gateway.Auth.Tokens[0].Token)
}
