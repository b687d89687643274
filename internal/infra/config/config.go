package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coral-agents/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	// Agents overrides the built-in agent set. Empty means the four default
	// agents served by the gateway itself.
	Agents   []AgentConfig `yaml:"agents,omitempty"`
	Router   RouterConfig  `yaml:"router"`
	Threads  ThreadsConfig `yaml:"threads"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Logger   LoggerConfig  `yaml:"logger"`
	Tracer   TracerConfig  `yaml:"tracer"`
	Includes []string      `yaml:"includes,omitempty"`
}

// AgentConfig registers one remote agent.
type AgentConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Capability string `yaml:"capability"`
	Endpoint   string `yaml:"endpoint"`
	Status     string `yaml:"status,omitempty"`
	Token      string `yaml:"token,omitempty"` // sent as a bearer token; may be enc:
}

// RouterConfig holds agent call settings.
type RouterConfig struct {
	Timeout          time.Duration        `yaml:"timeout"`
	MaxResponseBytes int64                `yaml:"max_response_bytes"`
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuit_breaker"`
	Pool             PoolConfig           `yaml:"pool"`
}

// CircuitBreakerConfig holds per-agent circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for agent calls.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ThreadsConfig selects the thread store backend.
type ThreadsConfig struct {
	Backend string `yaml:"backend"` // "memory" or "sqlite"
	Path    string `yaml:"path"`    // sqlite database file
}

// GatewayConfig holds HTTP/WebSocket gateway settings.
type GatewayConfig struct {
	Addr            string          `yaml:"addr"`
	PublicURL       string          `yaml:"public_url,omitempty"` // base URL for default agents; derived from addr when empty
	BuiltinAgents   bool            `yaml:"builtin_agents"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Output      string  `yaml:"output"` // stdout exporter target: "stdout" or "stderr"
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns $HOME/.coral/data, or ./data without a home directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".coral", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Router: RouterConfig{
			Timeout:          30 * time.Second,
			MaxResponseBytes: 4 << 20,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     60 * time.Second,
				Interval:    30 * time.Second,
			},
			Pool: PoolConfig{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Threads: ThreadsConfig{
			Backend: "memory",
			Path:    filepath.Join(defaultDataDir(), "threads.db"),
		},
		Gateway: GatewayConfig{
			Addr:            "127.0.0.1:8080",
			BuiltinAgents:   true,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
			Output:   "stderr",
		},
	}
}

// BaseURL returns the URL the default agents are reached at.
func (g GatewayConfig) BaseURL() string {
	if g.PublicURL != "" {
		return strings.TrimRight(g.PublicURL, "/")
	}
	host := g.Addr
	if strings.HasPrefix(host, ":") || strings.HasPrefix(host, "0.0.0.0:") {
		host = "127.0.0.1:" + host[strings.LastIndex(host, ":")+1:]
	}
	return "http://" + host
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		ApplyEnvOverrides(cfg)
		if err := finish(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		set := newIncludeSet(absPath)
		if err := set.load(cfg, cfg.Includes, filepath.Dir(absPath), 0); err != nil {
			return nil, err
		}
		// Re-apply the main file so it wins over its includes.
		cfg.Agents = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Agents = set.mergeAgents(cfg.Agents)
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return fmt.Errorf("decrypt secrets: %w", err)
		}
	}
	return Validate(cfg)
}

// ApplyEnvOverrides maps CORAL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CORAL_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CORAL_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CORAL_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CORAL_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CORAL_ROUTER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Router.Timeout = d
		}
	}
	if v := os.Getenv("CORAL_ROUTER_CIRCUIT_BREAKER"); v != "" {
		cfg.Router.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("CORAL_THREADS_BACKEND"); v != "" {
		cfg.Threads.Backend = v
	}
	if v := os.Getenv("CORAL_THREADS_PATH"); v != "" {
		cfg.Threads.Path = v
	}
	if v := os.Getenv("CORAL_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("CORAL_GATEWAY_PUBLIC_URL"); v != "" {
		cfg.Gateway.PublicURL = v
	}
	if v := os.Getenv("CORAL_GATEWAY_BUILTIN_AGENTS"); v != "" {
		cfg.Gateway.BuiltinAgents = v == "true"
	}
	if v := os.Getenv("CORAL_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: v, Name: "env"})
	}
	if v := os.Getenv("CORAL_GATEWAY_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.RateLimit.Enabled = n > 0
			cfg.Gateway.RateLimit.RequestsPerMin = n
		}
	}
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return domain.NewSubSystemError("config", "config.permissions", domain.ErrPermissionDenied,
			fmt.Sprintf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode))
	}
	return nil
}
