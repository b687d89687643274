package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"coral-agents/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgents(cfg, ve)
	validateRouter(cfg, ve)
	validateThreads(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]int)
	for i, a := range cfg.Agents {
		c, err := domain.ParseCapability(a.Capability)
		if err != nil {
			ve.Add("agents[%d].capability %q is invalid (want: %s)", i, a.Capability, capabilityList())
			continue
		}
		if prev, dup := seen[string(c)]; dup {
			ve.Add("agents[%d]: capability %q already configured by agents[%d]", i, c, prev)
		}
		seen[string(c)] = i

		if a.Endpoint == "" {
			ve.Add("agents[%d].endpoint must not be empty", i)
		} else if u, err := url.Parse(a.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			ve.Add("agents[%d].endpoint %q must be an absolute http(s) URL", i, a.Endpoint)
		}
		if a.Status != "" && !domain.AgentState(a.Status).Valid() {
			ve.Add("agents[%d].status %q is invalid (want: active, inactive, error)", i, a.Status)
		}
	}
}

func validateRouter(cfg *Config, ve *ValidationError) {
	if cfg.Router.Timeout <= 0 {
		ve.Add("router.timeout must be > 0")
	}
	if cfg.Router.MaxResponseBytes <= 0 {
		ve.Add("router.max_response_bytes must be > 0")
	}
	cb := cfg.Router.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("router.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("router.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
	if cfg.Router.Pool.MaxIdleConns < 0 || cfg.Router.Pool.MaxIdleConnsPerHost < 0 || cfg.Router.Pool.MaxConnsPerHost < 0 {
		ve.Add("router.pool limits must not be negative")
	}
}

func validateThreads(cfg *Config, ve *ValidationError) {
	switch cfg.Threads.Backend {
	case "memory":
	case "sqlite":
		if cfg.Threads.Path == "" {
			ve.Add("threads.path is required for the sqlite backend")
		}
	default:
		ve.Add("threads.backend %q is invalid (want: memory, sqlite)", cfg.Threads.Backend)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr is required")
	} else if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
	}
	if g.PublicURL != "" {
		if u, err := url.Parse(g.PublicURL); err != nil || u.Host == "" {
			ve.Add("gateway.public_url %q is not an absolute URL", g.PublicURL)
		}
	}

	switch g.Auth.Type {
	case "", "none":
	case "static":
		if len(g.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range g.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q is invalid (want: none, static)", g.Auth.Type)
	}

	if g.RateLimit.Enabled {
		if g.RateLimit.RequestsPerMin <= 0 {
			ve.Add("gateway.rate_limit.requests_per_min must be > 0 when enabled")
		}
		if g.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0 when enabled")
		}
	}
	if len(cfg.Agents) == 0 && !g.BuiltinAgents {
		ve.Add("gateway.builtin_agents must be true when no agents are configured")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1]")
	}
}

func capabilityList() string {
	caps := domain.Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
