package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
)

const (
	defaultMaxResponseBytes = 4 << 20
	maxErrorBodyBytes       = 512
	userAgent               = "coral-agents/1"
)

// HTTP posts agent requests as JSON over a pooled http.Client.
// Per-call deadlines come from the caller's context.
type HTTP struct {
	client  *http.Client
	maxBody int64
	tokens  map[string]string // agent ID -> bearer token
}

var _ domain.AgentTransport = (*HTTP)(nil)

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithClient replaces the pooled client.
func WithClient(c *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = c }
}

// WithAgentTokens sends a bearer token to the agents listed by ID.
func WithAgentTokens(tokens map[string]string) HTTPOption {
	return func(t *HTTP) { t.tokens = tokens }
}

// NewHTTP builds a transport from the router settings.
func NewHTTP(cfg config.RouterConfig, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		client:  &http.Client{Transport: NewPooledTransport(cfg.Pool)},
		maxBody: cfg.MaxResponseBytes,
	}
	if t.maxBody <= 0 {
		t.maxBody = defaultMaxResponseBytes
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Post sends body to agent.Endpoint. Non-2xx replies yield *domain.StatusError.
func (t *HTTP) Post(ctx context.Context, agent domain.AgentDescriptor, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Coral-Capability", string(agent.Capability))
	if tok := t.tokens[agent.ID]; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &domain.StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > t.maxBody {
		return nil, fmt.Errorf("response exceeds %d bytes: %w", t.maxBody, domain.ErrLimitReached)
	}
	return data, nil
}

// Default pool sizing: a handful of agent hosts, a few concurrent calls each.
const (
	defaultMaxIdleConns        = 50
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// NewPooledTransport returns an http.Transport sized by pool; zero fields
// take defaults and MaxConnsPerHost zero means unlimited.
func NewPooledTransport(pool config.PoolConfig) *http.Transport {
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxIdlePerHost,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     idleTimeout,
		ForceAttemptHTTP2:   true,
	}
}
