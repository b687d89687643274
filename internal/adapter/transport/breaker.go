package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 60 * time.Second
	defaultCBInterval    time.Duration = 30 * time.Second
)

// Breaker wraps an AgentTransport with one circuit breaker per agent, so a
// failing agent fails fast without affecting calls to the others.
type Breaker struct {
	inner    domain.AgentTransport
	settings config.CircuitBreakerConfig
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

var _ domain.AgentTransport = (*Breaker)(nil)

// NewBreaker wraps inner. Zero-valued settings take defaults.
func NewBreaker(inner domain.AgentTransport, cfg config.CircuitBreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultCBMaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCBTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultCBInterval
	}
	return &Breaker{
		inner:    inner,
		settings: cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

func (b *Breaker) breaker(agent domain.AgentDescriptor) *gobreaker.CircuitBreaker[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[agent.ID]; ok {
		return cb
	}
	maxFailures := b.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "agent:" + agent.ID,
		MaxRequests: 1,
		Interval:    b.settings.Interval,
		Timeout:     b.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: countsAsSuccess,
	})
	b.breakers[agent.ID] = cb
	return cb
}

// countsAsSuccess keeps caller mistakes from tripping the breaker: 4xx
// replies and caller cancellation are not agent failures.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *domain.StatusError
	if errors.As(err, &se) {
		return se.StatusCode < 500
	}
	return false
}

// Post routes the call through agent's breaker.
func (b *Breaker) Post(ctx context.Context, agent domain.AgentDescriptor, body []byte) ([]byte, error) {
	out, err := b.breaker(agent).Execute(func() ([]byte, error) {
		return b.inner.Post(ctx, agent, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("agent %q: %w: %w", agent.ID, domain.ErrCircuitOpen, err)
	}
	return out, err
}

// States reports each known breaker's state keyed by agent ID.
func (b *Breaker) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]string, len(b.breakers))
	for id, cb := range b.breakers {
		out[id] = cb.State().String()
	}
	return out
}
