package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coral-agents/internal/adapter/builtin"
	"coral-agents/internal/adapter/gateway"
	"coral-agents/internal/adapter/threadstore"
	"coral-agents/internal/adapter/transport"
	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
	"coral-agents/internal/infra/middleware"
	"coral-agents/internal/usecase/eventbus"
	"coral-agents/internal/usecase/multiagent"
)

// appRuntime is the wired core shared by every command.
type appRuntime struct {
	cfg          *config.Config
	log          *slog.Logger
	bus          *eventbus.Bus
	registry     *multiagent.Registry
	store        domain.ThreadStore
	breaker      *transport.Breaker // nil when circuit breaking is off
	router       *multiagent.Router
	orchestrator *multiagent.Orchestrator
	gateway      *gateway.Server
}

// initRuntime builds the event bus, registry, thread store, transport, router,
// orchestrator and gateway. Configured agents are registered immediately; the
// built-in agents are registered by startGateway once the listener is bound.
func initRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*appRuntime, func(), error) {
	rt := &appRuntime{cfg: cfg, log: log}

	rt.bus = eventbus.New(log)
	rt.registry = multiagent.NewRegistry(log, multiagent.WithRegistryEventBus(rt.bus))

	store, closeStore, err := threadstore.Open(cfg.Threads.Backend, cfg.Threads.Path)
	if err != nil {
		rt.bus.Close()
		return nil, nil, fmt.Errorf("thread store: %w", err)
	}
	rt.store = store
	cleanup := func() {
		rt.bus.Close()
		if err := closeStore(); err != nil {
			log.Warn("thread store close failed", "error", err)
		}
	}

	tokens := make(map[string]string)
	for _, a := range cfg.Agents {
		if a.Token != "" {
			tokens[agentID(a)] = a.Token
		}
	}
	var tr domain.AgentTransport = transport.NewHTTP(cfg.Router, transport.WithAgentTokens(tokens))
	if cfg.Router.CircuitBreaker.Enabled {
		rt.breaker = transport.NewBreaker(tr, cfg.Router.CircuitBreaker, log)
		tr = rt.breaker
	}

	rt.router = multiagent.NewRouter(rt.registry, rt.store, tr, log,
		multiagent.WithRouterEventBus(rt.bus),
		multiagent.WithCallTimeout(cfg.Router.Timeout),
	)
	rt.orchestrator = multiagent.NewOrchestrator(rt.router, log, multiagent.WithOrchestratorEventBus(rt.bus))

	if err := rt.registry.RegisterAll(configuredAgents(cfg)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("register agents: %w", err)
	}

	if err := rt.buildGateway(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return rt, cleanup, nil
}

func (rt *appRuntime) buildGateway(ctx context.Context) error {
	cfg := rt.cfg.Gateway
	opts := []gateway.ServerOption{gateway.WithShutdownTimeout(cfg.ShutdownTimeout)}
	if cfg.RateLimit.Enabled {
		opts = append(opts, gateway.WithRateLimiter(middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			BurstSize:      cfg.RateLimit.Burst,
			TrustedProxies: cfg.RateLimit.TrustedProxies,
		})))
	}
	rt.gateway = gateway.NewServer(rt.bus, gateway.NewAuthenticator(cfg.Auth), cfg.Addr, rt.log, opts...)

	if cfg.BuiltinAgents {
		agents, err := builtin.New(rt.log)
		if err != nil {
			return fmt.Errorf("builtin agents: %w", err)
		}
		agents.Register(rt.gateway.RegisterOpenRoute)
	}

	deps := gateway.HandlerDeps{
		Registry:     rt.registry,
		Router:       rt.router,
		Orchestrator: rt.orchestrator,
		Store:        rt.store,
		Bus:          rt.bus,
		Logger:       rt.log,
		Version:      version,
	}
	if rt.breaker != nil {
		deps.Breakers = rt.breaker
	}
	gateway.RegisterRESTHandlers(rt.gateway, deps)
	gateway.RegisterDefaultHandlers(rt.gateway, deps)
	return nil
}

// startGateway serves until ctx is done. It returns once the listener is
// bound and the built-in agents are registered; serve errors arrive on the
// returned channel.
func (rt *appRuntime) startGateway(ctx context.Context) (<-chan error, error) {
	errCh := make(chan error, 1)
	go func() { errCh <- rt.gateway.Start(ctx) }()

	select {
	case <-rt.gateway.Ready():
	case err := <-errCh:
		if err == nil {
			err = errors.New("gateway stopped before it was ready")
		}
		return nil, err
	}

	if rt.cfg.Gateway.BuiltinAgents {
		base := rt.cfg.Gateway.PublicURL
		if base == "" {
			base = config.GatewayConfig{Addr: rt.gateway.BoundAddr()}.BaseURL()
		}
		for _, d := range multiagent.DefaultDescriptors(base) {
			if _, err := rt.registry.Get(d.Capability); err == nil {
				continue // configured agent wins
			}
			if err := rt.registry.Register(d); err != nil {
				return nil, fmt.Errorf("register builtin %s: %w", d.Capability, err)
			}
		}
	}
	return errCh, nil
}

// configuredAgents converts the config's agent list to descriptors.
func configuredAgents(cfg *config.Config) []domain.AgentDescriptor {
	out := make([]domain.AgentDescriptor, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		status := domain.AgentState(a.Status)
		if status == "" {
			status = domain.AgentActive
		}
		out = append(out, domain.AgentDescriptor{
			ID:          agentID(a),
			DisplayName: a.Name,
			Capability:  domain.Capability(a.Capability),
			Endpoint:    a.Endpoint,
			Status:      status,
		})
	}
	return out
}

func agentID(a config.AgentConfig) string {
	if a.ID != "" {
		return a.ID
	}
	return a.Capability + "-agent"
}

// defaultDescriptors returns the built-in agents at the configured gateway URL.
func defaultDescriptors(cfg *config.Config) []domain.AgentDescriptor {
	return multiagent.DefaultDescriptors(cfg.Gateway.BaseURL())
}
