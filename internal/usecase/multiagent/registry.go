package multiagent

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"coral-agents/internal/domain"
)

// Registry maps each capability to the agent serving it. Registering a
// descriptor for a capability that already has one replaces it.
type Registry struct {
	mu     sync.RWMutex
	agents map[domain.Capability]domain.AgentDescriptor
	logger *slog.Logger
	bus    domain.EventBus
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryEventBus publishes agent.registered on every registration.
func WithRegistryEventBus(bus domain.EventBus) RegistryOption {
	return func(r *Registry) { r.bus = bus }
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		agents: make(map[domain.Capability]domain.AgentDescriptor),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or replaces the descriptor for d.Capability.
// The endpoint is the only field validated.
func (r *Registry) Register(d domain.AgentDescriptor) error {
	if strings.TrimSpace(d.Endpoint) == "" {
		return domain.NewSubSystemError("registry", "Registry.Register", domain.ErrInvalidInput,
			"empty endpoint for "+string(d.Capability))
	}
	if d.Status == "" {
		d.Status = domain.AgentActive
	}

	r.mu.Lock()
	_, replaced := r.agents[d.Capability]
	r.agents[d.Capability] = d
	r.mu.Unlock()

	r.logger.Info("agent registered",
		"agent_id", d.ID,
		"capability", string(d.Capability),
		"endpoint", d.Endpoint,
		"replaced", replaced,
	)
	if r.bus != nil {
		r.bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentRegistered, "", d))
	}
	return nil
}

// Get returns the descriptor serving c.
func (r *Registry) Get(c domain.Capability) (domain.AgentDescriptor, error) {
	r.mu.RLock()
	d, ok := r.agents[c]
	r.mu.RUnlock()
	if !ok {
		return domain.AgentDescriptor{}, &domain.AgentNotFoundError{Capability: c}
	}
	return d, nil
}

// List returns a sequence over the descriptors registered when List was
// called, ordered by capability. The sequence may be ranged over repeatedly.
func (r *Registry) List() iter.Seq[domain.AgentDescriptor] {
	r.mu.RLock()
	snapshot := slices.SortedFunc(maps.Values(r.agents), func(a, b domain.AgentDescriptor) int {
		return strings.Compare(string(a.Capability), string(b.Capability))
	})
	r.mu.RUnlock()

	return slices.Values(snapshot)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// DefaultDescriptors returns the four built-in agents served under
// <baseURL>/api/agents/<capability>.
func DefaultDescriptors(baseURL string) []domain.AgentDescriptor {
	base := strings.TrimRight(baseURL, "/")
	names := map[domain.Capability]string{
		domain.CapabilityPromptRefine: "Prompt Refiner",
		domain.CapabilityUIGen:        "UI Generator",
		domain.CapabilityErrorFlag:    "Error Flagger",
		domain.CapabilityCodeFix:      "Code Fixer",
	}

	out := make([]domain.AgentDescriptor, 0, len(names))
	for _, c := range domain.Capabilities() {
		out = append(out, domain.AgentDescriptor{
			ID:          string(c) + "-agent",
			DisplayName: names[c],
			Capability:  c,
			Endpoint:    base + "/api/agents/" + string(c),
			Status:      domain.AgentActive,
		})
	}
	return out
}

// RegisterAll registers each descriptor in order, stopping at the first error.
func (r *Registry) RegisterAll(ds []domain.AgentDescriptor) error {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
