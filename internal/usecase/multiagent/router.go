package multiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/tracer"
)

// DefaultCallTimeout bounds a single agent call when no timeout is configured.
const DefaultCallTimeout = 30 * time.Second

// Router resolves a message to its agent, records it in the thread log, and
// performs the agent call. Failed calls remain in the thread history.
type Router struct {
	registry  *Registry
	store     domain.ThreadStore
	transport domain.AgentTransport
	logger    *slog.Logger
	bus       domain.EventBus
	timeout   time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterEventBus publishes agent.routed and agent.call.failed events.
func WithRouterEventBus(bus domain.EventBus) RouterOption {
	return func(r *Router) { r.bus = bus }
}

// WithCallTimeout sets the per-call timeout. Non-positive values keep the default.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRouter creates a Router.
func NewRouter(registry *Registry, store domain.ThreadStore, transport domain.AgentTransport, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		registry:  registry,
		store:     store,
		transport: transport,
		logger:    logger,
		timeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewMessage builds a message for threadID with a fresh ID and the current time.
func NewMessage(threadID string, p domain.Payload) domain.Message {
	return domain.Message{
		ID:         NewID(),
		Capability: p.Capability(),
		Payload:    p,
		Timestamp:  time.Now().UTC(),
		ThreadID:   threadID,
	}
}

// Route delivers msg to the agent registered for its capability and returns
// the decoded response. An unknown capability fails before the thread store
// is touched; any later failure is an *domain.AgentCallError.
func (r *Router) Route(ctx context.Context, msg domain.Message) (domain.Response, error) {
	ctx, span := tracer.StartSpan(ctx, "router.route")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("capability", string(msg.Capability)),
		tracer.StringAttr("thread_id", msg.ThreadID),
	)

	if err := validateMessage(msg); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	agent, err := r.registry.Get(msg.Capability)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if err := r.store.Append(ctx, msg.ThreadID, msg); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("Router.Route", err)
	}
	thread, err := r.store.Thread(ctx, msg.ThreadID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("Router.Route", err)
	}
	span.SetAttributes(tracer.IntAttr("thread_len", len(thread)))

	start := time.Now()
	resp, err := r.call(ctx, agent, msg, thread)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Error("agent call failed",
			"agent_id", agent.ID,
			"capability", string(msg.Capability),
			"thread_id", msg.ThreadID,
			"message_id", msg.ID,
			"duration", elapsed,
			"error", err,
		)
		r.publish(ctx, domain.EventAgentCallFailed, msg, agent, elapsed, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	r.logger.Debug("message routed",
		"agent_id", agent.ID,
		"capability", string(msg.Capability),
		"thread_id", msg.ThreadID,
		"duration", elapsed,
	)
	r.publish(ctx, domain.EventAgentRouted, msg, agent, elapsed, nil)
	tracer.SetOK(span)
	return resp, nil
}

func (r *Router) call(ctx context.Context, agent domain.AgentDescriptor, msg domain.Message, thread []domain.Message) (domain.Response, error) {
	fail := func(err error) error {
		ce := &domain.AgentCallError{Agent: agent.ID, Endpoint: agent.Endpoint, Err: err}
		var se *domain.StatusError
		if errors.As(err, &se) {
			ce.StatusCode = se.StatusCode
		}
		return ce
	}

	body, err := json.Marshal(domain.AgentRequest{Message: msg, Thread: thread})
	if err != nil {
		return nil, fail(fmt.Errorf("encode request: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.transport.Post(callCtx, agent, body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", domain.ErrTimeout, r.timeout, err)
		}
		return nil, fail(err)
	}

	resp, err := domain.DecodeResponse(msg.Capability, raw)
	if err != nil {
		return nil, fail(fmt.Errorf("decode response: %w", err))
	}
	return resp, nil
}

func (r *Router) publish(ctx context.Context, t domain.EventType, msg domain.Message, agent domain.AgentDescriptor, elapsed time.Duration, err error) {
	if r.bus == nil {
		return
	}
	ev := domain.RoutedEvent{
		MessageID:  msg.ID,
		Capability: msg.Capability,
		Agent:      agent.ID,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.bus.Publish(ctx, domain.NewEvent(t, msg.ThreadID, ev))
}

func validateMessage(msg domain.Message) error {
	invalid := func(detail string) error {
		return domain.NewSubSystemError("router", "Router.Route", domain.ErrInvalidInput, detail)
	}
	switch {
	case msg.ThreadID == "":
		return invalid("empty thread id")
	case msg.Payload == nil:
		return invalid("nil payload")
	case msg.Payload.Capability() != msg.Capability:
		return invalid(fmt.Sprintf("payload for %s sent as %s", msg.Payload.Capability(), msg.Capability))
	}
	return nil
}

// RouteAs routes msg and asserts the response variant.
func RouteAs[T domain.Response](ctx context.Context, r *Router, msg domain.Message) (T, error) {
	var zero T
	resp, err := r.Route(ctx, msg)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("route %s: unexpected response %T", msg.Capability, resp)
	}
	return typed, nil
}
