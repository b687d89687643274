package multiagent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/tracer"
)

// Orchestrator runs the fixed workflow: refine the prompt, then generate the
// UI schema and flag errors concurrently, then fix code when anything was
// flagged. Each run gets its own thread.
type Orchestrator struct {
	router      *Router
	logger      *slog.Logger
	bus         domain.EventBus
	newThreadID func() string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorEventBus publishes workflow.* events.
func WithOrchestratorEventBus(bus domain.EventBus) OrchestratorOption {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithThreadIDFunc overrides thread ID generation.
func WithThreadIDFunc(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newThreadID = fn }
}

// NewOrchestrator creates an Orchestrator on top of router.
func NewOrchestrator(router *Router, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		router:      router,
		logger:      logger,
		newThreadID: NewID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate runs the workflow for userRequest. Any stage failure aborts the
// run with an *domain.OrchestrationError naming the stage; partial results
// are discarded.
func (o *Orchestrator) Orchestrate(ctx context.Context, userRequest string, rc domain.RequestContext) (*domain.WorkflowResult, error) {
	threadID := o.newThreadID()
	start := time.Now()

	ctx, span := tracer.StartSpan(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("thread_id", threadID),
		tracer.BoolAttr("has_code", rc.HasCode()),
	)

	o.emit(ctx, domain.EventWorkflowStarted, threadID, domain.WorkflowEvent{})
	o.logger.Info("workflow started", "thread_id", threadID, "has_code", rc.HasCode())

	fail := func(stage string, err error) (*domain.WorkflowResult, error) {
		oerr := &domain.OrchestrationError{Stage: stage, Err: err}
		o.logger.Error("workflow failed", "thread_id", threadID, "stage", stage, "error", err)
		o.emit(ctx, domain.EventWorkflowFailed, threadID, domain.WorkflowEvent{
			Stage:     stage,
			Error:     err.Error(),
			ElapsedMs: time.Since(start).Milliseconds(),
		})
		tracer.RecordError(span, oerr)
		return nil, oerr
	}

	// Stage 1: refine. No fallback to the raw request.
	refined, err := RouteAs[domain.PromptRefineResponse](ctx, o.router, NewMessage(threadID, domain.PromptRefinePayload{
		UserRequest: userRequest,
		Context:     rc,
	}))
	if err != nil {
		return fail(domain.StagePromptRefine, err)
	}

	// Stage 2: ui-gen and error-flag run together; the first failure cancels
	// the other and Wait returns only after both goroutines exit.
	var (
		ui    domain.UIGenResponse
		flags []domain.ErrorFlag
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := RouteAs[domain.UIGenResponse](gctx, o.router, NewMessage(threadID, domain.UIGenPayload{
			Prompt:   refined.Prompt,
			Metadata: rc.Metadata,
		}))
		if err != nil {
			return &domain.OrchestrationError{Stage: domain.StageUIGen, Err: err}
		}
		ui = resp
		return nil
	})
	g.Go(func() error {
		if !rc.HasCode() {
			return nil
		}
		resp, err := RouteAs[domain.ErrorFlagResponse](gctx, o.router, NewMessage(threadID, domain.ErrorFlagPayload{
			Code:     rc.Code,
			FilePath: rc.FilePath,
		}))
		if err != nil {
			return &domain.OrchestrationError{Stage: domain.StageErrorFlag, Err: err}
		}
		flags = resp.Flags
		return nil
	})
	if err := g.Wait(); err != nil {
		var oe *domain.OrchestrationError
		if errors.As(err, &oe) {
			return fail(oe.Stage, oe.Err)
		}
		return fail(domain.StageOf(err), err)
	}

	result := &domain.WorkflowResult{
		ThreadID:      threadID,
		RefinedPrompt: refined.Prompt,
		UISchema:      ui.Schema,
		Errors:        flags,
	}
	if result.Errors == nil {
		result.Errors = []domain.ErrorFlag{}
	}

	// Stage 3: fix only when something was flagged.
	if len(result.Errors) > 0 {
		fixed, err := RouteAs[domain.CodeFixResponse](ctx, o.router, NewMessage(threadID, domain.CodeFixPayload{
			FilePath: rc.FilePath,
			Code:     rc.Code,
			Errors:   result.Errors,
		}))
		if err != nil {
			return fail(domain.StageCodeFix, err)
		}
		result.Fixes = fixed.Fixes
		if result.Fixes == nil {
			result.Fixes = []domain.GeneratedFix{}
		}
	}

	elapsed := time.Since(start)
	o.logger.Info("workflow completed",
		"thread_id", threadID,
		"errors", len(result.Errors),
		"fixes", len(result.Fixes),
		"duration", elapsed,
	)
	o.emit(ctx, domain.EventWorkflowComplete, threadID, domain.WorkflowEvent{
		Errors:    len(result.Errors),
		Fixes:     len(result.Fixes),
		ElapsedMs: elapsed.Milliseconds(),
	})
	span.SetAttributes(tracer.IntAttr("errors", len(result.Errors)), tracer.IntAttr("fixes", len(result.Fixes)))
	tracer.SetOK(span)
	return result, nil
}

func (o *Orchestrator) emit(ctx context.Context, t domain.EventType, threadID string, payload domain.WorkflowEvent) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, domain.NewEvent(t, threadID, payload))
}
