package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"coral-agents/internal/domain"
	"coral-agents/internal/usecase/multiagent"
)

const maxBodyBytes = 1 << 20

// BreakerStates reports circuit breaker state per agent ID.
type BreakerStates interface {
	States() map[string]string
}

// HandlerDeps holds what the REST and RPC handlers need.
type HandlerDeps struct {
	Registry     *multiagent.Registry
	Router       *multiagent.Router
	Orchestrator *multiagent.Orchestrator
	Store        domain.ThreadStore
	Bus          domain.EventBus
	Breakers     BreakerStates // can be nil
	Logger       *slog.Logger
	Version      string
}

// OrchestrateRequest is the body of POST /api/orchestrate and workflow.run.
// UserRequest is passed through as is; the prompt-refine agent decides
// whether an empty one is acceptable.
type OrchestrateRequest struct {
	UserRequest string                `json:"userRequest"`
	Context     domain.RequestContext `json:"context"`
}

// RouteRequest is the body of POST /api/route and message.route.
// An empty ThreadID starts a new thread.
type RouteRequest struct {
	Capability string          `json:"capability"`
	ThreadID   string          `json:"threadId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// RouteResult is returned for a routed message.
type RouteResult struct {
	ThreadID  string          `json:"threadId"`
	MessageID string          `json:"messageId"`
	Response  domain.Response `json:"response"`
}

// ThreadResult is returned for a thread lookup.
type ThreadResult struct {
	ThreadID string           `json:"threadId"`
	Messages []domain.Message `json:"messages"`
}

// ThreadList is returned by GET /api/threads.
type ThreadList struct {
	Threads []string           `json:"threads"`
	Stats   domain.ThreadStats `json:"stats"`
}

func orchestrate(ctx context.Context, deps HandlerDeps, req OrchestrateRequest) (*domain.WorkflowResult, error) {
	return deps.Orchestrator.Orchestrate(ctx, req.UserRequest, req.Context)
}

func route(ctx context.Context, deps HandlerDeps, req RouteRequest) (*RouteResult, error) {
	c := domain.Capability(req.Capability)
	if !c.Valid() {
		return nil, &domain.AgentNotFoundError{Capability: c}
	}
	payload, err := domain.DecodePayload(c, req.Payload)
	if err != nil {
		return nil, domain.NewSubSystemError("router", "gateway.route", domain.ErrInvalidInput, err.Error())
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = multiagent.NewID()
	}
	msg := multiagent.NewMessage(threadID, payload)
	resp, err := deps.Router.Route(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &RouteResult{ThreadID: threadID, MessageID: msg.ID, Response: resp}, nil
}

func thread(ctx context.Context, deps HandlerDeps, id string) (*ThreadResult, error) {
	if id == "" {
		return nil, domain.NewDomainError("gateway.thread", domain.ErrInvalidInput, "empty thread id")
	}
	msgs, err := deps.Store.Thread(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ThreadResult{ThreadID: id, Messages: msgs}, nil
}

func agents(deps HandlerDeps) []domain.AgentDescriptor {
	return slices.Collect(deps.Registry.List())
}

// decodeBody reads a bounded JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// RegisterRESTHandlers mounts the REST API and returns the metrics fed by
// bus events.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	metrics := NewMetrics()
	if deps.Bus != nil {
		metrics.Subscribe(deps.Bus)
	}

	s.RegisterHTTPRoute("POST /api/orchestrate", func(w http.ResponseWriter, r *http.Request) {
		var req OrchestrateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		res, err := orchestrate(r.Context(), deps, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, res)
	})

	s.RegisterHTTPRoute("POST /api/route", func(w http.ResponseWriter, r *http.Request) {
		var req RouteRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		res, err := route(r.Context(), deps, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, res)
	})

	s.RegisterHTTPRoute("GET /api/agents", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, agents(deps))
	})

	s.RegisterHTTPRoute("GET /api/threads", func(w http.ResponseWriter, r *http.Request) {
		ids, err := deps.Store.Threads(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		stats, err := deps.Store.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, ThreadList{Threads: ids, Stats: stats})
	})

	s.RegisterHTTPRoute("GET /api/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		res, err := thread(r.Context(), deps, r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, res)
	})

	s.RegisterHTTPRoute("GET /api/v1/status", statusHandler(deps, metrics))
	s.RegisterHTTPRoute("GET /metrics", metricsHandler(deps, metrics))
	s.RegisterOpenRoute("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return metrics
}

// RegisterDefaultHandlers registers the RPC methods served over /ws.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("workflow.run", rpc(func(ctx context.Context, req OrchestrateRequest) (*domain.WorkflowResult, error) {
		return orchestrate(ctx, deps, req)
	}))
	s.RegisterHandler("message.route", rpc(func(ctx context.Context, req RouteRequest) (*RouteResult, error) {
		return route(ctx, deps, req)
	}))
	s.RegisterHandler("agent.list", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(agents(deps))
	})
	s.RegisterHandler("thread.get", rpc(func(ctx context.Context, req struct {
		ThreadID string `json:"threadId"`
	}) (*ThreadResult, error) {
		return thread(ctx, deps, req.ThreadID)
	}))
}

// rpc adapts a typed handler to an RPCHandler.
func rpc[Req, Resp any](fn func(context.Context, Req) (Resp, error)) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrRPCInvalidPayload, err)
			}
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
