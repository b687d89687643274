// Package mcpserver exposes the agent workflow as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"coral-agents/internal/domain"
	"coral-agents/internal/usecase/multiagent"
)

const (
	toolOrchestrate = "orchestrate"
	toolRoute       = "route"
	toolListAgents  = "list_agents"
	toolGetThread   = "get_thread"
)

// Deps are the core services the tools call into.
type Deps struct {
	Registry     *multiagent.Registry
	Router       *multiagent.Router
	Orchestrator *multiagent.Orchestrator
	Store        domain.ThreadStore
	Logger       *slog.Logger
}

type tools struct {
	deps Deps
}

// New builds an MCP server with the coral tools registered.
func New(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"coral-agents",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	t := &tools{deps: deps}

	s.AddTool(mcp.NewTool(toolOrchestrate,
		mcp.WithDescription("Run the full workflow: refine the request, generate a UI schema, flag errors in code and fix them"),
		mcp.WithString("user_request", mcp.Required(), mcp.Description("What the user wants built or fixed")),
		mcp.WithString("code", mcp.Description("Source code to check and fix")),
		mcp.WithString("file_path", mcp.Description("Path of the code file")),
		mcp.WithString("file_type", mcp.Description("File extension or language, e.g. tsx")),
		mcp.WithString("framework", mcp.Description("UI framework, e.g. react")),
	), t.orchestrate)

	s.AddTool(mcp.NewTool(toolRoute,
		mcp.WithDescription("Send one payload to the agent serving a capability"),
		mcp.WithString("capability", mcp.Required(),
			mcp.Enum(capabilityNames()...),
			mcp.Description("Target capability")),
		mcp.WithString("thread_id", mcp.Description("Thread to append to; a new one is created when empty")),
		mcp.WithObject("payload", mcp.Required(), mcp.Description("Capability payload, e.g. {\"code\": \"...\"} for error-flag")),
	), t.route)

	s.AddTool(mcp.NewTool(toolListAgents,
		mcp.WithDescription("List registered agents"),
	), t.listAgents)

	s.AddTool(mcp.NewTool(toolGetThread,
		mcp.WithDescription("Return the messages of a thread in order"),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread ID")),
	), t.getThread)

	return s
}

// Serve speaks MCP over in and out until ctx is cancelled.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func capabilityNames() []string {
	var names []string
	for _, c := range domain.Capabilities() {
		names = append(names, string(c))
	}
	return names
}

func (t *tools) orchestrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userRequest, err := req.RequireString("user_request")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rc := domain.RequestContext{
		Code:      req.GetString("code", ""),
		FilePath:  req.GetString("file_path", ""),
		FileType:  req.GetString("file_type", ""),
		Framework: req.GetString("framework", ""),
	}
	res, err := t.deps.Orchestrator.Orchestrate(ctx, userRequest, rc)
	if err != nil {
		return t.failure(toolOrchestrate, err), nil
	}
	return mcp.NewToolResultJSON(res)
}

// RouteResult is the route tool's structured output.
type RouteResult struct {
	ThreadID  string          `json:"threadId"`
	MessageID string          `json:"messageId"`
	Response  domain.Response `json:"response"`
}

func (t *tools) route(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("capability")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := domain.ParseCapability(name)
	if err != nil {
		return t.failure(toolRoute, &domain.AgentNotFoundError{Capability: domain.Capability(name)}), nil
	}

	raw, err := json.Marshal(req.GetArguments()["payload"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("payload: %v", err)), nil
	}
	payload, err := domain.DecodePayload(c, raw)
	if err != nil {
		return t.failure(toolRoute, domain.NewSubSystemError("router", "mcp.route", domain.ErrInvalidInput, err.Error())), nil
	}

	threadID := req.GetString("thread_id", "")
	if threadID == "" {
		threadID = multiagent.NewID()
	}
	msg := multiagent.NewMessage(threadID, payload)
	resp, err := t.deps.Router.Route(ctx, msg)
	if err != nil {
		return t.failure(toolRoute, err), nil
	}
	return mcp.NewToolResultJSON(RouteResult{ThreadID: threadID, MessageID: msg.ID, Response: resp})
}

func (t *tools) listAgents(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(slices.Collect(t.deps.Registry.List()))
}

func (t *tools) getThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := t.deps.Store.Thread(ctx, id)
	if err != nil {
		return t.failure(toolGetThread, err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{"threadId": id, "messages": msgs})
}

// failure reports err as a tool error carrying its machine-readable code.
func (t *tools) failure(tool string, err error) *mcp.CallToolResult {
	code := domain.ErrorCodeOf(err)
	t.deps.Logger.Warn("mcp tool failed", "tool", tool, "code", code, "error", err)
	text := fmt.Sprintf("%s: %v", code, err)
	if stage := domain.StageOf(err); stage != "" {
		text = fmt.Sprintf("%s (stage %s): %v", code, stage, err)
	}
	return mcp.NewToolResultError(text)
}
