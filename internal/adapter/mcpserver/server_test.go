package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coral-agents/internal/adapter/builtin"
	"coral-agents/internal/adapter/threadstore"
	"coral-agents/internal/adapter/transport"
	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
	"coral-agents/internal/usecase/multiagent"
)

func newClient(t *testing.T) (*client.Client, *threadstore.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	agents, err := builtin.New(logger)
	require.NoError(t, err)
	mux := http.NewServeMux()
	agents.Register(func(pattern string, h http.HandlerFunc) { mux.HandleFunc(pattern, h) })
	agentSrv := httptest.NewServer(mux)
	t.Cleanup(agentSrv.Close)

	registry := multiagent.NewRegistry(logger)
	require.NoError(t, registry.RegisterAll(multiagent.DefaultDescriptors(agentSrv.URL)))
	store := threadstore.NewMemory()
	router := multiagent.NewRouter(registry, store, transport.NewHTTP(config.RouterConfig{}), logger)

	s := New(Deps{
		Registry:     registry,
		Router:       router,
		Orchestrator: multiagent.NewOrchestrator(router, logger),
		Store:        store,
		Logger:       logger,
	}, "test")

	c, err := client.NewInProcessClient(s)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "test-client", Version: "1.0.0"}
	_, err = c.Initialize(ctx, init)
	require.NoError(t, err)
	return c, store
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestListTools(t *testing.T) {
	c, _ := newClient(t)
	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{toolOrchestrate, toolRoute, toolListAgents, toolGetThread}, names)
}

func TestOrchestrateTool(t *testing.T) {
	c, store := newClient(t)
	res := callTool(t, c, toolOrchestrate, map[string]any{
		"user_request": "Fix the login form",
		"code":         "var user = getUser();\nconsole.log(user);",
		"file_path":    "src/Login.js",
	})
	require.False(t, res.IsError, resultText(t, res))

	var wr domain.WorkflowResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &wr))
	assert.NotEmpty(t, wr.RefinedPrompt)
	assert.NotNil(t, wr.UISchema)
	assert.NotEmpty(t, wr.Errors)
	assert.NotEmpty(t, wr.Fixes)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Threads)
	assert.Equal(t, 4, stats.Messages)
}

func TestOrchestrateToolRequiresRequest(t *testing.T) {
	c, _ := newClient(t)
	res := callTool(t, c, toolOrchestrate, map[string]any{})
	assert.True(t, res.IsError)
}

func TestRouteAndGetThread(t *testing.T) {
	c, _ := newClient(t)
	res := callTool(t, c, toolRoute, map[string]any{
		"capability": "error-flag",
		"thread_id":  "th-1",
		"payload":    map[string]any{"code": "eval(input)"},
	})
	require.False(t, res.IsError, resultText(t, res))

	var rr struct {
		ThreadID string `json:"threadId"`
		Response struct {
			Errors []domain.ErrorFlag `json:"errors"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &rr))
	assert.Equal(t, "th-1", rr.ThreadID)
	require.NotEmpty(t, rr.Response.Errors)
	assert.Equal(t, domain.SeverityError, rr.Response.Errors[0].Severity)

	res = callTool(t, c, toolGetThread, map[string]any{"thread_id": "th-1"})
	require.False(t, res.IsError)
	var thread struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &thread))
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, domain.CapabilityErrorFlag, thread.Messages[0].Capability)
}

func TestRouteToolErrors(t *testing.T) {
	c, store := newClient(t)

	res := callTool(t, c, toolRoute, map[string]any{"capability": "translate", "payload": map[string]any{}})
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), string(domain.CodeAgentNotFound)))

	res = callTool(t, c, toolRoute, map[string]any{"capability": "ui-gen", "payload": "not an object"})
	assert.True(t, res.IsError)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Messages)
}

func TestListAgentsTool(t *testing.T) {
	c, _ := newClient(t)
	res := callTool(t, c, toolListAgents, nil)
	require.False(t, res.IsError)

	var agents []domain.AgentDescriptor
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &agents))
	assert.Len(t, agents, 4)
}
