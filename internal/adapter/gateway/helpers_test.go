package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coral-agents/internal/adapter/builtin"
	"coral-agents/internal/adapter/threadstore"
	"coral-agents/internal/adapter/transport"
	"coral-agents/internal/infra/config"
	"coral-agents/internal/usecase/eventbus"
	"coral-agents/internal/usecase/multiagent"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type testStack struct {
	srv  *Server
	deps HandlerDeps
	base string
}

// startStack runs a gateway with the builtin agents mounted and the default
// registry pointing back at it.
func startStack(t *testing.T, auth Authenticator) *testStack {
	t.Helper()
	logger := testLogger()
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	registry := multiagent.NewRegistry(logger, multiagent.WithRegistryEventBus(bus))
	store := threadstore.NewMemory()
	breaker := transport.NewBreaker(transport.NewHTTP(config.RouterConfig{}), config.CircuitBreakerConfig{}, logger)
	router := multiagent.NewRouter(registry, store, breaker, logger, multiagent.WithRouterEventBus(bus))
	deps := HandlerDeps{
		Registry:     registry,
		Router:       router,
		Orchestrator: multiagent.NewOrchestrator(router, logger, multiagent.WithOrchestratorEventBus(bus)),
		Store:        store,
		Bus:          bus,
		Breakers:     breaker,
		Logger:       logger,
		Version:      "test",
	}

	srv := NewServer(bus, auth, "127.0.0.1:0", logger)
	agents, err := builtin.New(logger)
	if err != nil {
		t.Fatalf("builtin.New: %v", err)
	}
	agents.Register(srv.RegisterOpenRoute)
	RegisterRESTHandlers(srv, deps)
	RegisterDefaultHandlers(srv, deps)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Start(ctx)

	select {
	case <-srv.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start in time")
	}
	t.Cleanup(func() { srv.Stop(context.Background()) })

	base := "http://" + srv.BoundAddr()
	if err := registry.RegisterAll(multiagent.DefaultDescriptors(base)); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return &testStack{srv: srv, deps: deps, base: base}
}

func doJSON(t *testing.T, method, url, token string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, url, err)
	}
	return resp.StatusCode, out
}

// failingAgent answers every request with status.
func failingAgent(t *testing.T, status int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "agent unavailable", status)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}
