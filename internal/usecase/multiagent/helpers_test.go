package multiagent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"coral-agents/internal/adapter/threadstore"
	"coral-agents/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// agentFunc answers one capability. req is the decoded request body.
type agentFunc func(ctx context.Context, req domain.AgentRequest) ([]byte, error)

// fakeTransport dispatches by capability and records every request.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[domain.Capability]agentFunc
	calls    []domain.AgentRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[domain.Capability]agentFunc)}
}

func (f *fakeTransport) on(c domain.Capability, fn agentFunc) *fakeTransport {
	f.handlers[c] = fn
	return f
}

func (f *fakeTransport) reply(c domain.Capability, body string) *fakeTransport {
	return f.on(c, func(context.Context, domain.AgentRequest) ([]byte, error) {
		return []byte(body), nil
	})
}

func (f *fakeTransport) Post(ctx context.Context, agent domain.AgentDescriptor, body []byte) ([]byte, error) {
	var req domain.AgentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.handlers[agent.Capability]
	f.mu.Unlock()
	if fn == nil {
		return nil, &domain.StatusError{StatusCode: 404, Body: "no handler"}
	}
	return fn(ctx, req)
}

func (f *fakeTransport) callsFor(c domain.Capability) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.calls {
		if r.Message.Capability == c {
			n++
		}
	}
	return n
}

// fullRegistry registers the built-in descriptors under a dummy base URL.
func fullRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(testLogger())
	require.NoError(t, r.RegisterAll(DefaultDescriptors("http://agents.test")))
	return r
}

func newTestRouter(t *testing.T, tr domain.AgentTransport, opts ...RouterOption) (*Router, *threadstore.Memory) {
	t.Helper()
	store := threadstore.NewMemory()
	return NewRouter(fullRegistry(t), store, tr, testLogger(), opts...), store
}
