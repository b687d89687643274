package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coral-agents/internal/domain"
)

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func TestStatusEndpoint(t *testing.T) {
	st := startStack(t, NoAuth{})

	if status, _ := doJSON(t, "POST", st.base+"/api/orchestrate", "", OrchestrateRequest{UserRequest: "Build a form"}); status != http.StatusOK {
		t.Fatalf("orchestrate status = %d", status)
	}

	resp, err := http.Get(st.base + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()

	var sr StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sr.Service.Name != "coral-agents" || sr.Service.Version != "test" {
		t.Errorf("service = %+v", sr.Service)
	}
	if len(sr.Agents) != 4 {
		t.Errorf("agents = %d, want 4", len(sr.Agents))
	}
	if sr.Threads.Backend != "memory" || sr.Threads.Threads != 1 || sr.Threads.Messages != 2 {
		t.Errorf("threads = %+v", sr.Threads)
	}
	for _, a := range sr.Agents {
		if a.Capability == string(domain.CapabilityPromptRefine) && a.Breaker != "closed" {
			t.Errorf("prompt-refine breaker = %q, want closed", a.Breaker)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	st := startStack(t, NoAuth{})

	resp, err := http.Get(st.base + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{
		"coral_agents_registered 4",
		"# TYPE coral_workflows_started_total counter",
		"coral_threads 0",
		"coral_events_published_total",
		"coral_circuit_breakers_open 0",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
