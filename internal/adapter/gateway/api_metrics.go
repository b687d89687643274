package gateway

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"coral-agents/internal/domain"
)

// Metrics counts bus events for the status API and /metrics.
type Metrics struct {
	started time.Time

	CallsRouted        atomic.Int64
	CallsFailed        atomic.Int64
	WorkflowsStarted   atomic.Int64
	WorkflowsCompleted atomic.Int64
	WorkflowsFailed    atomic.Int64
}

// NewMetrics returns zeroed counters with uptime starting now.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// Subscribe wires the counters to bus events.
func (m *Metrics) Subscribe(bus domain.EventBus) {
	count := func(c *atomic.Int64) domain.EventHandler {
		return func(context.Context, domain.Event) { c.Add(1) }
	}
	bus.Subscribe(domain.EventAgentRouted, count(&m.CallsRouted))
	bus.Subscribe(domain.EventAgentCallFailed, count(&m.CallsFailed))
	bus.Subscribe(domain.EventWorkflowStarted, count(&m.WorkflowsStarted))
	bus.Subscribe(domain.EventWorkflowComplete, count(&m.WorkflowsCompleted))
	bus.Subscribe(domain.EventWorkflowFailed, count(&m.WorkflowsFailed))
}

type busStats interface {
	Stats() (published, panics uint64)
}

// metricsHandler serves Prometheus text format without the client library.
func metricsHandler(deps HandlerDeps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metric := func(name, typ, help string, value any) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n", name, help, name, typ, name, value)
		}

		metric("coral_agents_registered", "gauge", "Number of registered agents.", deps.Registry.Len())
		metric("coral_agent_calls_total", "counter", "Agent calls that returned a response.", metrics.CallsRouted.Load())
		metric("coral_agent_call_failures_total", "counter", "Agent calls that failed.", metrics.CallsFailed.Load())
		metric("coral_workflows_started_total", "counter", "Orchestration runs started.", metrics.WorkflowsStarted.Load())
		metric("coral_workflows_completed_total", "counter", "Orchestration runs completed.", metrics.WorkflowsCompleted.Load())
		metric("coral_workflows_failed_total", "counter", "Orchestration runs failed.", metrics.WorkflowsFailed.Load())

		if stats, err := deps.Store.Stats(r.Context()); err == nil {
			metric("coral_threads", "gauge", "Threads in the thread store.", stats.Threads)
			metric("coral_thread_messages", "gauge", "Messages in the thread store.", stats.Messages)
		}

		if bs, ok := deps.Bus.(busStats); ok {
			published, panics := bs.Stats()
			metric("coral_events_published_total", "counter", "Events published on the bus.", published)
			metric("coral_event_handler_panics_total", "counter", "Event handlers that panicked.", panics)
		}

		if deps.Breakers != nil {
			open := 0
			for _, state := range deps.Breakers.States() {
				if state == "open" {
					open++
				}
			}
			metric("coral_circuit_breakers_open", "gauge", "Agents whose circuit breaker is open.", open)
		}

		metric("coral_uptime_seconds", "gauge", "Seconds since the gateway started.", fmt.Sprintf("%.0f", time.Since(metrics.started).Seconds()))

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		metric("go_goroutines", "gauge", "Number of goroutines.", runtime.NumGoroutine())
		metric("go_memstats_alloc_bytes", "gauge", "Bytes of allocated heap objects.", mem.Alloc)
		metric("go_memstats_sys_bytes", "gauge", "Total bytes of memory obtained from the OS.", mem.Sys)
	}
}
