package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service   ServiceStatus  `json:"service"`
	Agents    []AgentStatus  `json:"agents"`
	Threads   ThreadStatus   `json:"threads"`
	Workflows WorkflowStatus `json:"workflows"`
	Calls     CallStatus     `json:"calls"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// AgentStatus describes one registered agent.
type AgentStatus struct {
	ID         string `json:"id"`
	Capability string `json:"capability"`
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"`
	Breaker    string `json:"breaker,omitempty"`
}

// ThreadStatus holds thread store info.
type ThreadStatus struct {
	Backend  string `json:"backend"`
	Threads  int    `json:"threads"`
	Messages int    `json:"messages"`
}

// WorkflowStatus counts orchestration runs.
type WorkflowStatus struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// CallStatus counts agent calls.
type CallStatus struct {
	Routed int64 `json:"routed"`
	Failed int64 `json:"failed"`
}

func statusHandler(deps HandlerDeps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		var breakers map[string]string
		if deps.Breakers != nil {
			breakers = deps.Breakers.States()
		}
		agentStatus := []AgentStatus{}
		for d := range deps.Registry.List() {
			agentStatus = append(agentStatus, AgentStatus{
				ID:         d.ID,
				Capability: string(d.Capability),
				Endpoint:   d.Endpoint,
				Status:     string(d.Status),
				Breaker:    breakers[d.ID],
			})
		}

		version := deps.Version
		if version == "" {
			version = "dev"
		}
		writeJSON(w, http.StatusOK, StatusResponse{
			Service: ServiceStatus{
				Name:          "coral-agents",
				Version:       version,
				UptimeSeconds: int64(time.Since(metrics.started).Seconds()),
			},
			Agents: agentStatus,
			Threads: ThreadStatus{
				Backend:  deps.Store.Name(),
				Threads:  stats.Threads,
				Messages: stats.Messages,
			},
			Workflows: WorkflowStatus{
				Started:   metrics.WorkflowsStarted.Load(),
				Completed: metrics.WorkflowsCompleted.Load(),
				Failed:    metrics.WorkflowsFailed.Load(),
			},
			Calls: CallStatus{
				Routed: metrics.CallsRouted.Load(),
				Failed: metrics.CallsFailed.Load(),
			},
		})
	}
}
