package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"repochat/internal/domain"
)

// Version is reported by the status endpoint. Set at build time.
var Version = "dev"

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service ServiceStatus `json:"service"`
	Turns   TurnStatus    `json:"turns"`
	Tools   ToolStatus    `json:"tools"`
	Chats   ChatStatus    `json:"chats"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// TurnStatus holds turn counters.
type TurnStatus struct {
	Active      int   `json:"active"`
	Total       int64 `json:"total"`
	FailedTotal int64 `json:"failed_total"`
}

// ToolStatus holds tool usage stats.
type ToolStatus struct {
	Registered  int   `json:"registered"`
	CallsTotal  int64 `json:"calls_total"`
	ErrorsTotal int64 `json:"errors_total"`
}

// ChatStatus holds persistence counters.
type ChatStatus struct {
	SavedTotal int64 `json:"saved_total"`
}

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	TurnsTotal      atomic.Int64
	TurnsFailed     atomic.Int64
	ToolCallsTotal  atomic.Int64
	ToolErrorsTotal atomic.Int64
	ChatsSaved      atomic.Int64
}

// NewMetrics creates a zeroed counter set.
func NewMetrics() *Metrics { return &Metrics{} }

// Subscribe feeds the counters from bus events.
func (m *Metrics) Subscribe(bus domain.EventBus) {
	bus.Subscribe(domain.EventTurnCompleted, func(context.Context, domain.Event) {
		m.TurnsTotal.Add(1)
	})
	bus.Subscribe(domain.EventTurnFailed, func(context.Context, domain.Event) {
		m.TurnsTotal.Add(1)
		m.TurnsFailed.Add(1)
	})
	bus.Subscribe(domain.EventToolCallCompleted, func(_ context.Context, e domain.Event) {
		m.ToolCallsTotal.Add(1)
		var p domain.ToolEventPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil && p.Outcome != "" && p.Outcome != "ok" {
			m.ToolErrorsTotal.Add(1)
		}
	})
	bus.Subscribe(domain.EventChatSaved, func(context.Context, domain.Event) {
		m.ChatsSaved.Add(1)
	})
}

func activeTurns(deps HandlerDeps) int {
	if deps.Locker == nil {
		return 0
	}
	return deps.Locker.ActiveCount()
}

func registeredTools(deps HandlerDeps) int {
	if deps.Registry == nil {
		return 0
	}
	return len(deps.Registry.Schemas())
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "repochat",
				Version:       Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Turns: TurnStatus{
				Active:      activeTurns(deps),
				Total:       metrics.TurnsTotal.Load(),
				FailedTotal: metrics.TurnsFailed.Load(),
			},
			Tools: ToolStatus{
				Registered:  registeredTools(deps),
				CallsTotal:  metrics.ToolCallsTotal.Load(),
				ErrorsTotal: metrics.ToolErrorsTotal.Load(),
			},
			Chats: ChatStatus{SavedTotal: metrics.ChatsSaved.Load()},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
