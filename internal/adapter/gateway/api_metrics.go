package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		writeMetric(w, "repochat_turns_active", "gauge", "Turns currently holding a chat lock.", int64(activeTurns(deps)))
		writeMetric(w, "repochat_turns_total", "counter", "Turns finished, including failures.", metrics.TurnsTotal.Load())
		writeMetric(w, "repochat_turns_failed_total", "counter", "Turns that failed.", metrics.TurnsFailed.Load())
		writeMetric(w, "repochat_tool_calls_total", "counter", "Total tool invocations.", metrics.ToolCallsTotal.Load())
		writeMetric(w, "repochat_tool_errors_total", "counter", "Tool invocations that failed.", metrics.ToolErrorsTotal.Load())
		writeMetric(w, "repochat_tools_registered", "gauge", "Number of registered tools.", int64(registeredTools(deps)))
		writeMetric(w, "repochat_chats_saved_total", "counter", "Chat snapshots written to the store.", metrics.ChatsSaved.Load())
		writeMetric(w, "repochat_uptime_seconds", "gauge", "Seconds since the gateway started.", int64(time.Since(startTime).Seconds()))

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		writeMetric(w, "go_goroutines", "gauge", "Number of goroutines.", int64(runtime.NumGoroutine()))
		writeMetric(w, "go_memstats_alloc_bytes", "gauge", "Bytes of allocated heap objects.", int64(mem.Alloc))
		writeMetric(w, "go_memstats_sys_bytes", "gauge", "Total bytes of memory obtained from the OS.", int64(mem.Sys))
	}
}

func writeMetric(w http.ResponseWriter, name, typ, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
