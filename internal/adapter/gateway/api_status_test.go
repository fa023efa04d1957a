package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"repochat/internal/domain"
)

func TestStatusHandler_Success(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{})
	metrics := NewMetrics()
	metrics.TurnsTotal.Store(5)
	metrics.TurnsFailed.Store(1)
	metrics.ToolCallsTotal.Store(42)
	metrics.ToolErrorsTotal.Store(3)

	handler := statusHandler(deps, time.Now().Add(-60*time.Second), metrics)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Service.Name != "repochat" {
		t.Errorf("Service.Name = %q", resp.Service.Name)
	}
	if resp.Service.UptimeSeconds < 59 {
		t.Errorf("UptimeSeconds = %d, want >= 59", resp.Service.UptimeSeconds)
	}
	if resp.Turns.Total != 5 || resp.Turns.FailedTotal != 1 {
		t.Errorf("Turns = %+v", resp.Turns)
	}
	if resp.Tools.CallsTotal != 42 || resp.Tools.ErrorsTotal != 3 {
		t.Errorf("Tools = %+v", resp.Tools)
	}
	if resp.Tools.Registered != len(deps.Registry.Schemas()) {
		t.Errorf("Tools.Registered = %d", resp.Tools.Registered)
	}
}

func TestStatusHandler_MethodNotAllowed(t *testing.T) {
	handler := statusHandler(handlerTestDeps(t, &scriptedLLM{}), time.Now(), NewMetrics())
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestMetricsHandler_Format(t *testing.T) {
	metrics := NewMetrics()
	metrics.ChatsSaved.Store(9)
	handler := metricsHandler(handlerTestDeps(t, &scriptedLLM{}), time.Now(), metrics)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{
		"# TYPE repochat_turns_total counter",
		"repochat_chats_saved_total 9",
		"go_goroutines ",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics body missing %q", want)
		}
	}
}

func TestMetricsSubscribe_CountsEvents(t *testing.T) {
	bus := &testBus{}
	metrics := NewMetrics()
	metrics.Subscribe(bus)

	ctx := context.Background()
	okPayload, _ := json.Marshal(domain.ToolEventPayload{Outcome: "ok"})
	badPayload, _ := json.Marshal(domain.ToolEventPayload{Outcome: "upstream_fetch_failed"})
	bus.Publish(ctx, domain.Event{Type: domain.EventTurnCompleted})
	bus.Publish(ctx, domain.Event{Type: domain.EventTurnFailed})
	bus.Publish(ctx, domain.Event{Type: domain.EventToolCallCompleted, Payload: okPayload})
	bus.Publish(ctx, domain.Event{Type: domain.EventToolCallCompleted, Payload: badPayload})
	bus.Publish(ctx, domain.Event{Type: domain.EventChatSaved})

	if got := metrics.TurnsTotal.Load(); got != 2 {
		t.Errorf("TurnsTotal = %d, want 2", got)
	}
	if got := metrics.TurnsFailed.Load(); got != 1 {
		t.Errorf("TurnsFailed = %d, want 1", got)
	}
	if got := metrics.ToolCallsTotal.Load(); got != 2 {
		t.Errorf("ToolCallsTotal = %d, want 2", got)
	}
	if got := metrics.ToolErrorsTotal.Load(); got != 1 {
		t.Errorf("ToolErrorsTotal = %d, want 1", got)
	}
	if got := metrics.ChatsSaved.Load(); got != 1 {
		t.Errorf("ChatsSaved = %d, want 1", got)
	}
}

func TestRESTHandlers_RequireToken(t *testing.T) {
	srv := NewServer(nil, newTestAuth(), "127.0.0.1:0", discardLogger())
	RegisterRESTHandlers(srv, handlerTestDeps(t, &scriptedLLM{}))
	hs := httptest.NewServer(srv.Handler(context.Background()))
	defer hs.Close()

	resp, err := http.Get(hs.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, hs.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with token = %d, body %s", resp.StatusCode, body)
	}
}
