package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCorrelationID_RoundTrip(t *testing.T) {
	id := NewCorrelationID()
	if id == "" {
		t.Fatal("empty correlation id")
	}
	if id2 := NewCorrelationID(); id2 == id {
		t.Error("correlation ids not unique")
	}

	ctx := WithCorrelationID(context.Background(), id)
	if got := CorrelationID(ctx); got != id {
		t.Errorf("CorrelationID = %q, want %q", got, id)
	}
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID on empty ctx = %q, want empty", got)
	}
}

func TestNewLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Info("turn completed", "rounds", 3)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "turn completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["rounds"] != float64(3) {
		t.Errorf("rounds = %v", entry["rounds"])
	}
}

func TestRequestLogger_CarriesIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelInfo)
	ctx := WithCorrelationID(context.Background(), "cid-1")

	RequestLogger(base, ctx, "sess-1").Info("hello")

	out := buf.String()
	if !strings.Contains(out, "cid-1") || !strings.Contains(out, "sess-1") {
		t.Errorf("log entry missing identifiers: %s", out)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	// Must not panic when metrics are not configured.
	m.RecordTurn("success", time.Second, 10, 5)
	m.RecordToolCall("execute_kubernetes_query", "success")
	m.RecordModelCall()
}

func TestMetrics_Endpoint(t *testing.T) {
	m := NewMetrics()
	m.RecordTurn("success", 250*time.Millisecond, 100, 50)
	m.RecordToolCall("execute_kubernetes_query", "error")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"kubesage_turns_total", "kubesage_tool_calls_total", "kubesage_tokens_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
