package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubesage/kubesage/internal/agent"
	"github.com/kubesage/kubesage/internal/kube"
	"github.com/kubesage/kubesage/internal/llm"
	"github.com/kubesage/kubesage/internal/memory"
	"github.com/kubesage/kubesage/internal/session"
	"github.com/kubesage/kubesage/internal/tools"
)

// fakeCluster satisfies ClusterAccess with a temp-dir kubeconfig path.
type fakeCluster struct {
	path        string
	invalidated int
}

func (f *fakeCluster) Path() string { return f.path }
func (f *fakeCluster) Invalidate()  { f.invalidated++ }

type serverFixture struct {
	server  *Server
	cluster *fakeCluster
	mgr     *session.Manager
}

func newFixture(t *testing.T, responses ...llm.MockResponse) *serverFixture {
	t.Helper()

	mapping, err := kube.LoadMapping()
	if err != nil {
		t.Fatalf("LoadMapping: %v", err)
	}
	cs := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "web-1"},
	})
	dispatcher, err := kube.NewDispatcher(mapping, kube.NewStaticProvider(cs))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	registry := tools.NewRegistry()
	tools.RegisterKubernetesQuery(registry, dispatcher)

	mock := llm.NewMockClient(responses...)
	a := agent.New(mock, registry, agent.Config{Model: "test"})
	mgr := session.NewManager(session.NewMemoryStore(0), memory.NewFullHistory())

	cluster := &fakeCluster{path: filepath.Join(t.TempDir(), "config")}
	srv := NewServer(agent.NewConversation(a, mgr), cluster)

	return &serverFixture{server: srv, cluster: cluster, mgr: mgr}
}

func (f *serverFixture) uploadKubeconfig(t *testing.T) {
	t.Helper()
	if err := os.WriteFile(f.cluster.path, []byte("apiVersion: v1\nkind: Config\n"), 0o600); err != nil {
		t.Fatalf("write kubeconfig: %v", err)
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	if body["kubeconfig"] != false {
		t.Errorf("kubeconfig = %v, want false before upload", body["kubeconfig"])
	}
}

func TestQuery_RequiresKubeconfig(t *testing.T) {
	f := newFixture(t, llm.MockResponse{Content: "unused"})

	rec := postJSON(t, f.server.Handler(), "/query", map[string]string{
		"query":      "are my pods ok?",
		"session_id": "s1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no_kubeconfig") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestQuery_RoundTrip(t *testing.T) {
	f := newFixture(t,
		llm.MockResponse{
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "execute_kubernetes_query", Input: map[string]interface{}{"resource_type": "pod"}},
			},
			StopReason: llm.StopToolUse,
		},
		llm.MockResponse{Content: "# Final Answer: all good", StopReason: llm.StopEndTurn},
	)
	f.uploadKubeconfig(t)

	rec := postJSON(t, f.server.Handler(), "/query", map[string]string{
		"query":      "are my pods ok?",
		"session_id": "s1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Query    string `json:"query"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Query != "are my pods ok?" {
		t.Errorf("query = %q", body.Query)
	}
	if body.Response != "# Final Answer: all good" {
		t.Errorf("response = %q", body.Response)
	}
}

func TestQuery_BadRequests(t *testing.T) {
	f := newFixture(t)
	f.uploadKubeconfig(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty query", map[string]string{"query": " ", "session_id": "s1"}},
		{"missing session", map[string]string{"query": "hi"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, f.server.Handler(), "/query", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestUpload_StoresAtFixedPathAndInvalidates(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "my-kubeconfig.yaml")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("apiVersion: v1\nkind: Config\n")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// Stored at the fixed path regardless of the uploaded filename.
	if _, err := os.Stat(f.cluster.path); err != nil {
		t.Errorf("kubeconfig not stored: %v", err)
	}
	if f.cluster.invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", f.cluster.invalidated)
	}
}

func TestUpload_RejectsMissingFile(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestClear_ResetsSessionAndRemovesKubeconfig(t *testing.T) {
	f := newFixture(t, llm.MockResponse{Content: "answer", StopReason: llm.StopEndTurn})
	f.uploadKubeconfig(t)

	rec := postJSON(t, f.server.Handler(), "/query", map[string]string{
		"query": "q", "session_id": "s1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d", rec.Code)
	}

	rec = postJSON(t, f.server.Handler(), "/clear", map[string]string{"session_id": "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body = %s", rec.Code, rec.Body.String())
	}

	history, err := f.mgr.LoadMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %d messages after clear", len(history))
	}
	if _, err := os.Stat(f.cluster.path); !os.IsNotExist(err) {
		t.Error("kubeconfig still present after clear")
	}
}

func TestCleanupAll(t *testing.T) {
	f := newFixture(t, llm.MockResponse{Content: "answer", StopReason: llm.StopEndTurn})
	f.uploadKubeconfig(t)

	for _, id := range []string{"a", "b"} {
		rec := postJSON(t, f.server.Handler(), "/query", map[string]string{"query": "q", "session_id": id})
		if rec.Code != http.StatusOK {
			t.Fatalf("query status = %d", rec.Code)
		}
	}

	rec := postJSON(t, f.server.Handler(), "/cleanup-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		SessionsCleared int `json:"sessions_cleared"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.SessionsCleared != 2 {
		t.Errorf("sessions_cleared = %d, want 2", body.SessionsCleared)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t)
	srv := f.server
	srv.apiKey = "topsecret"
	handler := srv.Handler()

	// Health stays open.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	// Everything else requires the key.
	rec = postJSON(t, handler, "/clear", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/clear", strings.NewReader("{}"))
	req.Header.Set("X-API-Key", "topsecret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("X-API-Key status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/clear", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer topsecret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Bearer status = %d", rec.Code)
	}
}
