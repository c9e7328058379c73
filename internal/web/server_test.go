package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/store"
	"github.com/mtzanidakis/vigla/internal/vault"
)

func testServer(t *testing.T, cfg config.WebConfig) (*Server, *store.Store) {
	t.Helper()
	db, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "web.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewServer(db, nil, nil, nil, vault.New("test-pass"), cfg, "test")
	return s, db
}

func testMux(s *Server) http.Handler {
	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	return s.withAuth(mux)
}

func TestListRunsEmpty(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})
	rec := httptest.NewRecorder()

	testMux(s).ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestListRunsReturnsHistory(t *testing.T) {
	s, db := testServer(t, config.WebConfig{})
	if err := db.CreateRun(&store.Run{ID: "run-1", WindowFrom: "now-1d", WindowTo: "now"}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	testMux(s).ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs", nil))

	var runs []store.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})
	rec := httptest.NewRecorder()

	testMux(s).ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTriggerRunWithoutRunner(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})
	rec := httptest.NewRecorder()

	testMux(s).ServeHTTP(rec, httptest.NewRequest("POST", "/api/runs", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetReportWithoutStore(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})
	rec := httptest.NewRecorder()

	testMux(s).ServeHTTP(rec, httptest.NewRequest("GET", "/api/reports/payments/x.md", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSecretLifecycle(t *testing.T) {
	s, db := testServer(t, config.WebConfig{})
	mux := testMux(s)

	body, _ := json.Marshal(map[string]string{"value": "dd-api-key-plain"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/secrets/datadog_api_key", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	// Stored value is ciphertext, not the plaintext
	sec, err := db.GetSecret("datadog_api_key")
	if err != nil || sec == nil {
		t.Fatalf("get secret: %v %v", sec, err)
	}
	if bytes.Contains(sec.Value, []byte("dd-api-key-plain")) {
		t.Error("plaintext stored in database")
	}
	plain, err := vault.New("test-pass").Decrypt(sec.Value, sec.Nonce)
	if err != nil || string(plain) != "dd-api-key-plain" {
		t.Errorf("decrypt = %q, %v", plain, err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/secrets", nil))
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode names: %v", err)
	}
	if len(names) != 1 || names[0] != "datadog_api_key" {
		t.Errorf("names = %v", names)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/secrets/datadog_api_key", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if sec, _ := db.GetSecret("datadog_api_key"); sec != nil {
		t.Error("secret survived delete")
	}
}

func TestPutSecretRejectsEmptyBody(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})
	rec := httptest.NewRecorder()

	testMux(s).ServeHTTP(rec, httptest.NewRequest("PUT", "/api/secrets/x", strings.NewReader("{}")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})
	rec := httptest.NewRecorder()

	testMux(s).ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))

	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["version"] != "test" {
		t.Errorf("version = %v", status["version"])
	}
}

func TestAuthGuardsAPI(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{Auth: "secret"})
	mux := testMux(s)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without auth = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("anyone", "secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with auth = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("anyone", "wrong")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with bad auth = %d, want 401", rec.Code)
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	s, _ := testServer(t, config.WebConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(testMux(s))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The hub registers the connection before the handler blocks on reads;
	// give the server goroutine a beat to get there.
	time.Sleep(50 * time.Millisecond)

	s.hub.Broadcast(Event{Type: "run_started", Timestamp: "2026-08-27T08:00:00Z"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "run_started" {
		t.Errorf("event type = %q", got.Type)
	}
}
