package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/swarm"
)

func testClient(url string) *Client {
	return New(config.ReasoningConfig{URL: url, APIKey: "rk-test", Timeout: 5 * time.Second})
}

func TestReason(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer rk-test" {
			t.Errorf("auth = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(response{Decision: "continue", Severity: "high", Text: "db pool exhausted"})
	}))
	defer srv.Close()

	out, err := testClient(srv.URL).Reason(context.Background(), swarm.RoleAnalyzer, "payments", "log context")
	if err != nil {
		t.Fatalf("reason: %v", err)
	}

	if got.Role != "analyzer" || got.Service != "payments" || got.Input != "log context" {
		t.Errorf("request = %+v", got)
	}
	if out.Decision != "continue" || out.Severity != "high" || out.Text != "db pool exhausted" {
		t.Errorf("reasoning = %+v", out)
	}
}

func TestReasonDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response{Decision: "fail", Text: "insufficient context"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Reason(context.Background(), swarm.RoleAnalyzer, "payments", "x")
	if err == nil {
		t.Fatal("expected error for fail decision")
	}
	if !strings.Contains(err.Error(), "insufficient context") {
		t.Errorf("err = %v", err)
	}
}

func TestReasonMalformedDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response{Decision: "maybe"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Reason(context.Background(), swarm.RoleAnalyzer, "payments", "x")
	if err == nil {
		t.Fatal("expected error for unknown decision")
	}
	if !strings.Contains(err.Error(), "malformed reasoning decision") {
		t.Errorf("err = %v", err)
	}
}

func TestReasonHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Reason(context.Background(), swarm.RoleAnalyzer, "payments", "x")
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("err = %v", err)
	}
}

func TestReasonNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("unexpected Authorization header")
		}
		_ = json.NewEncoder(w).Encode(response{Decision: "complete", Text: "done"})
	}))
	defer srv.Close()

	c := New(config.ReasoningConfig{URL: srv.URL, Timeout: 5 * time.Second})
	out, err := c.Reason(context.Background(), swarm.RoleAnalyzer, "payments", "x")
	if err != nil {
		t.Fatalf("reason: %v", err)
	}
	if out.Decision != "complete" {
		t.Errorf("decision = %q", out.Decision)
	}
}
