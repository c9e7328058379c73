package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mtzanidakis/vigla/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Runs
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("POST /api/runs", s.triggerRun)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	// Stored reports
	mux.HandleFunc("GET /api/reports/{key...}", s.getReport)

	// Secrets
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("PUT /api/secrets/{name}", s.putSecret)
	mux.HandleFunc("DELETE /api/secrets/{name}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(50)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	jsonResponse(w, runs)
}

// triggerRun starts a workflow run in the background and returns
// immediately; progress streams over the websocket and lands in the run
// history.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		jsonError(w, "runner not configured", http.StatusServiceUnavailable)
		return
	}

	// Use a background context so the run outlives the HTTP request.
	go func() {
		if _, err := s.runner.Run(context.Background()); err != nil {
			slog.Error("triggered run failed", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	jsonResponse(w, map[string]string{"status": "started"})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := s.store.GetRun(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}

	results, err := s.store.GetRunResults(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []store.RunResult{}
	}

	jsonResponse(w, map[string]any{
		"run":     run,
		"results": results,
	})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		jsonError(w, "report store not configured", http.StatusServiceUnavailable)
		return
	}

	key := r.PathValue("key")
	content, err := s.reports.Get(r.Context(), key)
	if err != nil {
		jsonError(w, "report not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListSecretNames()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	jsonResponse(w, names)
}

func (s *Server) putSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == "" {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ciphertext, nonce, err := s.vault.Encrypt([]byte(body.Value))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sec := &store.Secret{
		Name:  r.PathValue("name"),
		Value: ciphertext,
		Nonce: nonce,
	}
	if err := s.store.SaveSecret(sec); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSecret(r.PathValue("name")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}
