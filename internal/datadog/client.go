// Package datadog implements the discovery collaborator: it queries the
// Datadog Logs Search API for error/warning logs, groups the hits by
// service and turns each affected service into a work item.
package datadog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/swarm"
)

const (
	searchPath        = "/api/v2/logs/events/search"
	maxLogsForContext = 30
	maxMessageLength  = 500
)

type Client struct {
	baseURL string
	apiKey  string
	appKey  string
	query   string
	limit   int
	http    *http.Client
}

func New(cfg config.DatadogConfig) *Client {
	base := fmt.Sprintf("https://api.%s.datadoghq.com", cfg.Site)
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		appKey:  cfg.AppKey,
		query:   cfg.Query,
		limit:   cfg.Limit,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(cfg config.DatadogConfig, baseURL string) *Client {
	c := New(cfg)
	c.baseURL = baseURL
	return c
}

type logEntry struct {
	ID         string `json:"id"`
	Attributes struct {
		Timestamp string `json:"timestamp"`
		Status    string `json:"status"`
		Service   string `json:"service"`
		Message   string `json:"message"`
	} `json:"attributes"`
}

type searchResponse struct {
	Data []logEntry `json:"data"`
}

// Discover queries the window for error logs and returns one WorkItem per
// affected service, each carrying a formatted log excerpt. A failure here
// aborts the whole run; there is nothing to fan out over.
func (c *Client) Discover(ctx context.Context, from, to string) ([]swarm.WorkItem, error) {
	logs, err := c.search(ctx, c.query, from, to, c.limit)
	if err != nil {
		return nil, fmt.Errorf("discover affected services: %w", err)
	}

	byService := make(map[string][]logEntry)
	for _, l := range logs {
		if svc := l.Attributes.Service; svc != "" {
			byService[svc] = append(byService[svc], l)
		}
	}

	services := make([]string, 0, len(byService))
	for svc := range byService {
		services = append(services, svc)
	}
	sort.Strings(services)

	items := make([]swarm.WorkItem, 0, len(services))
	for _, svc := range services {
		entries := byService[svc]
		items = append(items, swarm.WorkItem{
			Service:    svc,
			ErrorCount: len(entries),
			LogExcerpt: formatLogs(entries),
			WindowFrom: from,
			WindowTo:   to,
		})
	}

	slog.Info("discovery complete", "logs", len(logs), "services", len(items))
	return items, nil
}

// FetchLogs runs a per-service query and returns the formatted context.
// Used by the fetcher work unit.
func (c *Client) FetchLogs(ctx context.Context, service, from, to string) (string, error) {
	query := fmt.Sprintf("service:%s %s", service, c.query)
	logs, err := c.search(ctx, query, from, to, c.limit)
	if err != nil {
		return "", err
	}
	return formatLogs(logs), nil
}

func (c *Client) search(ctx context.Context, query, from, to string, limit int) ([]logEntry, error) {
	body := map[string]any{
		"filter": map[string]string{
			"from":  from,
			"to":    to,
			"query": query,
		},
		"page": map[string]int{"limit": limit},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("DD-API-KEY", c.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", c.appKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search logs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Data, nil
}

// formatLogs renders log entries as one line each, suitable as reasoning
// context. Long messages are truncated and multi-line messages collapsed
// to their first line.
func formatLogs(logs []logEntry) string {
	if len(logs) > maxLogsForContext {
		logs = logs[:maxLogsForContext]
	}

	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		a := l.Attributes
		msg := a.Message
		if len(msg) > maxMessageLength {
			msg = msg[:maxMessageLength] + "..."
		}
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		ts := a.Timestamp
		if ts == "" {
			ts = "N/A"
		}
		lines = append(lines, fmt.Sprintf("[%s] [%s] [%s] %s",
			ts, strings.ToUpper(a.Status), a.Service, strings.TrimSpace(msg)))
	}
	return strings.Join(lines, "\n")
}

// Window formats a relative duration as a Datadog time expression, e.g.
// Window(24*time.Hour) == "now-1d".
func Window(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("now-%dd", int(d.Hours())/24)
	case d%time.Hour == 0:
		return fmt.Sprintf("now-%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("now-%dm", int(d.Minutes()))
	}
}
