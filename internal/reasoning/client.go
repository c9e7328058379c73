// Package reasoning wraps the external reasoning engine behind a minimal
// HTTP contract: prompt context in, an act-or-complete decision with
// analysis text out. The engine itself is a black box; this client only
// moves JSON and maps transport failures to errors the work units can
// fold into their decisions.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/swarm"
)

type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func New(cfg config.ReasoningConfig) *Client {
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

type request struct {
	Role    string `json:"role"`
	Service string `json:"service"`
	Input   string `json:"input"`
}

type response struct {
	Decision string `json:"decision"`
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// Reason submits the prompt context and returns the engine's decision.
// A malformed response is an error; the caller converts it to a failed
// decision rather than guessing at semantics.
func (c *Client) Reason(ctx context.Context, role swarm.Role, service, input string) (swarm.Reasoning, error) {
	payload, err := json.Marshal(request{Role: string(role), Service: service, Input: input})
	if err != nil {
		return swarm.Reasoning{}, fmt.Errorf("marshal reasoning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return swarm.Reasoning{}, fmt.Errorf("build reasoning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return swarm.Reasoning{}, fmt.Errorf("reasoning request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return swarm.Reasoning{}, fmt.Errorf("reasoning request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return swarm.Reasoning{}, fmt.Errorf("decode reasoning response: %w", err)
	}

	switch parsed.Decision {
	case "continue", "complete", "fail":
	default:
		return swarm.Reasoning{}, fmt.Errorf("malformed reasoning decision %q", parsed.Decision)
	}
	if parsed.Decision == "fail" {
		return swarm.Reasoning{}, fmt.Errorf("reasoning engine declined: %s", parsed.Text)
	}

	return swarm.Reasoning{
		Decision: parsed.Decision,
		Severity: parsed.Severity,
		Text:     parsed.Text,
	}, nil
}
