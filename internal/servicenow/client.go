// Package servicenow implements the ticketing collaborator against the
// ServiceNow Table API.
package servicenow

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

const incidentPath = "/api/now/table/incident"

// ServiceNow caps short_description at 160 characters.
const maxShortDescription = 160

type Client struct {
	instanceURL string
	username    string
	password    string
	http        *http.Client
}

func New(cfg config.ServiceNowConfig) *Client {
	return &Client{
		instanceURL: strings.TrimRight(cfg.InstanceURL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
}

type incidentRequest struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Impact           string `json:"impact"`
	Urgency          string `json:"urgency"`
}

type incidentResponse struct {
	Result struct {
		SysID  string `json:"sys_id"`
		Number string `json:"number"`
	} `json:"result"`
}

// CreateTicket opens an incident and returns its human-readable number
// (e.g. "INC0012345").
func (c *Client) CreateTicket(ctx context.Context, title, description string, severity swarm.Severity) (string, error) {
	if len(title) > maxShortDescription {
		title = title[:maxShortDescription]
	}

	impact, urgency := priorityValues(severity)
	payload, err := json.Marshal(incidentRequest{
		ShortDescription: title,
		Description:      description,
		Impact:           impact,
		Urgency:          urgency,
	})
	if err != nil {
		return "", fmt.Errorf("marshal incident: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.instanceURL+incidentPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build incident request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create incident: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("create incident: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed incidentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode incident response: %w", err)
	}
	if parsed.Result.Number == "" {
		return "", fmt.Errorf("incident created without a number (sys_id %q)", parsed.Result.SysID)
	}
	return parsed.Result.Number, nil
}

// priorityValues maps a severity to ServiceNow impact/urgency.
func priorityValues(severity swarm.Severity) (impact, urgency string) {
	switch severity {
	case swarm.SeverityCritical:
		return "1", "1"
	case swarm.SeverityHigh:
		return "2", "2"
	case swarm.SeverityMedium:
		return "3", "3"
	default:
		return "3", "4"
	}
}
