// Package report renders the per-service error reports and aggregates
// pipeline results into the run summary. Everything here is pure: no
// clocks besides explicit parameters, no external calls.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/mtzanidakis/vigla/internal/swarm"
)

// Summary aggregates one run's pipeline results. Tolerant of partial
// failure: an empty or all-failed result set still produces valid counts.
type Summary struct {
	Total           int
	Succeeded       int
	PartialFailures int
	Failed          int
	Ticketed        int
	BySeverity      map[swarm.Severity]int
	Results         []swarm.PipelineResult
}

// Build aggregates results into a Summary. Pure and deterministic for a
// fixed input; arrival order of results is irrelevant to the counts.
func Build(results []swarm.PipelineResult) Summary {
	s := Summary{
		Total:      len(results),
		BySeverity: make(map[swarm.Severity]int),
		Results:    results,
	}

	for _, r := range results {
		switch r.Outcome {
		case swarm.OutcomeSuccess:
			s.Succeeded++
		case swarm.OutcomePartialFailure:
			s.PartialFailures++
		default:
			s.Failed++
		}
		if r.TicketID != "" {
			s.Ticketed++
		}
		if r.Outcome != swarm.OutcomeFailure {
			s.BySeverity[r.Severity]++
		}
	}
	return s
}

// Markdown renders the run summary document.
func (s Summary) Markdown(generated time.Time, windowFrom, windowTo string, elapsed time.Duration) string {
	var sb strings.Builder

	sb.WriteString("# Proactive Analysis Summary\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n", generated.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "Time range: %s to %s\n\n", windowFrom, windowTo)

	sb.WriteString("## Overview\n")
	fmt.Fprintf(&sb, "- Services processed: %d\n", s.Total)
	fmt.Fprintf(&sb, "- Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&sb, "- Partial failures: %d\n", s.PartialFailures)
	fmt.Fprintf(&sb, "- Failed: %d\n", s.Failed)
	fmt.Fprintf(&sb, "- Tickets created: %d\n\n", s.Ticketed)

	if s.Total == 0 {
		sb.WriteString("0 services affected in this window.\n")
		return sb.String()
	}

	sb.WriteString("## Severity Breakdown\n")
	for _, sev := range []swarm.Severity{swarm.SeverityCritical, swarm.SeverityHigh, swarm.SeverityMedium, swarm.SeverityLow} {
		fmt.Fprintf(&sb, "- %s: %d\n", title(sev.String()), s.BySeverity[sev])
	}
	sb.WriteString("\n")

	if s.Ticketed > 0 {
		sb.WriteString("## Tickets Created\n")
		for _, r := range s.Results {
			if r.TicketID != "" {
				fmt.Fprintf(&sb, "- %s: %s (%s)\n", r.TicketID, r.Service, strings.ToUpper(r.Severity.String()))
			}
		}
		sb.WriteString("\n")
	}

	var reported, failed []swarm.PipelineResult
	for _, r := range s.Results {
		if r.Outcome == swarm.OutcomeFailure {
			failed = append(failed, r)
		} else {
			reported = append(reported, r)
		}
	}

	if len(reported) > 0 {
		sb.WriteString("## Service Reports\n")
		for _, r := range reported {
			line := fmt.Sprintf("- %s [%s]", r.Service, strings.ToUpper(r.Severity.String()))
			if r.TicketID != "" {
				line += " - Ticket: " + r.TicketID
			}
			if r.Outcome == swarm.OutcomePartialFailure {
				line += " (partial: " + r.Err + ")"
			}
			sb.WriteString(line + "\n")
			if r.ReportKey != "" {
				fmt.Fprintf(&sb, "  Report: %s\n", r.ReportKey)
			}
		}
		sb.WriteString("\n")
	}

	if len(failed) > 0 {
		sb.WriteString("## Failed Services\n")
		for _, r := range failed {
			fmt.Fprintf(&sb, "- %s: %s\n", r.Service, r.Err)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Total execution time: %.2f seconds\n", elapsed.Seconds())
	return sb.String()
}

// Service renders the per-service report persisted by the reporter unit.
func Service(pc *swarm.Context) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Error Report: %s\n\n", pc.Item.Service)
	fmt.Fprintf(&sb, "Generated: %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))

	sb.WriteString("## Summary\n")
	fmt.Fprintf(&sb, "- Severity: %s\n", strings.ToUpper(pc.Severity.String()))
	fmt.Fprintf(&sb, "- Errors in window: %d\n", pc.Item.ErrorCount)
	if pc.TicketID != "" {
		fmt.Fprintf(&sb, "- Ticket: %s\n", pc.TicketID)
	}
	sb.WriteString("\n")

	if pc.Analysis != "" {
		sb.WriteString("## Analysis\n\n")
		sb.WriteString(pc.Analysis)
		sb.WriteString("\n\n")
	}

	if len(pc.Actions) > 0 {
		sb.WriteString("## Actions Taken\n")
		for _, a := range pc.Actions {
			fmt.Fprintf(&sb, "- [%s] %s\n", a.Role, a.Detail)
		}
		sb.WriteString("\n")
	}

	if pc.LogContext != "" {
		sb.WriteString("## Related Logs\n```\n")
		lines := strings.Split(pc.LogContext, "\n")
		if len(lines) > 50 {
			lines = append(lines[:50], "... (truncated)")
		}
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
