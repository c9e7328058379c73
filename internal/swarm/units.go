package swarm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LogSource fetches formatted log context for one service. Implemented by
// the Datadog client.
type LogSource interface {
	FetchLogs(ctx context.Context, service, from, to string) (string, error)
}

// Reasoning is the opaque output of the external reasoning engine: an
// act/complete decision plus free-form analysis text and a severity label.
type Reasoning struct {
	Decision string
	Severity string
	Text     string
}

// Reasoner is the external reasoning engine. Implemented by the reasoning
// client; treated as a black box here.
type Reasoner interface {
	Reason(ctx context.Context, role Role, service, input string) (Reasoning, error)
}

// TicketCreator opens an incident ticket. Implemented by the ServiceNow
// client.
type TicketCreator interface {
	CreateTicket(ctx context.Context, title, description string, severity Severity) (string, error)
}

// ReportStore durably persists a text blob at a key. Implemented by the
// report store.
type ReportStore interface {
	Put(ctx context.Context, key, content string) error
}

// RenderFunc renders the per-service report from the pipeline context.
type RenderFunc func(*Context) string

// WorkUnit is one role-specific participant in a pipeline. Invoke must
// surface failures as Decision.Fail, never as a panic.
type WorkUnit interface {
	Role() Role
	Invoke(ctx context.Context, pc *Context) Decision
}

// Roster is the fixed set of work units a pipeline draws from.
type Roster map[Role]WorkUnit

// NewRoster builds the standard four-unit roster.
func NewRoster(logs LogSource, reasoner Reasoner, tickets TicketCreator, reports ReportStore, render RenderFunc) Roster {
	return Roster{
		RoleFetcher:  &fetcher{logs: logs},
		RoleAnalyzer: &analyzer{reasoner: reasoner},
		RoleTicketer: &ticketer{tickets: tickets},
		RoleReporter: &reporter{reports: reports, render: render},
	}
}

// fetcher pulls fresh log context for the service. Discovery already
// attached an excerpt to the item; the fetcher widens it to a full
// per-service query and falls back to the excerpt if the query comes back
// empty.
type fetcher struct {
	logs LogSource
}

func (f *fetcher) Role() Role { return RoleFetcher }

func (f *fetcher) Invoke(ctx context.Context, pc *Context) Decision {
	formatted, err := f.logs.FetchLogs(ctx, pc.Item.Service, pc.Item.WindowFrom, pc.Item.WindowTo)
	if err != nil {
		return Failf("fetch logs for %s: %w", pc.Item.Service, err)
	}

	if strings.TrimSpace(formatted) == "" {
		formatted = pc.Item.LogExcerpt
	}
	if strings.TrimSpace(formatted) == "" {
		return Failf("no log context for %s", pc.Item.Service)
	}

	pc.LogContext = formatted
	pc.Record(RoleFetcher, "fetched log context (%d bytes)", len(formatted))
	return Continue()
}

// analyzer asks the reasoning engine for a diagnosis of the log context.
type analyzer struct {
	reasoner Reasoner
}

func (a *analyzer) Role() Role { return RoleAnalyzer }

func (a *analyzer) Invoke(ctx context.Context, pc *Context) Decision {
	out, err := a.reasoner.Reason(ctx, RoleAnalyzer, pc.Item.Service, pc.LogContext)
	if err != nil {
		return Failf("reason about %s: %w", pc.Item.Service, err)
	}

	if pc.Analysis != "" {
		pc.Analysis += "\n\n"
	}
	pc.Analysis += out.Text
	pc.Severity = ParseSeverity(out.Severity)
	pc.Record(RoleAnalyzer, "severity %s", pc.Severity)

	if out.Decision == "complete" {
		return Complete(out.Text)
	}
	return Continue()
}

// ticketer opens an incident for significant issues. A retried invocation
// on the same context must not double-create: an existing ticket ID short
// circuits.
type ticketer struct {
	tickets TicketCreator
}

func (t *ticketer) Role() Role { return RoleTicketer }

func (t *ticketer) Invoke(ctx context.Context, pc *Context) Decision {
	if pc.TicketID != "" {
		return Continue()
	}

	title := fmt.Sprintf("[%s] %s severity errors detected", pc.Item.Service, pc.Severity)
	id, err := t.tickets.CreateTicket(ctx, title, ticketDescription(pc), pc.Severity)
	if err != nil {
		return Failf("create ticket for %s: %w", pc.Item.Service, err)
	}

	pc.TicketID = id
	pc.Record(RoleTicketer, "ticket created: %s", id)
	return Continue()
}

func ticketDescription(pc *Context) string {
	var sb strings.Builder
	sb.WriteString(pc.Analysis)
	if pc.LogContext != "" {
		sb.WriteString("\n\nRelated logs:\n")
		sb.WriteString(tail(pc.LogContext, 20))
	}
	return sb.String()
}

// tail returns the last n lines of text.
func tail(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// reporter renders the service report and persists it.
type reporter struct {
	reports ReportStore
	render  RenderFunc
}

func (r *reporter) Role() Role { return RoleReporter }

func (r *reporter) Invoke(ctx context.Context, pc *Context) Decision {
	key := fmt.Sprintf("%s/%s.md", pc.Item.Service, time.Now().UTC().Format("20060102T150405Z"))
	if err := r.reports.Put(ctx, key, r.render(pc)); err != nil {
		return Failf("store report for %s: %w", pc.Item.Service, err)
	}

	pc.ReportKey = key
	pc.Record(RoleReporter, "report stored: %s", key)
	return Continue()
}
