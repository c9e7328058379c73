// Package workflow is the top-level driver: discover affected services,
// fan them out through the swarm coordinator, aggregate the results and
// persist the summary.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/natsbus"
	"github.com/mtzanidakis/vigla/internal/report"
	"github.com/mtzanidakis/vigla/internal/reportstore"
	"github.com/mtzanidakis/vigla/internal/store"
	"github.com/mtzanidakis/vigla/internal/swarm"
)

// Discovery finds the affected services for a time window. A discovery
// failure aborts the run; there is nothing to fan out over.
type Discovery interface {
	Discover(ctx context.Context, from, to string) ([]swarm.WorkItem, error)
}

// Notifier delivers the run overview to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Report is the in-memory outcome of one run. It is always returned when
// the run got past discovery, even if persisting the summary failed;
// PersistErr carries that failure separately.
type Report struct {
	RunID      string
	StartedAt  time.Time
	WindowFrom string
	WindowTo   string
	Summary    report.Summary
	SummaryKey string
	PersistErr string
	Elapsed    time.Duration
}

type Runner struct {
	discovery   Discovery
	coordinator *swarm.Coordinator
	reports     swarm.ReportStore
	runs        *store.Store
	events      *natsbus.Client
	notifier    Notifier
	cfg         config.WorkflowConfig
}

// New wires the driver. Store, events client and notifier are optional;
// a nil value disables that concern without affecting the run itself.
func New(discovery Discovery, coordinator *swarm.Coordinator, reports swarm.ReportStore, runs *store.Store, events *natsbus.Client, notifier Notifier, cfg config.WorkflowConfig) *Runner {
	return &Runner{
		discovery:   discovery,
		coordinator: coordinator,
		reports:     reports,
		runs:        runs,
		events:      events,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// Run executes one full scan. The only error it returns is a discovery
// failure; every later failure is folded into the Report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	runID := uuid.New().String()
	start := time.Now()

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	slog.Info("run started", "run", runID, "from", r.cfg.WindowFrom, "to", r.cfg.WindowTo)
	r.recordStart(runID)
	r.publish(natsbus.TopicRunEvents(runID), "run_started", map[string]any{
		"run_id": runID,
		"from":   r.cfg.WindowFrom,
		"to":     r.cfg.WindowTo,
	})

	items, err := r.discovery.Discover(ctx, r.cfg.WindowFrom, r.cfg.WindowTo)
	if err != nil {
		r.recordFailure(runID, err)
		r.publish(natsbus.TopicRunEvents(runID), "run_failed", map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("discovery: %w", err)
	}

	results := r.coordinator.Run(ctx, items)
	for _, res := range results {
		r.publish(natsbus.TopicPipelineEvents(runID), "pipeline_completed", map[string]any{
			"run_id":   runID,
			"service":  res.Service,
			"outcome":  res.Outcome.String(),
			"severity": res.Severity.String(),
			"ticket":   res.TicketID,
		})
	}

	summary := report.Build(results)

	out := &Report{
		RunID:      runID,
		StartedAt:  start.UTC(),
		WindowFrom: r.cfg.WindowFrom,
		WindowTo:   r.cfg.WindowTo,
		Summary:    summary,
		Elapsed:    time.Since(start),
	}

	// Persist the summary even for an empty window; a run that found
	// nothing still leaves a record. Persistence failure never erases
	// the computed results.
	key := reportstore.SummaryKey(start)
	content := summary.Markdown(start, r.cfg.WindowFrom, r.cfg.WindowTo, out.Elapsed)
	if err := r.reports.Put(ctx, key, content); err != nil {
		slog.Error("summary persistence failed", "run", runID, "key", key, "error", err)
		out.PersistErr = err.Error()
	} else {
		out.SummaryKey = key
	}

	r.recordFinish(runID, out, results)
	r.publish(natsbus.TopicRunEvents(runID), "run_completed", map[string]any{
		"run_id":    runID,
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"partial":   summary.PartialFailures,
		"failed":    summary.Failed,
		"ticketed":  summary.Ticketed,
	})
	r.notify(ctx, out)

	slog.Info("run completed", "run", runID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"partial", summary.PartialFailures,
		"failed", summary.Failed,
		"ticketed", summary.Ticketed,
		"elapsed", out.Elapsed)
	return out, nil
}

func (r *Runner) recordStart(runID string) {
	if r.runs == nil {
		return
	}
	err := r.runs.CreateRun(&store.Run{
		ID:         runID,
		WindowFrom: r.cfg.WindowFrom,
		WindowTo:   r.cfg.WindowTo,
	})
	if err != nil {
		slog.Error("failed to record run start", "run", runID, "error", err)
	}
}

func (r *Runner) recordFailure(runID string, cause error) {
	if r.runs == nil {
		return
	}
	err := r.runs.FinishRun(&store.Run{
		ID:     runID,
		Status: "failed",
		Error:  cause.Error(),
	})
	if err != nil {
		slog.Error("failed to record run failure", "run", runID, "error", err)
	}
}

func (r *Runner) recordFinish(runID string, out *Report, results []swarm.PipelineResult) {
	if r.runs == nil {
		return
	}
	if err := r.runs.SaveResults(runID, results); err != nil {
		slog.Error("failed to save run results", "run", runID, "error", err)
	}
	err := r.runs.FinishRun(&store.Run{
		ID:         runID,
		Status:     "completed",
		Total:      out.Summary.Total,
		Succeeded:  out.Summary.Succeeded,
		Partial:    out.Summary.PartialFailures,
		Failed:     out.Summary.Failed,
		Ticketed:   out.Summary.Ticketed,
		SummaryKey: out.SummaryKey,
		Error:      out.PersistErr,
	})
	if err != nil {
		slog.Error("failed to record run finish", "run", runID, "error", err)
	}
}

func (r *Runner) publish(topic, eventType string, data map[string]any) {
	if r.events == nil {
		return
	}
	event := map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	if err := r.events.PublishJSON(topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "type", eventType, "error", err)
	}
}

func (r *Runner) notify(ctx context.Context, out *Report) {
	if r.notifier == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan %s finished: %d services, %d ok, %d partial, %d failed, %d ticketed.",
		out.RunID[:8], out.Summary.Total, out.Summary.Succeeded,
		out.Summary.PartialFailures, out.Summary.Failed, out.Summary.Ticketed)
	if out.SummaryKey != "" {
		fmt.Fprintf(&sb, "\nSummary: %s", out.SummaryKey)
	}
	if out.PersistErr != "" {
		fmt.Fprintf(&sb, "\nSummary persistence failed: %s", out.PersistErr)
	}

	if err := r.notifier.Notify(ctx, sb.String()); err != nil {
		slog.Warn("run notification failed", "run", out.RunID, "error", err)
	}
}
