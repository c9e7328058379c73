package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator fans out one pipeline per work item across a fixed-size
// worker pool and fans the results back in. Every item yields exactly one
// result, in completion order.
type Coordinator struct {
	pipeline *Pipeline
	workers  int
}

func NewCoordinator(roster Roster, limits Limits, workers int) *Coordinator {
	if workers <= 0 {
		workers = 50
	}
	return &Coordinator{
		pipeline: NewPipeline(roster, limits),
		workers:  workers,
	}
}

// Run processes all items and returns one PipelineResult per item. When
// ctx expires, in-flight pipelines wind down cooperatively and undrawn
// items are recorded as failures; nothing is silently dropped.
func (c *Coordinator) Run(ctx context.Context, items []WorkItem) []PipelineResult {
	if len(items) == 0 {
		return nil
	}

	queue := make(chan WorkItem, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	// Buffered for every item so a result that completes just as
	// cancellation begins is still collected, never blocked on.
	out := make(chan PipelineResult, len(items))

	workers := c.workers
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if ctx.Err() != nil {
					out <- PipelineResult{
						Service: item.Service,
						Outcome: OutcomeFailure,
						Err:     "not started: deadline exceeded",
					}
					continue
				}
				out <- c.runOne(ctx, item)
			}
		}()
	}

	wg.Wait()
	close(out)

	results := make([]PipelineResult, 0, len(items))
	for r := range out {
		slog.Info("pipeline completed",
			"service", r.Service,
			"outcome", r.Outcome.String(),
			"severity", r.Severity.String(),
			"elapsed", r.Elapsed)
		results = append(results, r)
	}
	return results
}

// runOne isolates a pipeline execution: a panic anywhere inside it is
// converted into a failure result instead of taking down sibling
// pipelines or the coordinator itself.
func (c *Coordinator) runOne(ctx context.Context, item WorkItem) (result PipelineResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panicked", "service", item.Service, "panic", r)
			result = PipelineResult{
				Service: item.Service,
				Outcome: OutcomeFailure,
				Err:     fmt.Sprintf("pipeline panic: %v", r),
			}
		}
	}()

	return c.pipeline.Run(ctx, item)
}
