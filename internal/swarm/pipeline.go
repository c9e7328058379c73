package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Limits bounds one pipeline run.
type Limits struct {
	MaxIterations    int
	MaxHandoffs      int
	NodeTimeout      time.Duration
	ExecutionTimeout time.Duration
	TicketThreshold  Severity
}

// DefaultLimits mirror the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations:    20,
		MaxHandoffs:      15,
		NodeTimeout:      5 * time.Minute,
		ExecutionTimeout: 15 * time.Minute,
		TicketThreshold:  SeverityMedium,
	}
}

// Pipeline drives one handoff pipeline: a bounded sequence of work-unit
// invocations over a fresh Context, ending in exactly one PipelineResult.
type Pipeline struct {
	roster Roster
	limits Limits
}

func NewPipeline(roster Roster, limits Limits) *Pipeline {
	return &Pipeline{roster: roster, limits: limits}
}

// Run executes the state machine for one item. It never returns an error:
// every failure mode is folded into the result.
//
// Transitions: Fetcher→Analyzer always; Analyzer→Ticketer when severity
// meets the ticket threshold, else Analyzer→Reporter; Ticketer→Reporter;
// Reporter→Done. Complete from any role jumps to Done, Fail to Aborted.
func (p *Pipeline) Run(ctx context.Context, item WorkItem) PipelineResult {
	start := time.Now()
	pc := &Context{Item: item}

	ctx, cancel := context.WithTimeout(ctx, p.limits.ExecutionTimeout)
	defer cancel()

	role := RoleFetcher
	var prev Role

	for {
		if ctx.Err() != nil {
			return p.aborted(pc, start, "deadline exceeded")
		}

		// Budget checks happen before the counters move so that the
		// counters never exceed their maxima at termination.
		if pc.Iterations >= p.limits.MaxIterations {
			return p.aborted(pc, start, "budget exceeded: iterations")
		}
		pc.Iterations++

		if prev != "" && role != prev {
			if pc.Handoffs >= p.limits.MaxHandoffs {
				return p.aborted(pc, start, "budget exceeded: handoffs")
			}
			pc.Handoffs++
		}

		unit, ok := p.roster[role]
		if !ok {
			return p.aborted(pc, start, fmt.Sprintf("no work unit for role %s", role))
		}

		decision := p.invoke(ctx, unit, pc)

		switch decision.Kind {
		case DecisionComplete:
			if decision.Text != "" {
				pc.Analysis = decision.Text
			}
			return p.done(pc, start)
		case DecisionFail:
			if ctx.Err() != nil {
				return p.aborted(pc, start, "deadline exceeded")
			}
			return p.aborted(pc, start, decision.Err.Error())
		}

		prev = role
		role = p.next(role, pc)
		if role == "" {
			return p.done(pc, start)
		}
	}
}

// invoke runs one work unit under the node timeout, converting a panic
// into a failed decision so it cannot escape the state machine.
func (p *Pipeline) invoke(ctx context.Context, unit WorkUnit, pc *Context) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("work unit panicked", "role", unit.Role(), "service", pc.Item.Service, "panic", r)
			decision = Failf("%s panicked: %v", unit.Role(), r)
		}
	}()

	nctx, cancel := context.WithTimeout(ctx, p.limits.NodeTimeout)
	defer cancel()

	return unit.Invoke(nctx, pc)
}

// next is the fixed adjacency rule per role. An empty role means Done.
func (p *Pipeline) next(role Role, pc *Context) Role {
	switch role {
	case RoleFetcher:
		return RoleAnalyzer
	case RoleAnalyzer:
		if pc.Severity >= p.limits.TicketThreshold {
			return RoleTicketer
		}
		return RoleReporter
	case RoleTicketer:
		return RoleReporter
	default:
		return ""
	}
}

func (p *Pipeline) done(pc *Context, start time.Time) PipelineResult {
	return PipelineResult{
		Service:   pc.Item.Service,
		Outcome:   OutcomeSuccess,
		Severity:  pc.Severity,
		Analysis:  pc.Analysis,
		TicketID:  pc.TicketID,
		ReportKey: pc.ReportKey,
		Elapsed:   time.Since(start),
	}
}

// aborted preserves whatever analysis accumulated: with analysis text the
// result is a partial failure, without it a plain failure.
func (p *Pipeline) aborted(pc *Context, start time.Time, reason string) PipelineResult {
	outcome := OutcomeFailure
	if pc.Analysis != "" {
		outcome = OutcomePartialFailure
	}
	return PipelineResult{
		Service:   pc.Item.Service,
		Outcome:   outcome,
		Severity:  pc.Severity,
		Analysis:  pc.Analysis,
		TicketID:  pc.TicketID,
		ReportKey: pc.ReportKey,
		Err:       reason,
		Elapsed:   time.Since(start),
	}
}
