package swarm

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies one specialist work unit in a handoff pipeline.
type Role string

const (
	RoleFetcher  Role = "fetcher"
	RoleAnalyzer Role = "analyzer"
	RoleTicketer Role = "ticketer"
	RoleReporter Role = "reporter"
)

// Severity classification for a service's error patterns.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity maps free-form severity text to the closed enum. Anything
// unrecognized parses as unknown, which never crosses a ticket threshold.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// WorkItem is one unit of fan-out work: a service plus the raw log context
// discovery attached to it. Immutable once created.
type WorkItem struct {
	Service    string
	ErrorCount int
	LogExcerpt string
	WindowFrom string
	WindowTo   string
}

// DecisionKind drives the state machine transition after a unit invocation.
type DecisionKind int

const (
	DecisionContinue DecisionKind = iota
	DecisionComplete
	DecisionFail
)

// Decision is the output of one work-unit invocation.
type Decision struct {
	Kind DecisionKind
	Text string // final text for Complete
	Err  error  // reason for Fail
}

func Continue() Decision            { return Decision{Kind: DecisionContinue} }
func Complete(text string) Decision { return Decision{Kind: DecisionComplete, Text: text} }
func Fail(err error) Decision       { return Decision{Kind: DecisionFail, Err: err} }

func Failf(format string, a ...any) Decision {
	return Decision{Kind: DecisionFail, Err: fmt.Errorf(format, a...)}
}

// Action records one externally visible step a pipeline took.
type Action struct {
	Role   Role
	Detail string
	At     time.Time
}

// Context is the per-pipeline mutable state threaded through the state
// machine. It is exclusively owned by the single pipeline processing one
// WorkItem; nothing here needs locking.
type Context struct {
	Item WorkItem

	LogContext string
	Analysis   string
	Severity   Severity
	TicketID   string
	ReportKey  string

	Iterations int
	Handoffs   int
	Actions    []Action
}

// Record appends an action taken by a role.
func (c *Context) Record(role Role, format string, a ...any) {
	c.Actions = append(c.Actions, Action{
		Role:   role,
		Detail: fmt.Sprintf(format, a...),
		At:     time.Now().UTC(),
	})
}

// Outcome of a completed pipeline.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartialFailure
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial_failure"
	default:
		return "failure"
	}
}

// PipelineResult is the terminal record for one WorkItem. Created exactly
// once per item, immutable afterwards.
type PipelineResult struct {
	Service   string
	Outcome   Outcome
	Severity  Severity
	Analysis  string
	TicketID  string
	ReportKey string
	Err       string
	Elapsed   time.Duration
}
