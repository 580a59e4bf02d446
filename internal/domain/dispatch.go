package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank maps a priority to its scheduling weight. Higher weights acquire
// contended concurrency slots first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PriorityNormal, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// TargetSelector picks the delivery audience for one dispatch. Broadcast
// overrides Agent and addresses every agent bound to a live pane.
type TargetSelector struct {
	Agent     AgentID
	Broadcast bool
}

// DispatchRequest is one logical command invocation against the fleet.
type DispatchRequest struct {
	Targets  TargetSelector
	Command  string
	Args     []string
	WorkDir  string
	Env      map[string]string
	Timeout  time.Duration
	Priority Priority
	DryRun   bool
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
)

// DeliveryResult is the outcome for one (request, target) pair. Reason is
// set only for failed outcomes.
type DeliveryResult struct {
	AgentID  AgentID
	Outcome  Outcome
	Attempts int
	Reason   string
	Elapsed  time.Duration
}

type DispatchReport struct {
	Results []DeliveryResult
	Success bool
}

// NewDispatchReport derives the aggregate flag: success means every single
// result was delivered.
func NewDispatchReport(results []DeliveryResult) DispatchReport {
	report := DispatchReport{Results: results, Success: true}
	for _, r := range results {
		if r.Outcome != OutcomeDelivered {
			report.Success = false
			break
		}
	}
	return report
}

// ComposeCommand renders the full shell line for one dispatch: an optional
// working-directory change, environment exports in sorted key order, then
// the command itself. Values are single-quoted so the pane shell receives
// them verbatim.
func ComposeCommand(req DispatchRequest) string {
	parts := make([]string, 0, 2+len(req.Env))
	if req.WorkDir != "" {
		parts = append(parts, "cd "+shellQuote(req.WorkDir))
	}
	if len(req.Env) > 0 {
		keys := make([]string, 0, len(req.Env))
		for k := range req.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("export %s=%s", k, shellQuote(req.Env[k])))
		}
	}

	command := req.Command
	if len(req.Args) > 0 {
		command += " " + strings.Join(req.Args, " ")
	}
	parts = append(parts, command)

	return strings.Join(parts, " && ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
