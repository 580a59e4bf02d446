package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

const (
	defaultMaxAttempts   = 3
	defaultRetryDelay    = 2 * time.Second
	defaultPollInterval  = 250 * time.Millisecond
	defaultMaxConcurrent = 10
)

// DeliveryPolicy is the retry and backoff policy applied to every target of
// a dispatch. It is a plain value so tests inject zero-delay variants.
type DeliveryPolicy struct {
	// Timeout is the per-attempt wait for the target pane to go idle.
	Timeout time.Duration
	// MaxAttempts is the total number of sends before giving up.
	MaxAttempts int
	// RetryDelay is the first backoff step; it doubles per retry.
	RetryDelay   time.Duration
	PollInterval time.Duration
	// MaxConcurrent caps the fleet-wide number of in-flight deliveries.
	MaxConcurrent int
}

func (p DeliveryPolicy) withDefaults() DeliveryPolicy {
	if p.Timeout <= 0 {
		p.Timeout = domain.DefaultCommandTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = defaultRetryDelay
	}
	if p.PollInterval <= 0 {
		p.PollInterval = defaultPollInterval
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = defaultMaxConcurrent
	}
	return p
}

// Delay returns the backoff before the given retry, 1-based, doubling each
// time.
func (p DeliveryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	return p.RetryDelay << (retry - 1)
}

// DispatchService delivers commands to agent panes. It never mutates the
// descriptor it is given; resolution works from a snapshot taken up front.
type DispatchService struct {
	backend ports.SessionBackend
	policy  DeliveryPolicy
	logger  *logrus.Logger
	clock   ports.Clock
}

func NewDispatchService(backend ports.SessionBackend, policy DeliveryPolicy, logger *logrus.Logger, clock ports.Clock) *DispatchService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &DispatchService{
		backend: backend,
		policy:  policy.withDefaults(),
		logger:  logger,
		clock:   clock,
	}
}

type resolvedTarget struct {
	id   domain.AgentID
	pane domain.PaneHandle
}

// Dispatch resolves the request against a snapshot of the descriptor, runs
// one delivery task per target under the fleet-wide concurrency bound, and
// reports once every task has terminated.
func (s *DispatchService) Dispatch(ctx context.Context, descriptor *domain.SessionDescriptor, req domain.DispatchRequest) (domain.DispatchReport, error) {
	targets, err := resolveTargets(descriptor.Clone(), req.Targets)
	if err != nil {
		return domain.DispatchReport{}, err
	}

	if !req.Priority.Valid() {
		req.Priority = domain.PriorityNormal
	}

	policy := s.policy
	if req.Timeout > 0 {
		policy.Timeout = req.Timeout
	}

	// Composed once; retries resend the identical line.
	command := domain.ComposeCommand(req)

	limit := len(targets)
	if limit > policy.MaxConcurrent {
		limit = policy.MaxConcurrent
	}
	sem := newPrioritySemaphore(limit)

	s.logger.WithFields(logrus.Fields{
		"targets":  len(targets),
		"priority": req.Priority,
		"dry_run":  req.DryRun,
	}).Debug("dispatch starting")

	results := make([]domain.DeliveryResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target resolvedTarget) {
			defer wg.Done()
			results[i] = s.deliver(ctx, sem, target, command, req, policy)
		}(i, target)
	}
	wg.Wait()

	return domain.NewDispatchReport(results), nil
}

// resolveTargets maps the selector onto live panes. Broadcast targets come
// back in ascending agent id order so reports are deterministic.
func resolveTargets(d *domain.SessionDescriptor, sel domain.TargetSelector) ([]resolvedTarget, error) {
	if sel.Broadcast {
		if d == nil || len(d.Panes) == 0 {
			return nil, domain.ErrNoTargets
		}
		ids := d.LiveAgents()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		targets := make([]resolvedTarget, 0, len(ids))
		for _, id := range ids {
			handle, _ := d.HandleFor(id)
			targets = append(targets, resolvedTarget{id: id, pane: handle})
		}
		return targets, nil
	}

	if sel.Agent == "" {
		return nil, domain.ErrNoTargets
	}
	handle, ok := d.HandleFor(sel.Agent)
	if !ok {
		return nil, fmt.Errorf("%w: agent %s has no live pane", domain.ErrTargetMissing, sel.Agent)
	}
	return []resolvedTarget{{id: sel.Agent, pane: handle}}, nil
}

// deliver runs the full send/poll/retry loop for one target. Every exit
// path records outcome, attempt count and elapsed time.
func (s *DispatchService) deliver(ctx context.Context, sem *prioritySemaphore, target resolvedTarget, command string, req domain.DispatchRequest, policy DeliveryPolicy) domain.DeliveryResult {
	start := s.clock.Now()
	finish := func(outcome domain.Outcome, attempts int, reason string) domain.DeliveryResult {
		return domain.DeliveryResult{
			AgentID:  target.id,
			Outcome:  outcome,
			Attempts: attempts,
			Reason:   reason,
			Elapsed:  s.clock.Now().Sub(start),
		}
	}

	if req.DryRun {
		return finish(domain.OutcomeDelivered, 0, "")
	}

	if err := sem.Acquire(ctx, req.Priority.Rank()); err != nil {
		return finish(domain.OutcomeFailed, 0, "cancelled")
	}
	defer sem.Release()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := s.backend.SendText(ctx, target.pane, command); err != nil {
			if ctx.Err() != nil {
				return finish(domain.OutcomeFailed, attempt, "cancelled")
			}
			return finish(domain.OutcomeFailed, attempt, err.Error())
		}

		idle, err := s.waitIdle(ctx, target.pane, policy)
		if err != nil {
			if ctx.Err() != nil {
				return finish(domain.OutcomeFailed, attempt, "cancelled")
			}
			return finish(domain.OutcomeFailed, attempt, err.Error())
		}
		if idle {
			return finish(domain.OutcomeDelivered, attempt, "")
		}
		if attempt == policy.MaxAttempts {
			break
		}

		s.logger.WithFields(logrus.Fields{
			"agent":   target.id,
			"attempt": attempt,
		}).Debug("pane still busy, backing off before retry")
		if !sleepCtx(ctx, policy.Delay(attempt)) {
			return finish(domain.OutcomeFailed, attempt, "cancelled")
		}
	}

	return finish(domain.OutcomeTimedOut, policy.MaxAttempts, "")
}

// waitIdle polls the pane until it reports idle or the attempt window
// closes. The bool is false on timeout.
func (s *DispatchService) waitIdle(ctx context.Context, pane domain.PaneHandle, policy DeliveryPolicy) (bool, error) {
	deadline := time.NewTimer(policy.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(policy.PollInterval)
	defer ticker.Stop()

	for {
		idle, err := s.backend.IsIdle(ctx, pane)
		if err != nil {
			return false, fmt.Errorf("poll pane idle: %w", err)
		}
		if idle {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

// sleepCtx waits for d unless ctx ends first, reporting whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
