package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

// ApplyOptions are the per-invocation layout knobs. Zero values fall back
// to the manifest's session defaults, then to the built-in choices.
type ApplyOptions struct {
	Profile int
	Focus   int
	Main    int
	Force   bool
}

// LayoutService builds multiplexer sessions out of pure layout plans. Plan
// execution is strictly sequential because splits are order-dependent.
type LayoutService struct {
	backend ports.SessionBackend
	state   ports.SessionStateRepository
	logger  *logrus.Logger
	clock   ports.Clock
}

func NewLayoutService(backend ports.SessionBackend, state ports.SessionStateRepository, logger *logrus.Logger, clock ports.Clock) *LayoutService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &LayoutService{backend: backend, state: state, logger: logger, clock: clock}
}

// Apply tears down any previous session of the same name and builds the
// profile's plan from scratch. On a mid-sequence backend failure the
// half-built session is torn down best-effort and the original error is
// returned.
func (s *LayoutService) Apply(ctx context.Context, manifest domain.FleetManifest, opts ApplyOptions) (domain.SessionDescriptor, error) {
	agents := manifest.AgentIDs()
	if len(agents) == 0 {
		return domain.SessionDescriptor{}, fmt.Errorf("fleet has no agents")
	}

	plan, layoutOpts, err := resolvePlan(manifest, opts)
	if err != nil {
		return domain.SessionDescriptor{}, err
	}
	name := manifest.Session.Name

	if running, err := s.backend.HasSession(ctx, name); err != nil {
		return domain.SessionDescriptor{}, fmt.Errorf("%w: probe session %q: %w", domain.ErrBackendFailure, name, err)
	} else if running {
		if !opts.Force {
			return domain.SessionDescriptor{}, fmt.Errorf("session %q already running, rebuild needs force", name)
		}
		if err := s.backend.KillSession(ctx, name); err != nil {
			return domain.SessionDescriptor{}, fmt.Errorf("%w: kill previous session %q: %w", domain.ErrBackendFailure, name, err)
		}
	}

	descriptor := domain.SessionDescriptor{
		SessionName:   name,
		LayoutProfile: plan.Profile,
		AgentCount:    len(agents),
		Panes:         make(map[domain.AgentID]domain.PaneHandle, len(agents)),
		CreatedAt:     s.clock.Now().UTC(),
	}
	descriptor.MainFocusAgent = focusPosition(plan.Profile, layoutOpts)

	var focusHandle domain.PaneHandle
	created := false
	for wi, window := range plan.Windows {
		handles := make([]domain.PaneHandle, 0, len(window.Panes))
		for pi, pane := range window.Panes {
			var handle domain.PaneHandle
			var err error
			switch {
			case wi == 0 && pi == 0:
				handle, err = s.backend.CreateSession(ctx, name, window.Name)
			case pi == 0:
				handle, err = s.backend.NewWindow(ctx, name, window.Name)
			default:
				handle, err = s.backend.Split(ctx, handles[pane.SplitFrom], pane.Split, pane.SizePercent)
			}
			if err != nil {
				s.rollback(ctx, name, created)
				return domain.SessionDescriptor{}, fmt.Errorf("%w: build window %q pane %d: %w",
					domain.ErrBackendFailure, window.Name, pi, err)
			}
			created = true

			handles = append(handles, handle)
			if pane.Agent != "" {
				descriptor.Panes[pane.Agent] = handle
				if pane.Agent == plan.FocusAgent {
					focusHandle = handle
				}
			}
		}
	}

	if focusHandle != "" {
		if err := s.backend.SelectPane(ctx, focusHandle); err != nil {
			s.logger.WithError(err).Warn("select focus pane")
		}
	}

	if err := s.state.Put(ctx, descriptor); err != nil {
		s.logger.WithError(err).Warn("persist session state cache")
	}

	s.logger.WithFields(logrus.Fields{
		"session": name,
		"profile": plan.Profile,
		"agents":  len(agents),
		"windows": len(plan.Windows),
	}).Info("layout applied")
	return descriptor, nil
}

// Kill removes the live session and its cached descriptor. Killing an
// already-dead session is not an error.
func (s *LayoutService) Kill(ctx context.Context, sessionName string) error {
	if err := s.backend.KillSession(ctx, sessionName); err != nil {
		return fmt.Errorf("%w: kill session %q: %w", domain.ErrBackendFailure, sessionName, err)
	}
	if err := s.state.Delete(ctx, sessionName); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.logger.WithError(err).Warn("drop session state cache")
	}
	return nil
}

// Current returns the cached descriptor for the manifest's session,
// rebuilding it from the live backend when the cache is missing.
func (s *LayoutService) Current(ctx context.Context, manifest domain.FleetManifest, opts ApplyOptions) (domain.SessionDescriptor, error) {
	descriptor, err := s.state.Get(ctx, manifest.Session.Name)
	if err == nil {
		return descriptor, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return domain.SessionDescriptor{}, fmt.Errorf("load session state: %w", err)
	}
	return s.Rebuild(ctx, manifest, opts)
}

// Rebuild reconstructs the descriptor for a live session by replaying the
// plan against the backend's pane list. The backend lists panes by screen
// position, so the handles are put back into creation order before zipping
// them against the deterministic plan.
func (s *LayoutService) Rebuild(ctx context.Context, manifest domain.FleetManifest, opts ApplyOptions) (domain.SessionDescriptor, error) {
	name := manifest.Session.Name
	running, err := s.backend.HasSession(ctx, name)
	if err != nil {
		return domain.SessionDescriptor{}, fmt.Errorf("%w: probe session %q: %w", domain.ErrBackendFailure, name, err)
	}
	if !running {
		return domain.SessionDescriptor{}, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, name)
	}

	plan, layoutOpts, err := resolvePlan(manifest, opts)
	if err != nil {
		return domain.SessionDescriptor{}, err
	}

	handles, err := s.backend.List(ctx, name)
	if err != nil {
		return domain.SessionDescriptor{}, fmt.Errorf("%w: list session %q: %w", domain.ErrBackendFailure, name, err)
	}
	handles = orderByCreation(handles)

	var planPanes []domain.LayoutPane
	for _, window := range plan.Windows {
		planPanes = append(planPanes, window.Panes...)
	}
	if len(handles) != len(planPanes) {
		return domain.SessionDescriptor{}, fmt.Errorf("session %q has %d panes, plan expects %d: rebuild with force",
			name, len(handles), len(planPanes))
	}

	descriptor := domain.SessionDescriptor{
		SessionName:   name,
		LayoutProfile: plan.Profile,
		AgentCount:    len(manifest.Agents),
		Panes:         make(map[domain.AgentID]domain.PaneHandle, len(manifest.Agents)),
		CreatedAt:     s.clock.Now().UTC(),
	}
	descriptor.MainFocusAgent = focusPosition(plan.Profile, layoutOpts)
	for i, pane := range planPanes {
		if pane.Agent != "" {
			descriptor.Panes[pane.Agent] = handles[i]
		}
	}

	if err := s.state.Put(ctx, descriptor); err != nil {
		s.logger.WithError(err).Warn("persist rebuilt session state")
	}
	return descriptor, nil
}

// orderByCreation sorts pane handles by their %N sequence number. The
// multiplexer assigns ids monotonically at creation but lists panes by
// screen position, which diverges from build order once a plan splits an
// earlier pane after a later one exists. Handles without a numeric id keep
// their listed order at the end.
func orderByCreation(handles []domain.PaneHandle) []domain.PaneHandle {
	ordered := append([]domain.PaneHandle(nil), handles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, iok := paneSequence(ordered[i])
		sj, jok := paneSequence(ordered[j])
		if iok != jok {
			return iok
		}
		return si < sj
	})
	return ordered
}

func paneSequence(handle domain.PaneHandle) (int, bool) {
	id := strings.TrimPrefix(string(handle), "%")
	if id == string(handle) {
		return 0, false
	}
	seq, err := strconv.Atoi(id)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// resolvePlan folds manifest defaults into the options and produces the
// pure plan. Unset focus and main positions default to the first agent.
func resolvePlan(manifest domain.FleetManifest, opts ApplyOptions) (domain.LayoutPlan, domain.LayoutOptions, error) {
	profile := opts.Profile
	if profile == 0 {
		profile = manifest.Session.LayoutProfile
	}
	if profile == 0 {
		profile = domain.DefaultProfile(len(manifest.Agents))
	}

	layoutOpts := domain.LayoutOptions{Focus: opts.Focus, Main: opts.Main}
	if layoutOpts.Focus == 0 {
		layoutOpts.Focus = manifest.Session.MainFocusAgent
	}
	if layoutOpts.Focus == 0 {
		layoutOpts.Focus = 1
	}
	if layoutOpts.Main == 0 {
		layoutOpts.Main = manifest.Session.MainFocusAgent
	}
	if layoutOpts.Main == 0 {
		layoutOpts.Main = 1
	}

	plan, err := domain.PlanLayout(profile, manifest.AgentIDs(), layoutOpts)
	if err != nil {
		return domain.LayoutPlan{}, domain.LayoutOptions{}, err
	}
	return plan, layoutOpts, nil
}

// focusPosition reports which fleet position the descriptor records as the
// focused agent, 0 for profiles without that notion.
func focusPosition(profile int, opts domain.LayoutOptions) int {
	switch profile {
	case domain.ProfileFocus:
		return opts.Focus
	case domain.ProfileMainSplit:
		return opts.Main
	default:
		return 0
	}
}

// rollback tears down a half-built session. The build error stays the
// caller's result; teardown problems are only logged.
func (s *LayoutService) rollback(ctx context.Context, name string, created bool) {
	if !created {
		return
	}
	if err := s.backend.KillSession(ctx, name); err != nil {
		s.logger.WithFields(logrus.Fields{
			"session": name,
		}).WithError(err).Warn("teardown of partially built session failed")
	}
}
