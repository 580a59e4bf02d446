package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

const markerFileName = ".fleet-agent.yaml"

// workspaceMarker is the scaffold file dropped into a provisioned worktree
// so tooling inside it can tell which agent owns the directory.
type workspaceMarker struct {
	Agent         string    `yaml:"agent"`
	Branch        string    `yaml:"branch"`
	ProvisionedAt time.Time `yaml:"provisioned_at"`
}

// WorkspaceService provisions and tears down per-agent worktrees. All of
// its operation sequences run strictly sequentially.
type WorkspaceService struct {
	vcs    ports.WorktreeManager
	state  ports.SessionStateRepository
	logger *logrus.Logger
	clock  ports.Clock
}

func NewWorkspaceService(vcs ports.WorktreeManager, state ports.SessionStateRepository, logger *logrus.Logger, clock ports.Clock) *WorkspaceService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &WorkspaceService{vcs: vcs, state: state, logger: logger, clock: clock}
}

// Provision creates the agent's isolated working copy on its dedicated
// branch. It is idempotent: an existing worktree on the expected branch only
// has its scaffold refreshed. A worktree on any other branch is a conflict,
// never overwritten.
func (s *WorkspaceService) Provision(ctx context.Context, agent domain.AgentRecord) error {
	if !s.vcs.IsRepository(ctx) {
		return fmt.Errorf("%w: agent %s needs a git repository to provision in", domain.ErrNotRepository, agent.ID)
	}
	target, err := s.workspaceTarget(ctx, agent)
	if err != nil {
		return err
	}

	worktrees, err := s.vcs.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}
	for _, wt := range worktrees {
		if filepath.Clean(wt.Path) != target {
			continue
		}
		if wt.Branch != agent.Branch {
			return fmt.Errorf("%w: agent %s workspace %s is checked out on %q, want %q",
				domain.ErrWorkspaceConflict, agent.ID, agent.WorkspacePath, wt.Branch, agent.Branch)
		}
		s.logger.WithFields(logrus.Fields{
			"agent": agent.ID,
			"path":  agent.WorkspacePath,
		}).Debug("workspace already provisioned")
		return s.writeScaffold(target, agent)
	}

	// A stray directory at the target is not ours to clobber.
	if _, statErr := os.Stat(target); statErr == nil {
		return fmt.Errorf("%w: agent %s path %s exists but is not a registered worktree",
			domain.ErrWorkspaceConflict, agent.ID, agent.WorkspacePath)
	}

	exists, err := s.vcs.BranchExists(ctx, agent.Branch)
	if err != nil {
		return fmt.Errorf("check branch %q: %w", agent.Branch, err)
	}
	if !exists {
		if err := s.vcs.CreateBranch(ctx, agent.Branch); err != nil {
			return fmt.Errorf("create branch %q: %w", agent.Branch, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: create workspace parent: %w", domain.ErrFilesystem, err)
	}
	if err := s.vcs.AddWorktree(ctx, target, agent.Branch); err != nil {
		return fmt.Errorf("add worktree for agent %s: %w", agent.ID, err)
	}

	if err := s.writeScaffold(target, agent); err != nil {
		// Leave no partial workspace behind.
		if removeErr := s.vcs.RemoveWorktree(ctx, target, true); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
		return fmt.Errorf("scaffold agent %s workspace: %w", agent.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"agent":  agent.ID,
		"branch": agent.Branch,
		"path":   agent.WorkspacePath,
	}).Info("workspace provisioned")
	return nil
}

// Teardown removes the agent's working copy. Non-inactive agents are
// refused unless force is set, in which case the session mapping entry is
// dropped before the worktree goes away.
func (s *WorkspaceService) Teardown(ctx context.Context, agent domain.AgentRecord, sessionName string, force bool) error {
	if agent.Status != domain.StatusInactive {
		if !force {
			return fmt.Errorf("%w: agent %s is %s", domain.ErrAgentBusy, agent.ID, agent.Status)
		}
		if err := s.unbindSession(ctx, agent.ID, sessionName); err != nil {
			return err
		}
	}

	if !s.vcs.IsRepository(ctx) {
		return fmt.Errorf("%w: agent %s has no repository to tear down in", domain.ErrNotRepository, agent.ID)
	}
	target, err := s.workspaceTarget(ctx, agent)
	if err != nil {
		return err
	}

	worktrees, err := s.vcs.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}
	registered := false
	for _, wt := range worktrees {
		if filepath.Clean(wt.Path) == target {
			registered = true
			break
		}
	}
	if !registered {
		s.logger.WithFields(logrus.Fields{"agent": agent.ID}).Debug("no workspace to tear down")
		return nil
	}

	if err := s.vcs.RemoveWorktree(ctx, target, force); err != nil {
		return fmt.Errorf("remove worktree for agent %s: %w", agent.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"agent": agent.ID,
		"path":  agent.WorkspacePath,
	}).Info("workspace torn down")
	return nil
}

// SyncOptions control how base-branch updates propagate into a workspace.
type SyncOptions struct {
	// BaseBranch overrides the detected integration branch.
	BaseBranch string
	Strategy   domain.MergeStrategy
	Force      bool
	DryRun     bool
}

// Sync merges the integration branch into the agent's worktree so long-lived
// agent branches keep tracking the mainline. Dirty worktrees are refused
// unless force is set, and a failed merge is aborted so the worktree never
// stays mid-merge.
func (s *WorkspaceService) Sync(ctx context.Context, agent domain.AgentRecord, opts SyncOptions) error {
	if !s.vcs.IsRepository(ctx) {
		return fmt.Errorf("%w: agent %s needs a git repository to sync in", domain.ErrNotRepository, agent.ID)
	}

	base := opts.BaseBranch
	if base == "" {
		detected, err := s.baseBranch(ctx)
		if err != nil {
			return err
		}
		base = detected
	}
	if agent.Branch == base {
		s.logger.WithFields(logrus.Fields{"agent": agent.ID}).Debug("agent tracks the base branch, nothing to sync")
		return nil
	}

	target, err := s.workspaceTarget(ctx, agent)
	if err != nil {
		return err
	}
	worktrees, err := s.vcs.ListWorktrees(ctx)
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}
	registered := false
	for _, wt := range worktrees {
		if filepath.Clean(wt.Path) != target {
			continue
		}
		if wt.Branch != agent.Branch {
			return fmt.Errorf("%w: agent %s workspace %s is checked out on %q, want %q",
				domain.ErrWorkspaceConflict, agent.ID, agent.WorkspacePath, wt.Branch, agent.Branch)
		}
		registered = true
		break
	}
	if !registered {
		return fmt.Errorf("agent %s workspace %s is not provisioned", agent.ID, agent.WorkspacePath)
	}

	dirty, err := s.vcs.WorktreeDirty(ctx, target)
	if err != nil {
		return fmt.Errorf("inspect agent %s workspace: %w", agent.ID, err)
	}
	if dirty && !opts.Force {
		return fmt.Errorf("%w: agent %s: commit or stash before syncing, or use force", domain.ErrWorkspaceDirty, agent.ID)
	}

	if opts.DryRun {
		s.logger.WithFields(logrus.Fields{
			"agent": agent.ID,
			"base":  base,
		}).Info("dry run, merge skipped")
		return nil
	}

	if err := s.vcs.Merge(ctx, target, base, opts.Strategy); err != nil {
		// A half-done merge would block every later git operation in the
		// worktree.
		if abortErr := s.vcs.AbortMerge(ctx, target); abortErr != nil {
			s.logger.WithError(abortErr).Warn("abort failed merge")
		}
		return fmt.Errorf("sync agent %s from %q: %w", agent.ID, base, err)
	}

	s.logger.WithFields(logrus.Fields{
		"agent":    agent.ID,
		"base":     base,
		"strategy": opts.Strategy,
	}).Info("workspace synced")
	return nil
}

// baseBranch picks the integration branch updates flow from.
func (s *WorkspaceService) baseBranch(ctx context.Context) (string, error) {
	for _, candidate := range []string{"main", "master"} {
		exists, err := s.vcs.BranchExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check branch %q: %w", candidate, err)
		}
		if exists {
			return candidate, nil
		}
	}
	return "", errors.New("no main or master branch to sync from")
}

// Validate inspects the on-disk workspace against its manifest record.
func (s *WorkspaceService) Validate(ctx context.Context, agent domain.AgentRecord) ([]domain.ValidationIssue, error) {
	if !s.vcs.IsRepository(ctx) {
		return nil, domain.ErrNotRepository
	}
	target, err := s.workspaceTarget(ctx, agent)
	if err != nil {
		return nil, err
	}

	worktrees, err := s.vcs.ListWorktrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	var issues []domain.ValidationIssue
	var registered *ports.Worktree
	for i := range worktrees {
		if filepath.Clean(worktrees[i].Path) == target {
			registered = &worktrees[i]
			break
		}
	}
	if registered == nil {
		issues = append(issues, domain.ValidationIssue{
			Field:   "workspace",
			AgentID: agent.ID,
			Message: "worktree not provisioned",
		})
		return issues, nil
	}
	if registered.Branch != agent.Branch {
		issues = append(issues, domain.ValidationIssue{
			Field:   "workspace.branch",
			AgentID: agent.ID,
			Message: fmt.Sprintf("checked out on %q, want %q", registered.Branch, agent.Branch),
		})
	}

	marker, err := readMarker(filepath.Join(target, markerFileName))
	switch {
	case err != nil:
		issues = append(issues, domain.ValidationIssue{
			Field:   "workspace.marker",
			AgentID: agent.ID,
			Message: "scaffold marker missing or unreadable",
		})
	case marker.Agent != string(agent.ID):
		issues = append(issues, domain.ValidationIssue{
			Field:   "workspace.marker",
			AgentID: agent.ID,
			Message: fmt.Sprintf("marker owned by agent %q", marker.Agent),
		})
	}

	return issues, nil
}

// workspaceTarget resolves an agent's workspace path against the repository
// root.
func (s *WorkspaceService) workspaceTarget(ctx context.Context, agent domain.AgentRecord) (string, error) {
	root, err := s.vcs.Root(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve repository root: %w", err)
	}
	return filepath.Clean(filepath.Join(root, filepath.FromSlash(agent.WorkspacePath))), nil
}

func (s *WorkspaceService) unbindSession(ctx context.Context, id domain.AgentID, sessionName string) error {
	descriptor, err := s.state.Get(ctx, sessionName)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("load session state: %w", err)
	}

	descriptor.Unbind(id)
	if err := s.state.Put(ctx, descriptor); err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return nil
}

// writeScaffold stages the marker in a temp file and renames it into place
// so a crash never leaves a torn marker.
func (s *WorkspaceService) writeScaffold(dir string, agent domain.AgentRecord) error {
	payload, err := yaml.Marshal(workspaceMarker{
		Agent:         string(agent.ID),
		Branch:        agent.Branch,
		ProvisionedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode workspace marker: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fleet-agent-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("%w: stage workspace marker: %w", domain.ErrFilesystem, err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write workspace marker: %w", domain.ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close workspace marker: %w", domain.ErrFilesystem, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, markerFileName)); err != nil {
		return fmt.Errorf("%w: install workspace marker: %w", domain.ErrFilesystem, err)
	}
	cleanup = false
	return nil
}

func readMarker(path string) (workspaceMarker, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return workspaceMarker{}, err
	}
	var marker workspaceMarker
	if err := yaml.Unmarshal(payload, &marker); err != nil {
		return workspaceMarker{}, err
	}
	return marker, nil
}
