// Package git implements the worktree manager over the git binary. All
// commands target a specific repository directory via "git -C <dir>",
// so there is no ambient current-directory dependence.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

type execFn func(ctx context.Context, args ...string) (string, error)

type Repository struct {
	dir  string
	exec execFn
}

var _ ports.WorktreeManager = (*Repository)(nil)

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	repo := &Repository{dir: dir}
	repo.exec = repo.runGit
	return repo
}

// runGit executes a git command against this repository. Stderr is
// captured separately and folded into error messages.
func (r *Repository) runGit(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (r *Repository) IsRepository(ctx context.Context) bool {
	_, err := r.exec(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

func (r *Repository) Root(ctx context.Context) (string, error) {
	output, err := r.exec(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("resolve repository toplevel: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// BranchExists checks for a local branch ref. A failed verify on an
// otherwise healthy repository means "no such branch", not an error.
func (r *Repository) BranchExists(ctx context.Context, branch string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := r.exec(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// CreateBranch branches off the current HEAD without checking out.
func (r *Repository) CreateBranch(ctx context.Context, branch string) error {
	if _, err := r.exec(ctx, "branch", branch); err != nil {
		return fmt.Errorf("create branch %q: %w", branch, err)
	}
	return nil
}

func (r *Repository) AddWorktree(ctx context.Context, path, branch string) error {
	if _, err := r.exec(ctx, "worktree", "add", path, branch); err != nil {
		return fmt.Errorf("add worktree at %s: %w", path, err)
	}
	return nil
}

func (r *Repository) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if _, err := r.exec(ctx, args...); err != nil {
		return fmt.Errorf("remove worktree at %s: %w", path, err)
	}
	return nil
}

// WorktreeDirty reports uncommitted changes in the working copy at path.
// git applies -C flags in order, so the absolute worktree path here
// overrides the repository dir the runner injects.
func (r *Repository) WorktreeDirty(ctx context.Context, path string) (bool, error) {
	output, err := r.exec(ctx, "-C", path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status of worktree %s: %w", path, err)
	}
	return strings.TrimSpace(output) != "", nil
}

// Merge merges branch into the working copy at path. The theirs/ours
// strategies map onto the recursive merge's -X option, so they only bias
// conflicting hunks instead of discarding whole sides.
func (r *Repository) Merge(ctx context.Context, path, branch string, strategy domain.MergeStrategy) error {
	args := []string{"-C", path, "merge", "--no-edit"}
	switch strategy {
	case domain.MergeTheirs:
		args = append(args, "-X", "theirs")
	case domain.MergeOurs:
		args = append(args, "-X", "ours")
	}
	args = append(args, branch)

	if _, err := r.exec(ctx, args...); err != nil {
		return fmt.Errorf("merge %q into worktree %s: %w", branch, path, err)
	}
	return nil
}

func (r *Repository) AbortMerge(ctx context.Context, path string) error {
	if _, err := r.exec(ctx, "-C", path, "merge", "--abort"); err != nil {
		return fmt.Errorf("abort merge in worktree %s: %w", path, err)
	}
	return nil
}

// ListWorktrees parses "git worktree list --porcelain" output. Entries
// are blank-line separated blocks of "worktree <path>", "HEAD <sha>" and
// either "branch refs/heads/<name>" or "detached".
func (r *Repository) ListWorktrees(ctx context.Context) ([]ports.Worktree, error) {
	output, err := r.exec(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseWorktreeList(output), nil
}

func parseWorktreeList(output string) []ports.Worktree {
	var worktrees []ports.Worktree
	var current *ports.Worktree

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				worktrees = append(worktrees, *current)
			}
			current = &ports.Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}

	return worktrees
}
