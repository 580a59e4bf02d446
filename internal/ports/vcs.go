package ports

import (
	"context"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

// Worktree is one registered working copy of the repository.
type Worktree struct {
	Path   string
	Branch string
}

// WorktreeManager is the version-control capability behind workspace
// provisioning. Paths are absolute.
type WorktreeManager interface {
	IsRepository(ctx context.Context) bool
	// Root returns the absolute path of the repository toplevel.
	Root(ctx context.Context) (string, error)
	BranchExists(ctx context.Context, branch string) (bool, error)
	// CreateBranch branches off the current HEAD without checking out.
	CreateBranch(ctx context.Context, branch string) error
	AddWorktree(ctx context.Context, path, branch string) error
	RemoveWorktree(ctx context.Context, path string, force bool) error
	ListWorktrees(ctx context.Context) ([]Worktree, error)
	// WorktreeDirty reports whether the working copy at path has
	// uncommitted changes.
	WorktreeDirty(ctx context.Context, path string) (bool, error)
	// Merge merges branch into the working copy at path.
	Merge(ctx context.Context, path, branch string, strategy domain.MergeStrategy) error
	// AbortMerge abandons an in-progress merge at path.
	AbortMerge(ctx context.Context, path string) error
}
