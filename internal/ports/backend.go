package ports

import (
	"context"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

// SessionBackend is the capability set the orchestrator needs from a
// terminal multiplexer. Handles are opaque; callers never interpret them.
type SessionBackend interface {
	// CreateSession starts a detached session whose initial window is
	// named windowName and returns the handle of its root pane.
	CreateSession(ctx context.Context, session, windowName string) (domain.PaneHandle, error)
	KillSession(ctx context.Context, session string) error
	HasSession(ctx context.Context, session string) (bool, error)
	// NewWindow appends a window to the session and returns the handle of
	// its root pane.
	NewWindow(ctx context.Context, session, name string) (domain.PaneHandle, error)
	// Split carves a new pane out of the given one. sizePercent is the
	// share the new pane takes, 0 meaning an even split.
	Split(ctx context.Context, pane domain.PaneHandle, direction domain.SplitDirection, sizePercent int) (domain.PaneHandle, error)
	SendText(ctx context.Context, pane domain.PaneHandle, text string) error
	// IsIdle reports whether the pane's foreground process is back at a
	// shell prompt.
	IsIdle(ctx context.Context, pane domain.PaneHandle) (bool, error)
	List(ctx context.Context, session string) ([]domain.PaneHandle, error)
	SelectPane(ctx context.Context, pane domain.PaneHandle) error
}
