// Package tmux implements the session backend over the tmux binary.
// Every invocation goes through a single run helper that injects the -S
// flag when a dedicated socket is configured, so commands can never land
// on the wrong server by accident. Pane handles are tmux pane ids (%N),
// which stay stable for the pane's lifetime regardless of layout changes.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/agent-fleet-cli/internal/domain"
	"github.com/bnema/agent-fleet-cli/internal/ports"
)

const paneIDFormat = "#{pane_id}"

// idleCommands are the foreground commands that count as "back at the
// prompt". A pane running anything else is considered busy.
var idleCommands = map[string]struct{}{
	"bash": {},
	"zsh":  {},
	"fish": {},
	"sh":   {},
	"dash": {},
	"ksh":  {},
}

type execFn func(ctx context.Context, args ...string) (string, error)

type Server struct {
	socketPath string
	exec       execFn
}

var _ ports.SessionBackend = (*Server)(nil)

// NewServer returns a Server for the given socket path. An empty path
// targets the default tmux server.
func NewServer(socketPath string) *Server {
	return &Server{socketPath: socketPath, exec: runTmux}
}

func runTmux(ctx context.Context, args ...string) (string, error) {
	command := exec.CommandContext(ctx, "tmux", args...)
	output, err := command.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// run executes one tmux subcommand, prepending the socket flag.
func (s *Server) run(ctx context.Context, args ...string) (string, error) {
	if s.socketPath != "" {
		args = append([]string{"-S", s.socketPath}, args...)
	}
	return s.exec(ctx, args...)
}

func (s *Server) CreateSession(ctx context.Context, session, windowName string) (domain.PaneHandle, error) {
	output, err := s.run(ctx, "new-session", "-d", "-s", session, "-n", windowName, "-P", "-F", paneIDFormat)
	if err != nil {
		return "", fmt.Errorf("create session %q: %w", session, err)
	}
	return domain.PaneHandle(strings.TrimSpace(output)), nil
}

// KillSession treats an already-gone session or a stopped server as
// success: both mean the session is not running, which is the goal.
func (s *Server) KillSession(ctx context.Context, session string) error {
	_, err := s.run(ctx, "kill-session", "-t", session)
	if err != nil {
		if isBenignKillError(err) {
			return nil
		}
		return fmt.Errorf("kill session %q: %w", session, err)
	}
	return nil
}

func isBenignKillError(err error) bool {
	message := err.Error()
	return strings.Contains(message, "can't find session") ||
		strings.Contains(message, "no server running") ||
		strings.Contains(message, "server exited unexpectedly")
}

func (s *Server) HasSession(ctx context.Context, session string) (bool, error) {
	_, err := s.run(ctx, "has-session", "-t", session)
	if err != nil {
		if isBenignKillError(err) {
			return false, nil
		}
		// has-session exits 1 for unknown sessions without a distinctive
		// message on some tmux versions.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("probe session %q: %w", session, err)
	}
	return true, nil
}

func (s *Server) NewWindow(ctx context.Context, session, name string) (domain.PaneHandle, error) {
	output, err := s.run(ctx, "new-window", "-t", session+":", "-n", name, "-P", "-F", paneIDFormat)
	if err != nil {
		return "", fmt.Errorf("new window %q: %w", name, err)
	}
	return domain.PaneHandle(strings.TrimSpace(output)), nil
}

func (s *Server) Split(ctx context.Context, pane domain.PaneHandle, direction domain.SplitDirection, sizePercent int) (domain.PaneHandle, error) {
	args := []string{"split-window", "-t", string(pane)}
	if direction == domain.SplitHorizontal {
		args = append(args, "-h")
	} else {
		args = append(args, "-v")
	}
	if sizePercent > 0 {
		args = append(args, "-p", fmt.Sprintf("%d", sizePercent))
	}
	args = append(args, "-P", "-F", paneIDFormat)

	output, err := s.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("split pane %s: %w", pane, err)
	}
	return domain.PaneHandle(strings.TrimSpace(output)), nil
}

// SendText sends the literal text followed by Enter. The -l flag stops
// tmux from interpreting the text as key names.
func (s *Server) SendText(ctx context.Context, pane domain.PaneHandle, text string) error {
	if _, err := s.run(ctx, "send-keys", "-t", string(pane), "-l", text); err != nil {
		return fmt.Errorf("send text to pane %s: %w", pane, err)
	}
	if _, err := s.run(ctx, "send-keys", "-t", string(pane), "Enter"); err != nil {
		return fmt.Errorf("send enter to pane %s: %w", pane, err)
	}
	return nil
}

func (s *Server) IsIdle(ctx context.Context, pane domain.PaneHandle) (bool, error) {
	output, err := s.run(ctx, "display-message", "-t", string(pane), "-p", "#{pane_current_command}")
	if err != nil {
		return false, fmt.Errorf("query pane %s: %w", pane, err)
	}

	_, idle := idleCommands[strings.TrimSpace(output)]
	return idle, nil
}

// List returns every pane handle in the session. tmux orders the output by
// window index and pane position on screen, not by creation; callers that
// need creation order must sort by the %N id themselves.
func (s *Server) List(ctx context.Context, session string) ([]domain.PaneHandle, error) {
	output, err := s.run(ctx, "list-panes", "-s", "-t", session, "-F", paneIDFormat)
	if err != nil {
		return nil, fmt.Errorf("list panes of %q: %w", session, err)
	}

	var handles []domain.PaneHandle
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			handles = append(handles, domain.PaneHandle(line))
		}
	}
	return handles, nil
}

// SelectPane raises the pane's window and gives the pane focus.
func (s *Server) SelectPane(ctx context.Context, pane domain.PaneHandle) error {
	if _, err := s.run(ctx, "select-window", "-t", string(pane)); err != nil {
		return fmt.Errorf("select window of pane %s: %w", pane, err)
	}
	if _, err := s.run(ctx, "select-pane", "-t", string(pane)); err != nil {
		return fmt.Errorf("select pane %s: %w", pane, err)
	}
	return nil
}
