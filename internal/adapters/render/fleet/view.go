package fleet

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/agent-fleet-cli/internal/domain"
)

const elapsedRounding = time.Millisecond

// Render produces the human-readable fleet status view.
func Render(view FleetView, opts RenderOptions) (string, error) {
	return renderView(view, opts, newStyles()), nil
}

func renderView(view FleetView, _ RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Agent Fleet Status"),
		s.header.Render(sessionLine(view)),
	}

	if len(view.Agents) == 0 {
		lines = append(lines, s.empty.Render("No agents configured."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, agent := range view.Agents {
		lines = append(lines, s.section.Render(renderAgent(agent, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionLine(view FleetView) string {
	state := "down"
	if view.SessionLive {
		state = fmt.Sprintf("up (profile %d)", view.Profile)
	}
	return fmt.Sprintf("session %s: %s, agents: %d", view.SessionName, state, len(view.Agents))
}

func renderAgent(agent AgentView, s styles) string {
	parts := []string{
		s.agent.Render(fmt.Sprintf("%s %s", string(agent.Record.ID), statusBadge(agent.Record.Status, s))),
		s.detail.Render(fmt.Sprintf("branch: %s", agent.Record.Branch)),
		s.detail.Render(fmt.Sprintf("workspace: %s", agent.Record.WorkspacePath)),
		s.detail.Render(paneLine(agent.Pane)),
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func statusBadge(status domain.AgentStatus, s styles) string {
	label := fmt.Sprintf("[%s]", status)
	switch status {
	case domain.StatusActive:
		return s.active.Render(label)
	case domain.StatusBusy:
		return s.busy.Render(label)
	case domain.StatusError:
		return s.failed.Render(label)
	default:
		return s.inactive.Render(label)
	}
}

func paneLine(pane domain.PaneHandle) string {
	if pane == "" {
		return "pane: none"
	}
	return fmt.Sprintf("pane: %s", pane)
}

// RenderReport produces the per-target dispatch summary. Every target is
// listed with its own outcome; the footer carries the aggregate verdict.
func RenderReport(report domain.DispatchReport) string {
	s := newStyles()

	lines := []string{s.title.Render("Dispatch Report")}
	for _, result := range report.Results {
		lines = append(lines, resultLine(result, s))
	}

	verdict := s.success.Render("all targets delivered")
	if !report.Success {
		verdict = s.failed.Render("partial failure")
	}
	lines = append(lines, s.header.Render(fmt.Sprintf("targets: %d, %s", len(report.Results), verdict)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func resultLine(result domain.DeliveryResult, s styles) string {
	outcome := string(result.Outcome)
	switch result.Outcome {
	case domain.OutcomeDelivered:
		outcome = s.success.Render(outcome)
	case domain.OutcomeTimedOut:
		outcome = s.busy.Render(outcome)
	case domain.OutcomeFailed:
		outcome = s.failed.Render(fmt.Sprintf("%s (%s)", outcome, result.Reason))
	}

	return fmt.Sprintf("  %s\t%s\tattempts: %d\telapsed: %s",
		s.agent.Render(string(result.AgentID)), outcome, result.Attempts, result.Elapsed.Round(elapsedRounding))
}
