package fleet

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	agent    lipgloss.Style
	detail   lipgloss.Style
	empty    lipgloss.Style
	section  lipgloss.Style
	inactive lipgloss.Style
	active   lipgloss.Style
	busy     lipgloss.Style
	failed   lipgloss.Style
	success  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		agent:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		empty:    lipgloss.NewStyle().Faint(true),
		section:  lipgloss.NewStyle().MarginTop(1),
		inactive: lipgloss.NewStyle().Faint(true),
		active:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		busy:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
}
