package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type taskDoneMsg struct {
	err error
}

type taskSpinnerModel struct {
	spinner spinner.Model
	label   string
	task    tea.Cmd
	err     error
	done    bool
}

func newTaskSpinnerModel(label string, task tea.Cmd) taskSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return taskSpinnerModel{
		spinner: s,
		label:   label,
		task:    task,
	}
}

func (m taskSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.task)
}

func (m taskSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case taskDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m taskSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runTaskSpinner runs the task while animating a spinner on output,
// returning the task's error once it finishes.
func runTaskSpinner(ctx context.Context, output io.Writer, label string, task func(context.Context) error) error {
	taskCmd := func() tea.Msg {
		return taskDoneMsg{err: task(ctx)}
	}

	p := tea.NewProgram(
		newTaskSpinnerModel(label, taskCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(taskSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}
