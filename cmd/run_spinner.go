package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickProgressMsg reports how far a realtime run has come.
type tickProgressMsg struct {
	tick          int
	conversations int
}

type runFinishedMsg struct {
	err error
}

// runProgressModel shows a spinner with the scenario's tick count and how
// many conversations are live.
type runProgressModel struct {
	spinner       spinner.Model
	scenario      string
	total         int
	tick          int
	conversations int
	start         tea.Cmd
	err           error
	finished      bool
}

func newRunProgressModel(scenario string, total int, start tea.Cmd) runProgressModel {
	return runProgressModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
		),
		scenario: scenario,
		total:    total,
		start:    start,
	}
}

func (m runProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

func (m runProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickProgressMsg:
		m.tick = msg.tick
		m.conversations = msg.conversations
		return m, nil
	case runFinishedMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m runProgressModel) View() string {
	if m.finished {
		return ""
	}
	return fmt.Sprintf("%s %s  tick %d/%d  conversations: %d",
		m.spinner.View(), m.scenario, m.tick, m.total, m.conversations)
}

// runWithProgress executes run behind a progress spinner on output. run gets
// a callback to report each tick. The program only quits once run returns;
// interrupts reach run through ctx.
func runWithProgress(ctx context.Context, output io.Writer, scenario string, total int, run func(ctx context.Context, report func(tick, conversations int)) error) error {
	var p *tea.Program
	report := func(tick, conversations int) {
		p.Send(tickProgressMsg{tick: tick, conversations: conversations})
	}
	start := func() tea.Msg {
		return runFinishedMsg{err: run(ctx, report)}
	}

	p = tea.NewProgram(
		newRunProgressModel(scenario, total, start),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithoutSignalHandler(),
	)

	final, err := p.Run()
	if err != nil {
		return err
	}

	m, ok := final.(runProgressModel)
	if !ok {
		return fmt.Errorf("unexpected final progress model type %T", final)
	}
	return m.err
}
