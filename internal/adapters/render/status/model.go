package status

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/parley/internal/application"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

// snapshotRenderedMsg carries the drawn snapshot back into the model.
type snapshotRenderedMsg struct {
	output string
}

// snapshotModel draws one snapshot off the update loop, then quits.
type snapshotModel struct {
	snapshot application.Snapshot
	opts     RenderOptions
	output   string
}

func newSnapshotModel(snapshot application.Snapshot, opts RenderOptions) snapshotModel {
	return snapshotModel{snapshot: snapshot, opts: opts}
}

func (m snapshotModel) Init() tea.Cmd {
	snapshot, opts := m.snapshot, m.opts
	return func() tea.Msg {
		return snapshotRenderedMsg{output: renderView(snapshot, opts, newStyles())}
	}
}

func (m snapshotModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if rendered, ok := msg.(snapshotRenderedMsg); ok {
		m.output = rendered.output
		return m, tea.Quit
	}
	return m, nil
}

// View clips every line to opts.Width when one is set.
func (m snapshotModel) View() string {
	if m.opts.Width <= 0 || m.output == "" {
		return m.output
	}
	return lipgloss.NewStyle().MaxWidth(m.opts.Width).Render(m.output)
}

// Render draws a simulation snapshot into a string.
func Render(snapshot application.Snapshot, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newSnapshotModel(snapshot, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)

	final, err := p.Run()
	if err != nil {
		return "", err
	}

	m, ok := final.(snapshotModel)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}
	return m.View(), nil
}
