package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title        lipgloss.Style
	header       lipgloss.Style
	conversation lipgloss.Style
	speaker      lipgloss.Style
	detail       lipgloss.Style
	history      lipgloss.Style
	monologue    lipgloss.Style
	section      lipgloss.Style
	empty        lipgloss.Style
	rateKey      lipgloss.Style
	barBracket   lipgloss.Style
	barFill      lipgloss.Style
	barEmpty     lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:        lipgloss.NewStyle().Bold(true),
		header:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		conversation: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		speaker:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		detail:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		history:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		monologue:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		section:      lipgloss.NewStyle().MarginTop(1),
		empty:        lipgloss.NewStyle().Faint(true),
		rateKey:      lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		barBracket:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:      lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:     lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}
