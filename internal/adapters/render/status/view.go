package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/parley/internal/application"
	"github.com/bnema/parley/internal/domain"
)

const defaultHistoryLines = 3

type RenderOptions struct {
	// Start is the simulation start; elapsed time is shown relative to it.
	Start time.Time
	// HistoryLines caps the utterances shown per conversation.
	HistoryLines int
	// Name maps agent ids to display names. Nil shows raw ids.
	Name func(domain.AgentID) string
	// Width clips rendered lines; zero leaves them whole.
	Width int
}

func (o RenderOptions) name(id domain.AgentID) string {
	if o.Name == nil {
		return string(id)
	}
	return o.Name(id)
}

func renderView(snap application.Snapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("parley"),
		s.header.Render(headerLine(snap, opts)),
		rateLine(snap.Rate, snap.At, s),
	}

	if len(snap.Conversations) == 0 && len(snap.Monologues) == 0 {
		lines = append(lines, s.section.Render(s.empty.Render("Nobody is talking.")))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, conv := range snap.Conversations {
		lines = append(lines, s.section.Render(renderConversation(conv, snap.At, opts, s)))
	}

	if len(snap.Monologues) > 0 {
		parts := make([]string, 0, len(snap.Monologues))
		for _, m := range snap.Monologues {
			parts = append(parts, s.monologue.Render(fmt.Sprintf("%s (to nobody): %s", opts.name(m.AgentID), sanitize(m.Text))))
		}
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func headerLine(snap application.Snapshot, opts RenderOptions) string {
	parts := []string{}
	if !opts.Start.IsZero() {
		parts = append(parts, fmt.Sprintf("t=%.1fs", snap.At.Sub(opts.Start).Seconds()))
	}
	parts = append(parts,
		fmt.Sprintf("tick %d", snap.Tick),
		fmt.Sprintf("conversations: %d", len(snap.Conversations)),
		fmt.Sprintf("queued: %d conversation / %d survival / %d idle",
			snap.Pending[domain.PriorityConversation.Label()],
			snap.Pending[domain.PrioritySurvival.Label()],
			snap.Pending[domain.PriorityIdle.Label()]),
		fmt.Sprintf("in flight: %d", snap.InFlight),
	)
	return strings.Join(parts, "  ")
}

func rateLine(rate application.RateView, now time.Time, s styles) string {
	var leftPercent float64
	if rate.Capacity > 0 {
		leftPercent = clampPercent(float64(rate.Remaining) / float64(rate.Capacity) * 100)
	}

	label := s.rateKey.Render("rate:")
	bar := renderProgressBar(100-leftPercent, 24, s)
	meta := lipgloss.NewStyle().Foreground(interpolateColor(leftPercent, 0, 100)).
		Render(fmt.Sprintf("%d/%d left", rate.Remaining, rate.Capacity))

	return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", bar, " ", meta, " ", s.header.Render(formatResetRelative(rate.ResetsAt, now)))
}

func renderConversation(conv application.ConversationView, now time.Time, opts RenderOptions, s styles) string {
	names := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		names = append(names, opts.name(p))
	}

	parts := []string{
		s.conversation.Render(fmt.Sprintf("conversation %s (%s)", shortID(conv.ID), conv.State)),
		s.detail.Render("with: " + strings.Join(names, ", ")),
	}

	history := conv.History
	limit := opts.HistoryLines
	if limit <= 0 {
		limit = defaultHistoryLines
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	for _, u := range history {
		parts = append(parts, s.history.Render(fmt.Sprintf("  %s: %s", opts.name(u.AgentID), sanitize(u.Text))))
	}

	if sp := conv.Speaker; sp != nil {
		total := sp.EndsAt.Sub(sp.StartedAt)
		var done float64 = 100
		if total > 0 {
			done = clampPercent(now.Sub(sp.StartedAt).Seconds() / total.Seconds() * 100)
		}
		parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top,
			s.speaker.Render("> "+opts.name(sp.AgentID)+": "),
			s.detail.Render(sanitize(sp.Text)),
			" ",
			renderProgressBar(done, 10, s),
		))
	}

	if len(conv.Queue) > 0 {
		queued := make([]string, 0, len(conv.Queue))
		for _, q := range conv.Queue {
			queued = append(queued, opts.name(q))
		}
		parts = append(parts, s.header.Render("next: "+strings.Join(queued, ", ")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderProgressBar fills the part of the bar that is still left.
func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	leftFraction := (100.0 - used) / 100.0
	filled := int(math.Round(float64(width) * leftFraction))
	filled = max(0, min(filled, width))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatResetRelative(resetsAt, now time.Time) string {
	if resetsAt.IsZero() {
		return ""
	}
	if now.IsZero() {
		return "(resets " + resetsAt.Format(time.TimeOnly) + ")"
	}
	if !resetsAt.After(now) {
		return "(resets now)"
	}

	remaining := resetsAt.Sub(now)
	return fmt.Sprintf("(resets in %ds)", int(math.Ceil(remaining.Seconds())))
}

func interpolateColor(value, lo, hi float64) lipgloss.Color {
	if hi == lo {
		return lipgloss.Color("255")
	}

	normalized := (value - lo) / (hi - lo)
	normalized = max(0, min(normalized, 1))

	// ANSI 256 greyscale ramp, faded at lo and bright at hi
	baseColor := 240.0
	targetColor := 255.0
	return lipgloss.Color(fmt.Sprintf("%d", int(baseColor+(targetColor-baseColor)*normalized)))
}

func shortID(id domain.ConversationID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// sanitize keeps provider text on one line and strips control characters.
func sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, text)
}
