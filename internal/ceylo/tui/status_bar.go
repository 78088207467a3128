package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/ceylo/trip"
)

// StatusBar shows the model, conversation and how far the profile has got.
type StatusBar struct {
	model        string
	conversation string
	phase        trip.Phase
	missing      int
	latency      time.Duration
	lastFailure  string
}

// NewStatusBar labels the bar with the model name.
func NewStatusBar(model string) StatusBar {
	return StatusBar{model: model}
}

func (s StatusBar) View(width int) string {
	left := fmt.Sprintf("%s | %s | %s", s.model, truncate(s.conversation, 12), s.phase)
	if s.phase == trip.PhaseGathering {
		left += fmt.Sprintf(" (%d slots open)", s.missing)
	}
	right := ""
	if s.lastFailure != "" {
		right = "last turn: " + s.lastFailure + " | "
	}
	right += formatDuration(s.latency)
	padding := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 0 {
		padding = 0
	}
	return statusStyle.Render(left + strings.Repeat(" ", padding) + right)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:1]
	}
	return s[:n-1] + "…"
}
