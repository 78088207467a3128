package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View composes the feed, quick-reply row, prompt bar and status bar.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready || m.feed == nil {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.feed.View(),
		m.renderQuickReplies(),
		m.renderPromptBar(),
		m.statusBar.View(m.width),
	)
}

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return welcomeStyle.Width(max(0, m.width)).Render("Loading conversation...")
	}
	rendered := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		rendered = append(rendered, RenderMessage(msg, m.width))
	}
	return strings.Join(rendered, "\n")
}

func (m Model) renderQuickReplies() string {
	if len(m.quickReplies) == 0 || m.sending {
		return ""
	}
	chips := make([]string, 0, len(m.quickReplies))
	for i, option := range m.quickReplies {
		if i >= 9 {
			break
		}
		chips = append(chips, chipStyle.Render(fmt.Sprintf("alt+%d %s", i+1, option)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...)
}

func (m Model) renderPromptBar() string {
	if m.sending {
		return promptBarStyle.Width(m.width).Render(m.spinner.View() + " Ceylo is thinking...")
	}
	hint := dimStyle.Render(" /help for commands")
	return promptBarStyle.Width(m.width).Render("> " + m.input.View() + hint)
}
