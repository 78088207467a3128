package tui

import (
	"fmt"
	"strings"

	"github.com/lexcodex/ceylo/trip"
)

// RenderMessage converts a feed entry into a styled block for the viewport.
func RenderMessage(msg Message, width int) string {
	var b strings.Builder
	b.WriteString(renderMessageHeader(msg))
	b.WriteString("\n")
	switch msg.Role {
	case RoleUser:
		b.WriteString(textStyle.Render(msg.Text))
	case RoleSystem:
		b.WriteString(dimStyle.Render(msg.Text))
	default:
		if msg.Failed {
			b.WriteString(warningStyle.Render(msg.Text))
		} else {
			b.WriteString(textStyle.Render(msg.Text))
		}
		if msg.Plan != nil {
			b.WriteString("\n\n")
			b.WriteString(renderPlan(msg.Plan))
		}
	}
	boxWidth := max(0, width-4)
	style := messageBoxStyle
	if msg.Role == RoleUser {
		style = userBoxStyle
	}
	return style.Width(boxWidth).Render(b.String())
}

func renderMessageHeader(msg Message) string {
	label := "Ceylo"
	switch msg.Role {
	case RoleUser:
		label = "You"
	case RoleSystem:
		label = "System"
	}
	if msg.Timestamp.IsZero() {
		return headerStyle.Render(label)
	}
	return headerStyle.Render(fmt.Sprintf("[%s] %s", msg.Timestamp.Local().Format("15:04"), label))
}

// renderPlan styles the plain-text plan rendering: section titles are bold and
// hidden gems are highlighted.
func renderPlan(plan *trip.Plan) string {
	lines := strings.Split(strings.TrimRight(trip.RenderPlan(plan), "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = planTitleStyle.Render(line)
		case isPlanSection(line):
			lines[i] = sectionHeaderStyle.Render(line)
		case strings.Contains(line, "hidden gem"):
			lines[i] = gemStyle.Render(line)
		case strings.HasPrefix(line, "  Day "):
			lines[i] = dayStyle.Render(line)
		}
	}
	return planBoxStyle.Render(strings.Join(lines, "\n"))
}

func isPlanSection(line string) bool {
	switch line {
	case "Route", "Hotels", "Transport", "Itinerary":
		return true
	}
	return false
}
