package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/ceylo/trip"
)

// CommandHandler mutates model state for /commands typed in the prompt bar.
type CommandHandler func(Model, []string) (Model, tea.Cmd)

// Command describes a slash command entry.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     CommandHandler
}

var commandRegistry = map[string]Command{}

func init() {
	registerCommand(Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Description: "Show available commands",
		Usage:       "/help",
		Handler:     handleHelp,
	})
	registerCommand(Command{
		Name:        "new",
		Aliases:     []string{"reset"},
		Description: "Forget this trip and start over",
		Usage:       "/new",
		Handler:     handleNew,
	})
	registerCommand(Command{
		Name:        "profile",
		Aliases:     []string{"p"},
		Description: "Show what Ceylo knows about the trip",
		Usage:       "/profile",
		Handler:     handleProfile,
	})
	registerCommand(Command{
		Name:        "plan",
		Description: "Show the itinerary again",
		Usage:       "/plan",
		Handler:     handlePlan,
	})
	registerCommand(Command{
		Name:        "quit",
		Aliases:     []string{"q", "exit"},
		Description: "Leave the chat",
		Usage:       "/quit",
		Handler:     handleQuit,
	})
}

func registerCommand(cmd Command) {
	commandRegistry[cmd.Name] = cmd
}

// parseCommand splits the slash-prefixed input into command and args.
func parseCommand(input string) (string, []string) {
	parts := strings.Fields(input)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil
	}
	return strings.ToLower(strings.TrimPrefix(parts[0], "/")), parts[1:]
}

// handleCommand finds the registered command, falling back to aliases.
func handleCommand(m Model, name string, args []string) (Model, tea.Cmd) {
	if name == "" {
		return m, nil
	}
	cmd, ok := lookupCommand(name)
	if !ok {
		return m.addSystemMessage(fmt.Sprintf("Unknown command: %s", name)), nil
	}
	return cmd.Handler(m, args)
}

func lookupCommand(name string) (Command, bool) {
	if cmd, ok := commandRegistry[name]; ok {
		return cmd, true
	}
	for _, registered := range commandRegistry {
		for _, alias := range registered.Aliases {
			if alias == name {
				return registered, true
			}
		}
	}
	return Command{}, false
}

func handleHelp(m Model, _ []string) (Model, tea.Cmd) {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range names {
		cmd := commandRegistry[name]
		fmt.Fprintf(&b, "  %-10s %s\n", cmd.Usage, cmd.Description)
	}
	b.WriteString("Quick replies: alt+1..alt+9")
	return m.addSystemMessage(b.String()), nil
}

func handleNew(m Model, _ []string) (Model, tea.Cmd) {
	if m.conversationID == "" {
		return m, nil
	}
	return m, resetCmd(m.ctx, m.service, m.conversationID)
}

func handleProfile(m Model, _ []string) (Model, tea.Cmd) {
	return m.addSystemMessage(describeProfile(m.profile)), nil
}

func handlePlan(m Model, _ []string) (Model, tea.Cmd) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Plan != nil {
			m.messages = append(m.messages, Message{Role: RoleAssistant, Text: "Your plan:", Plan: m.messages[i].Plan})
			return m.refreshFeedContent(), nil
		}
	}
	if m.phase == trip.PhaseFinalized {
		return m.addSystemMessage("No plan was produced for this trip. Use /new to try again."), nil
	}
	return m.addSystemMessage("No plan yet. Keep telling Ceylo about the trip."), nil
}

func handleQuit(m Model, _ []string) (Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}
