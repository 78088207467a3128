package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/ceylo/agents"
	"github.com/lexcodex/ceylo/trip"
)

type conversationMsg struct {
	conv *agents.Conversation
	note string
}

type turnResultMsg struct {
	result *agents.TurnResult
	conv   *agents.Conversation
	err    error
}

type errMsg struct{ err error }

// Init loads or creates the conversation.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, openConversationCmd(m.ctx, m.service, m.conversationID))
}

// Update applies incoming Bubble Tea messages to the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	case conversationMsg:
		m = m.applyConversation(msg.conv)
		if msg.note != "" {
			m = m.addSystemMessage(msg.note)
		}
		return m, nil
	case turnResultMsg:
		return m.handleTurnResult(msg)
	case errMsg:
		return m.addSystemMessage("Error: " + msg.err.Error()), nil
	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleResize adjusts the feed and input layout on terminal resize events.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	statusBarHeight := 1
	promptBarHeight := 1
	quickReplyHeight := 1
	feedHeight := max(1, msg.Height-statusBarHeight-promptBarHeight-quickReplyHeight)

	if !m.ready {
		v := viewport.New(msg.Width, feedHeight)
		m.feed = &v
		m.ready = true
	} else {
		m.feed.Width = msg.Width
		m.feed.Height = feedHeight
	}
	m.input.Width = max(10, msg.Width-4)
	return m.refreshFeedContent(), nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+d":
		m.quitting = true
		return m, tea.Quit
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		*m.feed, cmd = m.feed.Update(msg)
		m.autoFollow = m.feed.AtBottom()
		return m, cmd
	}
	if idx, ok := quickReplyIndex(msg); ok {
		if m.sending || idx >= len(m.quickReplies) {
			return m, nil
		}
		return m.send(m.quickReplies[idx])
	}
	if msg.Type == tea.KeyEnter {
		if m.sending {
			return m, nil
		}
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		m.input.SetValue("")
		if strings.HasPrefix(value, "/") {
			name, args := parseCommand(value)
			return handleCommand(m, name, args)
		}
		return m.send(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// quickReplyIndex maps alt+1..alt+9 onto a zero-based quick-reply index.
func quickReplyIndex(msg tea.KeyMsg) (int, bool) {
	if !msg.Alt || msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '9' {
		return 0, false
	}
	return int(r - '1'), true
}

// send shows the user turn right away and runs the exchange in the
// background. Input is ignored until the result arrives.
func (m Model) send(text string) (Model, tea.Cmd) {
	if m.conversationID == "" {
		return m.addSystemMessage("Conversation is still loading."), nil
	}
	m.sending = true
	m.sentAt = time.Now()
	m.quickReplies = nil
	m.messages = append(m.messages, Message{Role: RoleUser, Text: text, Timestamp: time.Now()})
	m = m.refreshFeedContent()
	return m, tea.Batch(m.spinner.Tick, sendCmd(m.ctx, m.service, m.conversationID, text))
}

func (m Model) handleTurnResult(msg turnResultMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.statusBar.latency = time.Since(m.sentAt)
	if msg.err != nil {
		if errors.Is(msg.err, agents.ErrBusy) {
			return m.addSystemMessage("Still working on the previous message."), nil
		}
		return m.addSystemMessage("Error: " + msg.err.Error()), nil
	}
	if msg.conv != nil {
		m = m.applyConversation(msg.conv)
	} else if msg.result != nil {
		m = m.applyResult(msg.result)
	}
	if msg.result != nil {
		m.quickReplies = msg.result.QuickReplies
		if msg.result.Failure != agents.FailureNone {
			m.statusBar.lastFailure = string(msg.result.Failure)
		} else {
			m.statusBar.lastFailure = ""
		}
	}
	return m, nil
}

// applyResult appends the assistant reply from a turn result when the
// conversation itself could not be reloaded.
func (m Model) applyResult(result *agents.TurnResult) Model {
	now := time.Now()
	m.messages = append(m.messages, Message{
		Role:      RoleAssistant,
		Text:      result.Reply,
		Failed:    result.Failure != agents.FailureNone,
		Timestamp: now,
	})
	if result.Plan != nil {
		m.messages = append(m.messages, Message{Role: RoleAssistant, Text: agents.PlanIntroMessage, Plan: result.Plan, Timestamp: now})
	}
	m.profile = result.Profile
	m.phase = result.Phase
	m.statusBar.phase = result.Phase
	m.statusBar.missing = len(result.Profile.MissingSlots())
	return m.refreshFeedContent()
}

func openConversationCmd(ctx context.Context, svc chatService, id string) tea.Cmd {
	return func() tea.Msg {
		if id != "" {
			conv, err := svc.Get(ctx, id)
			if err == nil {
				return conversationMsg{conv: conv, note: resumeNote(conv)}
			}
			if !errors.Is(err, agents.ErrConversationNotFound) {
				return errMsg{err: err}
			}
		}
		conv, err := svc.Create(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return conversationMsg{conv: conv}
	}
}

func resumeNote(conv *agents.Conversation) string {
	if conv.Phase() == trip.PhaseFinalized {
		return fmt.Sprintf("Resumed %s. This trip is planned, use /new to start another.", conv.ID)
	}
	return fmt.Sprintf("Resumed %s.", conv.ID)
}

func sendCmd(ctx context.Context, svc chatService, id, text string) tea.Cmd {
	return func() tea.Msg {
		result, err := svc.Send(ctx, id, text)
		if err != nil {
			return turnResultMsg{err: err}
		}
		// The turn already happened. Without a fresh conversation the
		// result alone is applied.
		conv, err := svc.Get(ctx, id)
		if err != nil {
			return turnResultMsg{result: result}
		}
		return turnResultMsg{result: result, conv: conv}
	}
}

func resetCmd(ctx context.Context, svc chatService, id string) tea.Cmd {
	return func() tea.Msg {
		conv, err := svc.Reset(ctx, id)
		if err != nil {
			return errMsg{err: err}
		}
		return conversationMsg{conv: conv, note: "Started a new trip."}
	}
}
