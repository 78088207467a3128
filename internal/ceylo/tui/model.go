package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/ceylo/agents"
	runtimesvc "github.com/lexcodex/ceylo/internal/ceylo/runtime"
	"github.com/lexcodex/ceylo/trip"
)

// chatService is the slice of the conversation manager the UI drives.
type chatService interface {
	Create(ctx context.Context) (*agents.Conversation, error)
	Get(ctx context.Context, id string) (*agents.Conversation, error)
	Send(ctx context.Context, id, text string) (*agents.TurnResult, error)
	Reset(ctx context.Context, id string) (*agents.Conversation, error)
}

// Options configure the Bubble Tea program.
type Options struct {
	// ConversationID resumes a stored conversation. Empty starts a new one.
	ConversationID string
}

// Run launches the chat UI against the runtime's conversation manager.
func Run(ctx context.Context, rt *runtimesvc.Runtime, opts Options) error {
	if rt == nil {
		return fmt.Errorf("runtime is required")
	}
	m := NewModel(ctx, rt.Manager, NewStatusBar(rt.Config.OllamaModel), opts)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// Model renders one conversation as a scrollable feed with a prompt bar, a
// quick-reply row and a status bar.
type Model struct {
	ctx     context.Context
	service chatService

	conversationID string
	messages       []Message
	quickReplies   []string
	profile        trip.Profile
	phase          trip.Phase

	feed      *viewport.Model
	input     textinput.Model
	spinner   spinner.Model
	statusBar StatusBar

	width  int
	height int
	ready  bool

	sending    bool
	sentAt     time.Time
	autoFollow bool
	quitting   bool
}

// Role marks who produced a feed entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one rendered feed entry.
type Message struct {
	Role      Role
	Text      string
	Plan      *trip.Plan
	Failed    bool
	Timestamp time.Time
}

// NewModel builds the UI model. The conversation is created or loaded by
// Init.
func NewModel(ctx context.Context, service chatService, status StatusBar, opts Options) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	input := textinput.New()
	input.Placeholder = "Tell Ceylo about your trip, or /help"
	input.CharLimit = 2000
	input.Focus()

	v := viewport.New(0, 0)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorSecondary)

	return Model{
		ctx:            ctx,
		service:        service,
		conversationID: opts.ConversationID,
		feed:           &v,
		input:          input,
		spinner:        sp,
		statusBar:      status,
		autoFollow:     true,
	}
}

// ConversationID reports the conversation currently shown.
func (m Model) ConversationID() string {
	return m.conversationID
}

// Sending reports whether a turn is in flight.
func (m Model) Sending() bool {
	return m.sending
}

// Messages returns the rendered feed entries.
func (m Model) Messages() []Message {
	return append([]Message(nil), m.messages...)
}

// QuickReplies returns the options offered for the last assistant reply.
func (m Model) QuickReplies() []string {
	return append([]string(nil), m.quickReplies...)
}

func messagesFromTurns(turns []trip.Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		role := RoleAssistant
		if t.Speaker == trip.SpeakerUser {
			role = RoleUser
		}
		out = append(out, Message{Role: role, Text: t.Text, Plan: t.Plan, Failed: t.Failed, Timestamp: t.At})
	}
	return out
}

func quickRepliesFromTurns(turns []trip.Turn, phase trip.Phase) []string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == trip.SpeakerAssistant {
			return trip.Offered(turns[i].Category, phase)
		}
	}
	return nil
}

// applyConversation replaces the feed with the conversation's stored turns.
func (m Model) applyConversation(conv *agents.Conversation) Model {
	turns := conv.Turns()
	m.conversationID = conv.ID
	m.messages = messagesFromTurns(turns)
	m.quickReplies = quickRepliesFromTurns(turns, conv.Phase())
	m.profile = conv.Profile()
	m.phase = conv.Phase()
	m.statusBar.conversation = conv.ID
	m.statusBar.phase = m.phase
	m.statusBar.missing = len(m.profile.MissingSlots())
	return m.refreshFeedContent()
}

func (m Model) addSystemMessage(text string) Model {
	m.messages = append(m.messages, Message{Role: RoleSystem, Text: text, Timestamp: time.Now()})
	return m.refreshFeedContent()
}

// refreshFeedContent ensures the viewport reflects the latest messages.
func (m Model) refreshFeedContent() Model {
	if !m.ready || m.feed == nil {
		return m
	}
	m.feed.SetContent(m.renderMessages())
	if m.autoFollow {
		m.feed.GotoBottom()
	}
	return m
}

func describeProfile(p trip.Profile) string {
	var b strings.Builder
	b.WriteString("Trip so far:\n")
	for _, slot := range trip.Slots() {
		value := p.Get(slot)
		if value == "" {
			value = "?"
		}
		fmt.Fprintf(&b, "  %s: %s\n", slot, value)
	}
	return strings.TrimRight(b.String(), "\n")
}
