package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/ceylo/agents"
	"github.com/lexcodex/ceylo/framework"
	"github.com/lexcodex/ceylo/internal/testutil"
	"github.com/lexcodex/ceylo/trip"
)

const (
	kandyReply    = `{"resp":"Lovely! What's your budget?","extractedState":{"destination":"Kandy","duration":5},"ui":"budget"}`
	finalizeReply = `{"resp":"Great, generating your plan!","extractedState":{"budget":"Standard"},"ui":"finalize"}`
	planReply     = `{"trip_plan":{"destination":"Kandy","duration":"5 days","route":{"roads":["A1"]},"itinerary":[{"day":1,"activities":[{"name":"Knuckles trail","hidden_gem":true}]}]}}`
)

func newTestModel(t *testing.T, replies ...string) (Model, *agents.Manager) {
	t.Helper()
	manager := agents.NewManager(&agents.Environment{
		Model:     testutil.NewScriptedModel(replies...),
		Telemetry: framework.NopTelemetry{},
	}, nil, nil)
	m := NewModel(context.Background(), manager, NewStatusBar("test-model"), Options{})
	m = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = step(t, m, openConversationCmd(m.ctx, manager, "")())
	return m, manager
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func stepCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// drain runs cmd and feeds every resulting turn message back into the model.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			m = drain(t, m, c)
		}
		return m
	}
	switch msg.(type) {
	case turnResultMsg, conversationMsg, errMsg:
		return step(t, m, msg)
	}
	return m
}

func typeText(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestModelShowsGreeting(t *testing.T) {
	m, _ := newTestModel(t)
	require.NotEmpty(t, m.ConversationID())
	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, agents.GreetingMessage, msgs[0].Text)
	assert.Contains(t, m.View(), "Ayubowan")
}

func TestModelSendIgnoresInputWhileSending(t *testing.T) {
	m, _ := newTestModel(t, kandyReply)

	m, cmd := typeText(t, m, "5 days in Kandy")
	require.NotNil(t, cmd)
	assert.True(t, m.Sending())
	require.Len(t, m.Messages(), 2)
	assert.Contains(t, m.View(), "thinking")

	m, extra := typeText(t, m, "again")
	assert.Nil(t, extra)
	require.Len(t, m.Messages(), 2)

	m = drain(t, m, cmd)
	assert.False(t, m.Sending())
	msgs := m.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Lovely! What's your budget?", msgs[2].Text)
	assert.Equal(t, []string{"Economy", "Standard", "Luxury"}, m.QuickReplies())
	assert.Equal(t, "Kandy", m.profile.Destination)
}

func TestModelQuickReplyAndPlan(t *testing.T) {
	m, manager := newTestModel(t, kandyReply, finalizeReply, planReply)
	m, cmd := typeText(t, m, "5 days in Kandy")
	m = drain(t, m, cmd)

	m, cmd = stepCmd(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}, Alt: true})
	require.NotNil(t, cmd)
	m = drain(t, m, cmd)

	conv, err := manager.Get(context.Background(), m.ConversationID())
	require.NoError(t, err)
	turns := conv.Turns()
	assert.Equal(t, "Standard", turns[3].Text)
	assert.Equal(t, trip.PhaseFinalized, m.phase)
	assert.Empty(t, m.QuickReplies())

	msgs := m.Messages()
	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Plan)
	assert.Equal(t, agents.PlanIntroMessage, last.Text)
	assert.True(t, strings.Contains(RenderMessage(last, 100), "Knuckles trail"))
}

// flakyService fails Get once a turn has been sent.
type flakyService struct {
	*agents.Manager
	sent bool
}

func (f *flakyService) Send(ctx context.Context, id, text string) (*agents.TurnResult, error) {
	f.sent = true
	return f.Manager.Send(ctx, id, text)
}

func (f *flakyService) Get(ctx context.Context, id string) (*agents.Conversation, error) {
	if f.sent {
		return nil, errors.New("store offline")
	}
	return f.Manager.Get(ctx, id)
}

func TestModelKeepsTurnWhenReloadFails(t *testing.T) {
	manager := agents.NewManager(&agents.Environment{
		Model:     testutil.NewScriptedModel(kandyReply),
		Telemetry: framework.NopTelemetry{},
	}, nil, nil)
	svc := &flakyService{Manager: manager}
	m := NewModel(context.Background(), svc, NewStatusBar("test-model"), Options{})
	m = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = step(t, m, openConversationCmd(m.ctx, svc, "")())

	m, cmd := typeText(t, m, "5 days in Kandy")
	m = drain(t, m, cmd)
	assert.False(t, m.Sending())
	msgs := m.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Lovely! What's your budget?", msgs[2].Text)
	assert.Equal(t, []string{"Economy", "Standard", "Luxury"}, m.QuickReplies())
	assert.Equal(t, "Kandy", m.profile.Destination)
}

func TestQuickRepliesHideFinalizeAfterPlan(t *testing.T) {
	turns := []trip.Turn{{Speaker: trip.SpeakerAssistant, Text: "Ready?", Category: trip.CategoryFinalize}}
	assert.Equal(t, []string{"Yes Generate", "Change Info"}, quickRepliesFromTurns(turns, trip.PhaseGathering))
	assert.Empty(t, quickRepliesFromTurns(turns, trip.PhaseFinalized))
}

func TestModelSlashCommands(t *testing.T) {
	m, _ := newTestModel(t, kandyReply)
	m, cmd := typeText(t, m, "Kandy")
	m = drain(t, m, cmd)

	m, _ = typeText(t, m, "/profile")
	msgs := m.Messages()
	assert.Equal(t, RoleSystem, msgs[len(msgs)-1].Role)
	assert.Contains(t, msgs[len(msgs)-1].Text, "destination: Kandy")

	m, cmd = typeText(t, m, "/new")
	require.NotNil(t, cmd)
	m = drain(t, m, cmd)
	assert.True(t, m.profile.IsEmpty())
	msgs = m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, agents.GreetingMessage, msgs[0].Text)

	m, _ = typeText(t, m, "/bogus")
	msgs = m.Messages()
	assert.Contains(t, msgs[len(msgs)-1].Text, "Unknown command")
}

func TestParseCommand(t *testing.T) {
	name, args := parseCommand("/Plan now")
	assert.Equal(t, "plan", name)
	assert.Equal(t, []string{"now"}, args)
	name, _ = parseCommand("hello")
	assert.Empty(t, name)
	cmd, ok := lookupCommand("q")
	require.True(t, ok)
	assert.Equal(t, "quit", cmd.Name)
}
