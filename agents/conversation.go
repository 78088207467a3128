package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lexcodex/ceylo/framework"
	"github.com/lexcodex/ceylo/trip"
)

var (
	// ErrBusy is returned when a turn is already in flight for the conversation.
	ErrBusy = errors.New("conversation is busy")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrConversationNotFound is returned for unknown conversation ids.
	ErrConversationNotFound = errors.New("conversation not found")
)

const (
	GreetingMessage = "Ayubowan! I'm Ceylo, your AI travel assistant. I help you plan the perfect Sri Lankan trip.\n\n" +
		"Tell me:\n1. Where do you want to go?\n2. Budget?\n3. Mood (Relaxed/Adventure)?"
	FallbackMessage    = "I'm having a slight map-reading error, let's try that again"
	PlanFailureMessage = "I couldn't put your itinerary together just now. Your trip details are saved. Start a new trip when you want to try again."
	PlanIntroMessage   = "Here is your trip plan!"
)

// Failure tags a turn that fell back to a canned message.
type Failure string

const (
	FailureNone       Failure = ""
	FailureOracle     Failure = "oracle"
	FailureParse      Failure = "parse"
	FailurePlanOracle Failure = "plan_oracle"
	FailurePlanParse  Failure = "plan_parse"
)

// PlanSink receives finished plans, e.g. the map collaborator.
type PlanSink interface {
	PublishPlan(ctx context.Context, conversationID string, plan *trip.Plan) error
}

// Environment is shared by every conversation of a manager.
type Environment struct {
	Model     framework.LanguageModel
	Telemetry framework.Telemetry
	Settings  Settings
	Plans     PlanSink
}

// normalizeEnv returns a copy of env with default settings filled in.
func normalizeEnv(env *Environment) *Environment {
	if env == nil {
		return &Environment{Settings: DefaultSettings()}
	}
	out := *env
	out.Settings = out.Settings.Normalize()
	return &out
}

func (e *Environment) emit(event framework.Event) {
	if e == nil || e.Telemetry == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.Telemetry.Emit(event)
}

// TurnResult is what a caller shows after one Send.
type TurnResult struct {
	ConversationID string        `json:"conversation_id"`
	Reply          string        `json:"reply"`
	QuickReplies   []string      `json:"quick_replies"`
	Category       trip.Category `json:"ui,omitempty"`
	Phase          trip.Phase    `json:"phase"`
	Profile        trip.Profile  `json:"profile"`
	Plan           *trip.Plan    `json:"plan,omitempty"`
	Failure        Failure       `json:"failure,omitempty"`
}

// Conversation is one chat session: the profile, the turn log, the phase and
// a busy gate that admits a single in-flight turn.
type Conversation struct {
	ID string

	env  *Environment
	busy sync.Mutex
	// retired is set under busy once the conversation is deleted or replaced
	// by a reset. A retired conversation is never persisted again.
	retired bool

	mu        sync.RWMutex
	state     trip.State
	history   trip.History
	plan      *trip.Plan
	userTurns int
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation starts a conversation with the greeting turn.
func NewConversation(id string, env *Environment) *Conversation {
	env = normalizeEnv(env)
	now := time.Now().UTC()
	c := &Conversation{
		ID:        id,
		env:       env,
		createdAt: now,
		updatedAt: now,
	}
	c.history.Append(trip.Turn{Speaker: trip.SpeakerAssistant, Text: GreetingMessage, At: now})
	return c
}

// Busy reports whether a turn is in flight.
func (c *Conversation) Busy() bool {
	if c.busy.TryLock() {
		c.busy.Unlock()
		return false
	}
	return true
}

// Profile returns a copy of the current trip profile.
func (c *Conversation) Profile() trip.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Profile.Clone()
}

// Phase returns the current phase.
func (c *Conversation) Phase() trip.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Phase
}

// Plan returns the generated plan, if any.
func (c *Conversation) Plan() *trip.Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plan
}

// Turns returns the full turn log.
func (c *Conversation) Turns() []trip.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.Turns()
}

// Send runs one user turn through extraction, merge and, when the Oracle
// signals readiness, plan generation. Oracle and parse failures are reported
// through TurnResult.Failure, never as errors.
func (c *Conversation) Send(ctx context.Context, text string) (*TurnResult, error) {
	return c.send(ctx, text, nil)
}

// send runs a turn and then commit, both while the busy gate is held.
func (c *Conversation) send(ctx context.Context, text string, commit func()) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !c.busy.TryLock() {
		return nil, ErrBusy
	}
	defer c.busy.Unlock()

	c.mu.Lock()
	window := c.history.Window(c.env.Settings.HistoryWindow)
	profile := c.state.Profile.Clone()
	phase := c.state.Phase
	c.history.Append(trip.Turn{Speaker: trip.SpeakerUser, Text: text})
	c.userTurns++
	turn := c.userTurns
	c.mu.Unlock()

	c.env.emit(framework.Event{
		Type:           framework.EventTurnStart,
		ConversationID: c.ID,
		Turn:           turn,
		Message:        clip(text, 256),
	})

	result := c.runTurn(ctx, turn, profile, phase, window, text)
	if commit != nil {
		commit()
	}

	c.env.emit(framework.Event{
		Type:           framework.EventTurnFinish,
		ConversationID: c.ID,
		Turn:           turn,
		Message:        clip(result.Reply, 256),
		Metadata: map[string]interface{}{
			"ui":      result.Category.String(),
			"phase":   result.Phase.String(),
			"failure": string(result.Failure),
		},
	})
	return result, nil
}

func (c *Conversation) runTurn(ctx context.Context, turn int, profile trip.Profile, phase trip.Phase, window []trip.Turn, text string) *TurnResult {
	prompt := trip.BuildExtractionPrompt(profile, phase, window, text)
	raw, err := c.generate(ctx, turn, framework.CallExtract, prompt)
	if err != nil {
		return c.fallback(turn, FailureOracle, err, "")
	}
	parsed, err := trip.ParseExtraction(raw)
	if err != nil {
		return c.fallback(turn, FailureParse, err, raw)
	}
	for _, w := range parsed.Warnings {
		c.env.emit(framework.Event{
			Type:           framework.EventValidationWarning,
			ConversationID: c.ID,
			Turn:           turn,
			Message:        w.String(),
			Metadata:       map[string]interface{}{"field": w.Field},
		})
	}

	c.mu.Lock()
	before := c.state
	c.state = trip.Reduce(before, trip.Extracted{
		Update:   parsed.Update,
		Category: parsed.Category,
		Ready:    parsed.Ready,
	})
	finalized := before.Phase == trip.PhaseGathering && c.state.Phase == trip.PhaseFinalized
	c.history.Append(trip.Turn{Speaker: trip.SpeakerAssistant, Text: parsed.Resp, Category: parsed.Category})
	c.updatedAt = time.Now().UTC()
	result := c.resultLocked(parsed.Resp, parsed.Category)
	c.mu.Unlock()

	if !parsed.Update.IsEmpty() {
		c.env.emit(framework.Event{
			Type:           framework.EventStateMerge,
			ConversationID: c.ID,
			Turn:           turn,
			Metadata: map[string]interface{}{
				"slots":   slotNames(parsed.Update.Slots()),
				"missing": slotNames(result.Profile.MissingSlots()),
			},
		})
	}
	if !finalized {
		return result
	}
	c.env.emit(framework.Event{
		Type:           framework.EventFinalized,
		ConversationID: c.ID,
		Turn:           turn,
		Message:        "trip profile finalized",
	})
	return c.generatePlan(ctx, turn, result)
}

// generatePlan runs the second Oracle call. It happens exactly once per
// conversation, on the turn that finalizes.
func (c *Conversation) generatePlan(ctx context.Context, turn int, result *TurnResult) *TurnResult {
	c.mu.RLock()
	prompt := trip.BuildPlanPrompt(c.state.Profile, c.history.Turns())
	c.mu.RUnlock()

	raw, err := c.generate(ctx, turn, framework.CallPlan, prompt)
	if err != nil {
		return c.planFailure(turn, result, FailurePlanOracle, err)
	}
	plan, err := trip.ParsePlan(raw)
	if err != nil {
		return c.planFailure(turn, result, FailurePlanParse, err)
	}
	for _, w := range plan.Warnings {
		c.env.emit(framework.Event{
			Type:           framework.EventValidationWarning,
			ConversationID: c.ID,
			Turn:           turn,
			Message:        w.String(),
			Metadata:       map[string]interface{}{"field": w.Field, "call": string(framework.CallPlan)},
		})
	}

	c.mu.Lock()
	c.plan = plan
	c.history.Append(trip.Turn{Speaker: trip.SpeakerAssistant, Text: PlanIntroMessage, Plan: plan})
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	c.env.emit(framework.Event{
		Type:           framework.EventPlanReady,
		ConversationID: c.ID,
		Turn:           turn,
		Message:        string(plan.Destination),
		Metadata:       map[string]interface{}{"days": len(plan.Itinerary), "hotels": len(plan.Hotels)},
	})
	if c.env.Plans != nil {
		if err := c.env.Plans.PublishPlan(ctx, c.ID, plan); err != nil {
			c.env.emit(framework.Event{
				Type:           framework.EventPlanFailure,
				ConversationID: c.ID,
				Turn:           turn,
				Message:        "publish plan: " + err.Error(),
			})
		}
	}
	result.Plan = plan
	return result
}

func (c *Conversation) planFailure(turn int, result *TurnResult, failure Failure, err error) *TurnResult {
	c.env.emit(framework.Event{
		Type:           framework.EventPlanFailure,
		ConversationID: c.ID,
		Turn:           turn,
		Message:        err.Error(),
		Metadata:       map[string]interface{}{"failure": string(failure)},
	})
	c.mu.Lock()
	c.history.Append(trip.Turn{Speaker: trip.SpeakerAssistant, Text: PlanFailureMessage, Failed: true})
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()
	result.Reply = result.Reply + "\n\n" + PlanFailureMessage
	result.Failure = failure
	return result
}

// fallback records a failed turn. The profile is left untouched.
func (c *Conversation) fallback(turn int, failure Failure, err error, raw string) *TurnResult {
	meta := map[string]interface{}{"failure": string(failure)}
	var perr *trip.ParseError
	if errors.As(err, &perr) {
		meta["raw"] = clip(perr.Raw, 1024)
	}
	c.env.emit(framework.Event{
		Type:           framework.EventParseFailure,
		ConversationID: c.ID,
		Turn:           turn,
		Message:        err.Error(),
		Metadata:       meta,
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Append(trip.Turn{Speaker: trip.SpeakerAssistant, Text: FallbackMessage, Failed: true})
	c.updatedAt = time.Now().UTC()
	result := c.resultLocked(FallbackMessage, trip.CategoryNone)
	result.Failure = failure
	return result
}

func (c *Conversation) resultLocked(reply string, category trip.Category) *TurnResult {
	return &TurnResult{
		ConversationID: c.ID,
		Reply:          reply,
		QuickReplies:   trip.Offered(category, c.state.Phase),
		Category:       category,
		Phase:          c.state.Phase,
		Profile:        c.state.Profile.Clone(),
	}
}

func (c *Conversation) generate(ctx context.Context, turn int, kind framework.CallKind, prompt string) (string, error) {
	if c.env == nil || c.env.Model == nil {
		return "", framework.NewOracleError("no language model configured", nil)
	}
	if c.env.Settings.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.env.Settings.OracleTimeout)
		defer cancel()
	}
	ctx = framework.WithTurnContext(ctx, framework.TurnContext{
		ConversationID: c.ID,
		Turn:           turn,
		Kind:           kind,
	})
	resp, err := c.env.Model.Generate(ctx, prompt, c.env.Settings.llmOptions())
	if err != nil {
		var oerr *framework.OracleError
		if errors.As(err, &oerr) {
			return "", oerr
		}
		return "", framework.NewOracleError(fmt.Sprintf("%s call failed", kind), err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", framework.NewOracleError("empty response", nil)
	}
	return resp.Text, nil
}

func slotNames(slots []trip.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}

// clip shortens s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
