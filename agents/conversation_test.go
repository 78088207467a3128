package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/ceylo/framework"
	"github.com/lexcodex/ceylo/internal/testutil"
	"github.com/lexcodex/ceylo/trip"
)

const (
	kandyReply    = `{"resp":"Lovely! What's your budget?","extractedState":{"destination":"Kandy","duration":5,"groupType":"Couple"},"ui":"budget"}`
	finalizeReply = `{"resp":"Great, generating your plan!","ui":"finalize"}`
	planReply     = `{"trip_plan":{"destination":"Kandy","duration":"5 days","route":{"summary":"Hill country","roads":["A1","A9"]},"itinerary":[{"day":1,"title":"Temple","activities":[{"name":"Temple of the Tooth","hidden_gem":false}]}]}}`
)

type recordingSink struct {
	mu    sync.Mutex
	plans map[string]*trip.Plan
}

func (r *recordingSink) PublishPlan(_ context.Context, id string, plan *trip.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plans == nil {
		r.plans = make(map[string]*trip.Plan)
	}
	r.plans[id] = plan
	return nil
}

func newTestConversation(model framework.LanguageModel) (*Conversation, *framework.RecordingTelemetry) {
	rec := &framework.RecordingTelemetry{}
	env := &Environment{Model: model, Telemetry: rec, Settings: DefaultSettings()}
	return NewConversation("conv-1", env), rec
}

func TestConversationStartsWithGreeting(t *testing.T) {
	conv, _ := newTestConversation(testutil.NewScriptedModel())
	turns := conv.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, trip.SpeakerAssistant, turns[0].Speaker)
	assert.Equal(t, GreetingMessage, turns[0].Text)
	assert.True(t, conv.Profile().IsEmpty())
	assert.Equal(t, trip.PhaseGathering, conv.Phase())
}

func TestSendMergesExtractedSlots(t *testing.T) {
	model := testutil.NewScriptedModel(kandyReply)
	conv, rec := newTestConversation(model)

	result, err := conv.Send(context.Background(), "5 days in Kandy as a couple")
	require.NoError(t, err)

	assert.Equal(t, "Lovely! What's your budget?", result.Reply)
	assert.Equal(t, trip.CategoryBudget, result.Category)
	assert.Equal(t, []string{"Economy", "Standard", "Luxury"}, result.QuickReplies)
	assert.Equal(t, FailureNone, result.Failure)
	assert.Equal(t, []trip.Slot{trip.SlotDestination, trip.SlotGroupType, trip.SlotDuration}, result.Profile.SetSlots())
	assert.Equal(t, "Kandy", result.Profile.Destination)
	assert.Equal(t, "5", result.Profile.Duration)
	assert.Equal(t, "Couple", result.Profile.GroupType)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, framework.FormatJSON, calls[0].Options.Format)
	assert.Equal(t, framework.CallExtract, calls[0].Turn.Kind)
	assert.Equal(t, "conv-1", calls[0].Turn.ConversationID)
	assert.Contains(t, calls[0].Prompt, "5 days in Kandy as a couple")

	assert.Len(t, rec.OfType(framework.EventStateMerge), 1)
	assert.Len(t, rec.OfType(framework.EventTurnFinish), 1)
	assert.False(t, conv.Busy())
}

func TestSendNonJSONFallsBackAndKeepsProfile(t *testing.T) {
	model := testutil.NewScriptedModel(kandyReply, "Sure, here's some info")
	conv, rec := newTestConversation(model)
	ctx := context.Background()

	_, err := conv.Send(ctx, "5 days in Kandy as a couple")
	require.NoError(t, err)
	before := conv.Profile()

	result, err := conv.Send(ctx, "what about beaches?")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, result.Reply)
	assert.Equal(t, FailureParse, result.Failure)
	assert.Empty(t, result.QuickReplies)
	assert.Equal(t, before, conv.Profile())
	assert.False(t, conv.Busy())

	failures := rec.OfType(framework.EventParseFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, "Sure, here's some info", failures[0].Metadata["raw"])
}

func TestSendOracleErrorFallsBack(t *testing.T) {
	model := testutil.NewScriptedModel().Push(testutil.Reply{Err: framework.NewOracleError("cannot reach ollama", errors.New("refused"))})
	conv, _ := newTestConversation(model)

	result, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackMessage, result.Reply)
	assert.Equal(t, FailureOracle, result.Failure)
	assert.True(t, conv.Profile().IsEmpty())
	assert.False(t, conv.Busy())

	last, ok := lastTurn(conv)
	require.True(t, ok)
	assert.True(t, last.Failed)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	model := testutil.NewScriptedModel()
	conv, _ := newTestConversation(model)
	_, err := conv.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, model.Calls())
	assert.Len(t, conv.Turns(), 1)
}

func TestFinalizeTriggersSinglePlanCall(t *testing.T) {
	model := testutil.NewScriptedModel(kandyReply, finalizeReply, planReply, finalizeReply)
	conv, rec := newTestConversation(model)
	sink := &recordingSink{}
	conv.env.Plans = sink
	ctx := context.Background()

	_, err := conv.Send(ctx, "5 days in Kandy as a couple")
	require.NoError(t, err)
	result, err := conv.Send(ctx, "Yes Generate")
	require.NoError(t, err)

	assert.Equal(t, trip.PhaseFinalized, result.Phase)
	assert.Equal(t, trip.CategoryFinalize, result.Category)
	assert.Empty(t, result.QuickReplies)
	require.NotNil(t, result.Plan)
	assert.Equal(t, trip.Text("Kandy"), result.Plan.Destination)
	assert.Equal(t, []trip.Text{"A1", "A9"}, result.Plan.Route.Roads)

	planCalls := model.CallsOfKind(framework.CallPlan)
	require.Len(t, planCalls, 1)
	extractCalls := model.CallsOfKind(framework.CallExtract)
	require.Len(t, extractCalls, 2)
	for _, c := range extractCalls {
		assert.NotEqual(t, c.Prompt, planCalls[0].Prompt)
	}
	assert.Contains(t, planCalls[0].Prompt, "user: 5 days in Kandy as a couple")
	assert.Contains(t, planCalls[0].Prompt, "assistant: Great, generating your plan!")
	assert.Equal(t, framework.FormatJSON, planCalls[0].Options.Format)

	again, err := conv.Send(ctx, "Yes Generate")
	require.NoError(t, err)
	assert.Nil(t, again.Plan)
	assert.Empty(t, again.QuickReplies)
	assert.Len(t, model.CallsOfKind(framework.CallPlan), 1)
	extractCalls = model.CallsOfKind(framework.CallExtract)
	require.Len(t, extractCalls, 3)
	assert.NotContains(t, extractCalls[1].Prompt, "already been generated")
	assert.Contains(t, extractCalls[2].Prompt, "already been generated")
	assert.Len(t, rec.OfType(framework.EventFinalized), 1)
	assert.Len(t, rec.OfType(framework.EventPlanReady), 1)

	require.NotNil(t, sink.plans["conv-1"])
	assert.Same(t, conv.Plan(), sink.plans["conv-1"])
}

func TestFinalizeMergesStateFirst(t *testing.T) {
	reply := `{"resp":"Perfect, generating now!","extractedState":{"budget":"Luxury"},"ui":"finalize"}`
	model := testutil.NewScriptedModel(reply, planReply)
	conv, _ := newTestConversation(model)

	result, err := conv.Send(context.Background(), "Luxury please, go ahead")
	require.NoError(t, err)
	assert.Equal(t, "Luxury", result.Profile.Budget)
	planCalls := model.CallsOfKind(framework.CallPlan)
	require.Len(t, planCalls, 1)
	assert.Contains(t, planCalls[0].Prompt, `"budget":"Luxury"`)
}

func TestPlanFailureKeepsFinalizedPhase(t *testing.T) {
	model := testutil.NewScriptedModel(finalizeReply, "no plan today", finalizeReply)
	conv, rec := newTestConversation(model)
	ctx := context.Background()

	result, err := conv.Send(ctx, "Yes Generate")
	require.NoError(t, err)
	assert.Equal(t, FailurePlanParse, result.Failure)
	assert.Contains(t, result.Reply, PlanFailureMessage)
	assert.NotContains(t, result.Reply, FallbackMessage)
	assert.Nil(t, result.Plan)
	assert.Equal(t, trip.PhaseFinalized, conv.Phase())
	assert.Len(t, rec.OfType(framework.EventPlanFailure), 1)

	_, err = conv.Send(ctx, "Yes Generate")
	require.NoError(t, err)
	assert.Len(t, model.CallsOfKind(framework.CallPlan), 1)
	assert.False(t, conv.Busy())
}

func TestPlanOracleFailureIsTagged(t *testing.T) {
	model := testutil.NewScriptedModel(finalizeReply).Push(testutil.Reply{Err: framework.NewOracleError("timeout", nil)})
	conv, _ := newTestConversation(model)

	result, err := conv.Send(context.Background(), "Yes Generate")
	require.NoError(t, err)
	assert.Equal(t, FailurePlanOracle, result.Failure)
	assert.Equal(t, trip.PhaseFinalized, result.Phase)
}

func TestConcurrentSendReturnsBusy(t *testing.T) {
	release := make(chan struct{})
	model := testutil.NewScriptedModel().Push(testutil.Reply{Text: kandyReply, Wait: release})
	model.Started = make(chan struct{}, 1)
	conv, _ := newTestConversation(model)

	done := make(chan *TurnResult, 1)
	go func() {
		result, err := conv.Send(context.Background(), "5 days in Kandy as a couple")
		assert.NoError(t, err)
		done <- result
	}()
	<-model.Started

	assert.True(t, conv.Busy())
	_, err := conv.Send(context.Background(), "hello?")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	result := <-done
	assert.Equal(t, "Kandy", result.Profile.Destination)
	assert.False(t, conv.Busy())
	assert.Len(t, model.Calls(), 1)
}

func TestExtractionPromptUsesPriorWindowWithoutFailures(t *testing.T) {
	model := testutil.NewScriptedModel(kandyReply, "garbage", `{"resp":"Noted."}`)
	conv, _ := newTestConversation(model)
	ctx := context.Background()

	for _, text := range []string{"5 days in Kandy as a couple", "Luxury", "Standard"} {
		_, err := conv.Send(ctx, text)
		require.NoError(t, err)
	}
	calls := model.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Prompt, "assistant: Ayubowan!")
	assert.Contains(t, calls[2].Prompt, "user: Luxury")
	assert.NotContains(t, calls[2].Prompt, FallbackMessage)
	assert.Contains(t, calls[2].Prompt, `"destination":"Kandy"`)
}

func TestNewConversationFillsDefaultSettings(t *testing.T) {
	model := testutil.NewScriptedModel(kandyReply, `{"resp":"Noted."}`)
	env := &Environment{Model: model}
	conv := NewConversation("c", env)
	assert.Equal(t, trip.DefaultWindow, conv.env.Settings.HistoryWindow)
	assert.Equal(t, DefaultOracleTimeout, conv.env.Settings.OracleTimeout)
	assert.Zero(t, env.Settings.HistoryWindow)

	ctx := context.Background()
	_, err := conv.Send(ctx, "5 days in Kandy as a couple")
	require.NoError(t, err)
	_, err = conv.Send(ctx, "Luxury")
	require.NoError(t, err)
	calls := model.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "user: 5 days in Kandy as a couple")

	restored := RestoreConversation(conv.Snapshot(), &Environment{Model: model})
	assert.Equal(t, trip.DefaultWindow, restored.env.Settings.HistoryWindow)
	assert.Equal(t, DefaultOracleTimeout, restored.env.Settings.OracleTimeout)
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "Kandy", clip("Kandy", 10))
	assert.Equal(t, "ab...", clip("abcdef", 2))
	clipped := clip("Ayubowan 🙏 Ceylo", 11)
	assert.True(t, utf8.ValidString(clipped))
	assert.Equal(t, "Ayubowan ...", clipped)
}

func TestSnapshotRestoreKeepsPhase(t *testing.T) {
	model := testutil.NewScriptedModel(finalizeReply, planReply, finalizeReply)
	conv, _ := newTestConversation(model)
	_, err := conv.Send(context.Background(), "Yes Generate")
	require.NoError(t, err)

	restored := RestoreConversation(conv.Snapshot(), conv.env)
	assert.Equal(t, trip.PhaseFinalized, restored.Phase())
	assert.NotNil(t, restored.Plan())
	assert.Equal(t, len(conv.Turns()), len(restored.Turns()))

	_, err = restored.Send(context.Background(), "Yes Generate")
	require.NoError(t, err)
	assert.Len(t, model.CallsOfKind(framework.CallPlan), 1)
}

func lastTurn(conv *Conversation) (trip.Turn, bool) {
	turns := conv.Turns()
	if len(turns) == 0 {
		return trip.Turn{}, false
	}
	return turns[len(turns)-1], true
}
