package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/ceylo/framework"
)

type stubModel struct {
	text string
	err  error
}

func (s stubModel) Generate(context.Context, string, *framework.LLMOptions) (*framework.LLMResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &framework.LLMResponse{Text: s.text}, nil
}

func TestInstrumentedModelTagsEventsWithTurn(t *testing.T) {
	rec := &framework.RecordingTelemetry{}
	model := NewInstrumentedModel(stubModel{text: `{"resp":"ok"}`}, rec, false)
	ctx := framework.WithTurnContext(context.Background(), framework.TurnContext{
		ConversationID: "c1",
		Turn:           3,
		Kind:           framework.CallExtract,
	})

	resp, err := model.Generate(ctx, "prompt", &framework.LLMOptions{Format: framework.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, `{"resp":"ok"}`, resp.Text)

	prompts := rec.OfType(framework.EventLLMPrompt)
	require.Len(t, prompts, 1)
	assert.Equal(t, "c1", prompts[0].ConversationID)
	assert.Equal(t, 3, prompts[0].Turn)
	assert.Equal(t, "extract", prompts[0].Metadata["kind"])
	assert.Equal(t, "json", prompts[0].Metadata["format"])
	_, hasFull := prompts[0].Metadata["prompt"]
	assert.False(t, hasFull)

	responses := rec.OfType(framework.EventLLMResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "llm extract response", responses[0].Message)
}

func TestInstrumentedModelRecordsErrors(t *testing.T) {
	rec := &framework.RecordingTelemetry{}
	model := NewInstrumentedModel(stubModel{err: framework.NewOracleError("down", errors.New("refused"))}, rec, true)

	_, err := model.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)

	responses := rec.OfType(framework.EventLLMResponse)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Metadata["error"], "refused")
	prompts := rec.OfType(framework.EventLLMPrompt)
	require.Len(t, prompts, 1)
	assert.Equal(t, "prompt", prompts[0].Metadata["prompt"])
}
