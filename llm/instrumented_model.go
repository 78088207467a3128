package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lexcodex/ceylo/framework"
)

// InstrumentedModel wraps a LanguageModel and emits telemetry for prompts and responses.
type InstrumentedModel struct {
	Inner     framework.LanguageModel
	Telemetry framework.Telemetry
	Debug     bool
}

func NewInstrumentedModel(inner framework.LanguageModel, telemetry framework.Telemetry, debug bool) *InstrumentedModel {
	return &InstrumentedModel{Inner: inner, Telemetry: telemetry, Debug: debug}
}

func (m *InstrumentedModel) Generate(ctx context.Context, prompt string, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	started := time.Now()
	m.emitPrompt(ctx, map[string]interface{}{
		"model":          modelFromOptions(options),
		"format":         formatFromOptions(options),
		"prompt_chars":   len(prompt),
		"prompt_preview": clip(prompt, 1024),
	}, map[string]interface{}{"prompt": clip(prompt, 8192)})
	resp, err := m.Inner.Generate(ctx, prompt, options)
	m.emitResponse(ctx, resp, err, time.Since(started))
	return resp, err
}

func (m *InstrumentedModel) emitPrompt(ctx context.Context, base map[string]interface{}, debugFields map[string]interface{}) {
	if m == nil || m.Telemetry == nil {
		return
	}
	turn, metadata := turnInfo(ctx)
	for k, v := range base {
		metadata[k] = v
	}
	if m.Debug {
		for k, v := range debugFields {
			metadata[k] = v
		}
	}
	m.Telemetry.Emit(framework.Event{
		Type:           framework.EventLLMPrompt,
		ConversationID: turn.ConversationID,
		Turn:           turn.Turn,
		Timestamp:      time.Now().UTC(),
		Message:        fmt.Sprintf("llm %s prompt", kindLabel(turn)),
		Metadata:       metadata,
	})
}

func (m *InstrumentedModel) emitResponse(ctx context.Context, resp *framework.LLMResponse, err error, elapsed time.Duration) {
	if m == nil || m.Telemetry == nil {
		return
	}
	turn, metadata := turnInfo(ctx)
	metadata["duration_ms"] = elapsed.Milliseconds()
	if resp != nil {
		metadata["finish_reason"] = resp.FinishReason
		metadata["text_preview"] = clip(resp.Text, 1024)
		metadata["usage"] = resp.Usage
		if m.Debug {
			metadata["text"] = clip(resp.Text, 8192)
		}
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	m.Telemetry.Emit(framework.Event{
		Type:           framework.EventLLMResponse,
		ConversationID: turn.ConversationID,
		Turn:           turn.Turn,
		Timestamp:      time.Now().UTC(),
		Message:        fmt.Sprintf("llm %s response", kindLabel(turn)),
		Metadata:       metadata,
	})
}

func modelFromOptions(options *framework.LLMOptions) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	return ""
}

func formatFromOptions(options *framework.LLMOptions) string {
	if options != nil {
		return options.Format
	}
	return ""
}

func turnInfo(ctx context.Context) (framework.TurnContext, map[string]interface{}) {
	meta := map[string]interface{}{}
	turn, ok := framework.TurnContextFrom(ctx)
	if !ok {
		return framework.TurnContext{}, meta
	}
	meta["kind"] = string(turn.Kind)
	return turn, meta
}

func kindLabel(turn framework.TurnContext) string {
	if turn.Kind == "" {
		return "generate"
	}
	return string(turn.Kind)
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if max <= 0 {
		return ""
	}
	return truncate(s, max)
}
