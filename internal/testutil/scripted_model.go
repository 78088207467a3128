// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/lexcodex/ceylo/framework"
)

// Reply is one scripted Oracle answer. Err takes precedence over Text.
type Reply struct {
	Text string
	Err  error
	// Wait, when set, blocks the call until the channel is closed or the
	// context is cancelled.
	Wait <-chan struct{}
}

// Call records one Generate invocation.
type Call struct {
	Prompt  string
	Options framework.LLMOptions
	Turn    framework.TurnContext
}

// ScriptedModel replays replies in order and records every prompt.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
	// Fallback is used once the script is exhausted. When nil an error is
	// returned instead.
	Fallback *Reply
	// Started, when non-nil, receives a value as each call begins.
	Started chan struct{}
}

// NewScriptedModel returns a model that answers with the given texts.
func NewScriptedModel(texts ...string) *ScriptedModel {
	m := &ScriptedModel{}
	for _, text := range texts {
		m.replies = append(m.replies, Reply{Text: text})
	}
	return m
}

// Push appends replies to the script.
func (m *ScriptedModel) Push(replies ...Reply) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

// Generate implements framework.LanguageModel.
func (m *ScriptedModel) Generate(ctx context.Context, prompt string, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	call := Call{Prompt: prompt}
	if options != nil {
		call.Options = *options
	}
	call.Turn, _ = framework.TurnContextFrom(ctx)

	m.mu.Lock()
	m.calls = append(m.calls, call)
	var reply Reply
	switch {
	case len(m.replies) > 0:
		reply = m.replies[0]
		m.replies = m.replies[1:]
	case m.Fallback != nil:
		reply = *m.Fallback
	default:
		m.mu.Unlock()
		return nil, framework.NewOracleError(fmt.Sprintf("no scripted reply for call %d", len(m.calls)), nil)
	}
	started := m.Started
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if reply.Wait != nil {
		select {
		case <-reply.Wait:
		case <-ctx.Done():
			return nil, framework.NewOracleError("request cancelled", ctx.Err())
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &framework.LLMResponse{Text: reply.Text, FinishReason: "stop"}, nil
}

// Calls returns a copy of the recorded calls.
func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsOfKind filters recorded calls by their turn context kind.
func (m *ScriptedModel) CallsOfKind(kind framework.CallKind) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Turn.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
