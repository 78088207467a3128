package framework

import "context"

type turnContextKey struct{}

// CallKind distinguishes the two Oracle requests a conversation makes.
type CallKind string

const (
	CallExtract CallKind = "extract"
	CallPlan    CallKind = "plan"
)

// TurnContext carries conversation metadata through contexts so telemetry
// can correlate Oracle activity with a specific turn.
type TurnContext struct {
	ConversationID string
	Turn           int
	Kind           CallKind
}

// WithTurnContext attaches turn metadata to the context.
func WithTurnContext(ctx context.Context, turn TurnContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, turnContextKey{}, turn)
}

// TurnContextFrom extracts turn metadata, if present.
func TurnContextFrom(ctx context.Context) (TurnContext, bool) {
	if ctx == nil {
		return TurnContext{}, false
	}
	val := ctx.Value(turnContextKey{})
	turn, ok := val.(TurnContext)
	return turn, ok
}
