package framework

import (
	"context"
	"fmt"
)

// FormatJSON asks the model to constrain its output to JSON.
const FormatJSON = "json"

// LLMOptions tunes a single generation call.
type LLMOptions struct {
	Model       string
	Format      string
	Temperature float64
	MaxTokens   int
	Stop        []string
	TopP        float64
}

// LLMResponse is the raw reply of a generation call.
type LLMResponse struct {
	Text         string         `json:"text,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        map[string]int `json:"usage,omitempty"`
}

// LanguageModel is the Oracle: it accepts a prompt and returns text that is
// supposed to be JSON. Implementations report every failure as *OracleError.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string, options *LLMOptions) (*LLMResponse, error)
}

// OracleError reports that the model endpoint could not produce a reply.
type OracleError struct {
	Cause string
	Err   error
}

func (e *OracleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle error: %s: %v", e.Cause, e.Err)
	}
	return "oracle error: " + e.Cause
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// NewOracleError wraps err with a human readable cause.
func NewOracleError(cause string, err error) *OracleError {
	return &OracleError{Cause: cause, Err: err}
}
