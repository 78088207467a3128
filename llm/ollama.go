package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lexcodex/ceylo/framework"
)

// DefaultEndpoint is the local Ollama address.
const DefaultEndpoint = "http://localhost:11434"

// DefaultModel is used when neither the client nor the call names a model.
const DefaultModel = "llama3.2"

// Client implements framework.LanguageModel for Ollama's generate endpoint.
type Client struct {
	Endpoint string
	Model    string
	client   *http.Client
	Debug    bool
	Logger   *log.Logger
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	Text            string `json:"text"`
	DoneReason      string `json:"done_reason"`
	EvalCount       int    `json:"eval_count"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	Error           string `json:"error"`
}

// NewClient builds a new Ollama client.
func NewClient(endpoint, model string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Model:    model,
		client: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// Generate implements single prompt completion. Every failure is returned as
// *framework.OracleError.
func (c *Client) Generate(ctx context.Context, prompt string, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	payload := generateRequest{
		Model:  c.model(options),
		Prompt: prompt,
		Stream: false,
	}
	c.applyOptions(&payload, options)
	return c.doRequest(ctx, "/api/generate", payload)
}

// SetDebugLogging enables or disables verbose logging for requests/responses.
func (c *Client) SetDebugLogging(enabled bool) {
	c.Debug = enabled
}

func (c *Client) getHTTPClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	c.client = &http.Client{Timeout: 60 * time.Second}
	return c.client
}

func (c *Client) model(options *framework.LLMOptions) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c *Client) applyOptions(payload *generateRequest, options *framework.LLMOptions) {
	if options == nil {
		return
	}
	payload.Format = options.Format
	opts := make(map[string]interface{})
	if options.Temperature != 0 {
		opts["temperature"] = options.Temperature
	}
	if options.MaxTokens != 0 {
		opts["num_predict"] = options.MaxTokens
	}
	if options.Stop != nil {
		opts["stop"] = options.Stop
	}
	if options.TopP != 0 {
		opts["top_p"] = options.TopP
	}
	if len(opts) > 0 {
		payload.Options = opts
	}
}

func (c *Client) doRequest(ctx context.Context, path string, payload interface{}) (*framework.LLMResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, framework.NewOracleError("encode request", err)
	}
	c.logPayload(path, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, framework.NewOracleError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, framework.NewOracleError("request timed out", err)
		}
		return nil, framework.NewOracleError("cannot reach ollama at "+c.Endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if detail != "" {
			return nil, framework.NewOracleError(fmt.Sprintf("ollama returned %s: %s", resp.Status, detail), nil)
		}
		return nil, framework.NewOracleError(fmt.Sprintf("ollama returned %s", resp.Status), nil)
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, framework.NewOracleError("read response", err)
	}
	c.logResponse(path, responseBody)
	return decodeLLMResponse(bytes.NewReader(responseBody))
}

func decodeLLMResponse(body io.Reader) (*framework.LLMResponse, error) {
	var raw ollamaResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, framework.NewOracleError("decode response envelope", err)
	}
	if raw.Error != "" {
		return nil, framework.NewOracleError("ollama error: "+raw.Error, nil)
	}
	text := firstNonEmpty(raw.Response, raw.Text)
	if strings.TrimSpace(text) == "" {
		return nil, framework.NewOracleError("empty response", nil)
	}
	return &framework.LLMResponse{
		Text:         text,
		FinishReason: raw.DoneReason,
		Usage:        normalizeUsage(raw),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeUsage(raw ollamaResponse) map[string]int {
	usage := make(map[string]int)
	if raw.EvalCount > 0 {
		usage["completion_tokens"] = raw.EvalCount
	}
	if raw.PromptEvalCount > 0 {
		usage["prompt_tokens"] = raw.PromptEvalCount
	}
	if len(usage) == 0 {
		return nil
	}
	return usage
}

func (c *Client) logPayload(path string, payload []byte) {
	if !c.Debug {
		return
	}
	c.logf("request %s payload: %s", path, truncate(string(payload), 2048))
}

func (c *Client) logResponse(path string, resp []byte) {
	if !c.Debug {
		return
	}
	c.logf("response %s payload: %s", path, truncate(string(resp), 2048))
}

func (c *Client) logf(format string, args ...interface{}) {
	if !c.Debug {
		return
	}
	logger := c.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[ollama] "+format, args...)
}

// truncate shortens s to at most max bytes, backing off to a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "...(truncated)"
}
