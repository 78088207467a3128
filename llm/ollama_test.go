package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/ceylo/framework"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestClientGenerateSendsStructuredOutputRequest(t *testing.T) {
	client := NewClient("http://fake/", "llama3.2")
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/generate", req.URL.Path)
			assert.Equal(t, http.MethodPost, req.Method)
			var payload map[string]interface{}
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.Equal(t, "hello", payload["prompt"])
			assert.Equal(t, "llama3.2", payload["model"])
			assert.Equal(t, false, payload["stream"])
			assert.Equal(t, "json", payload["format"])
			return jsonResponse(200, `{"response":"{\"resp\":\"hi\"}","done_reason":"stop","eval_count":7}`), nil
		}),
	}

	resp, err := client.Generate(context.Background(), "hello", &framework.LLMOptions{Format: framework.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, `{"resp":"hi"}`, resp.Text)
	assert.Equal(t, 7, resp.Usage["completion_tokens"])
}

func TestClientGenerateOmitsFormatWithoutOptions(t *testing.T) {
	client := NewClient("http://fake", "")
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			var payload map[string]interface{}
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			_, hasFormat := payload["format"]
			assert.False(t, hasFormat)
			assert.Equal(t, DefaultModel, payload["model"])
			return jsonResponse(200, `{"response":"plain"}`), nil
		}),
	}
	resp, err := client.Generate(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", resp.Text)
}

func TestClientGenerateFailuresAreOracleErrors(t *testing.T) {
	cases := map[string]roundTripFunc{
		"network": func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
		"status": func(*http.Request) (*http.Response, error) {
			return jsonResponse(404, `{"error":"model \"llama3.2\" not found"}`), nil
		},
		"empty body": func(*http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"response":""}`), nil
		},
		"not json": func(*http.Request) (*http.Response, error) {
			return jsonResponse(200, `<html>proxy</html>`), nil
		},
		"inline error": func(*http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"error":"out of memory"}`), nil
		},
	}
	for name, transport := range cases {
		t.Run(name, func(t *testing.T) {
			client := NewClient("http://fake", "m")
			client.client = &http.Client{Transport: transport}
			_, err := client.Generate(context.Background(), "x", nil)
			var oerr *framework.OracleError
			require.ErrorAs(t, err, &oerr)
			assert.NotEmpty(t, oerr.Cause)
		})
	}
}

func TestClientGenerateStatusCarriesDetail(t *testing.T) {
	client := NewClient("http://fake", "m")
	client.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(500, "boom"), nil
	})}
	_, err := client.Generate(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "Galle", truncate("Galle", 8))
	out := truncate("Sigiriya කඳු", 10)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "Sigiriya ...(truncated)", out)
	assert.Equal(t, "", clip("anything", 0))
	assert.Equal(t, "a\nb", clip("a\r\nb", 10))
}
