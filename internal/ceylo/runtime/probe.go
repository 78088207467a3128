package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaReport surfaces the health of the configured Ollama endpoint.
type OllamaReport struct {
	Endpoint       string
	Healthy        bool
	Models         []string
	SelectedModel  string
	ModelAvailable bool
	Error          string
}

// StoreReport says whether the conversation store opens and how much it holds.
type StoreReport struct {
	Driver        string
	Conversations int
	Error         string
}

// EnvironmentReport aggregates the doctor probes.
type EnvironmentReport struct {
	Workspace string
	Ollama    OllamaReport
	Store     StoreReport
	Timestamp time.Time
}

// OK reports whether chatting can work with this environment.
func (r EnvironmentReport) OK() bool {
	return r.Ollama.Healthy && r.Ollama.ModelAvailable && r.Store.Error == ""
}

// ProbeEnvironment checks Ollama and the conversation store so `ceylo doctor`
// can point at what is missing.
func ProbeEnvironment(ctx context.Context, cfg Config) EnvironmentReport {
	return EnvironmentReport{
		Workspace: cfg.Workspace,
		Ollama:    detectOllama(ctx, cfg, &http.Client{Timeout: 5 * time.Second}),
		Store:     detectStore(ctx, cfg),
		Timestamp: time.Now(),
	}
}

// detectOllama queries the tags endpoint to confirm health and that the
// configured model has been pulled.
func detectOllama(ctx context.Context, cfg Config, client *http.Client) OllamaReport {
	report := OllamaReport{Endpoint: cfg.OllamaEndpoint, SelectedModel: cfg.OllamaModel}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(cfg.OllamaEndpoint, "/")+"/api/tags", nil)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	resp, err := client.Do(req)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		report.Error = fmt.Sprintf("ollama responded with %s", resp.Status)
		return report
	}
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		report.Error = err.Error()
		return report
	}
	for _, model := range payload.Models {
		report.Models = append(report.Models, model.Name)
		if sameModel(model.Name, cfg.OllamaModel) {
			report.ModelAvailable = true
		}
	}
	report.Healthy = true
	if !report.ModelAvailable {
		report.Error = fmt.Sprintf("model %s not pulled (ollama pull %s)", cfg.OllamaModel, cfg.OllamaModel)
	}
	return report
}

// sameModel treats "llama3.2" and "llama3.2:latest" as the same tag.
func sameModel(installed, wanted string) bool {
	if installed == wanted {
		return true
	}
	if !strings.Contains(wanted, ":") {
		return installed == wanted+":latest"
	}
	return false
}

func detectStore(ctx context.Context, cfg Config) StoreReport {
	report := StoreReport{Driver: cfg.StoreDriver}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	defer store.Close()
	summaries, err := store.List(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Conversations = len(summaries)
	return report
}
