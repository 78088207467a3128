package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/ceylo/agents"
	runtimesvc "github.com/lexcodex/ceylo/internal/ceylo/runtime"
	"github.com/lexcodex/ceylo/persistence"
	"github.com/lexcodex/ceylo/trip"
)

// configPath resolves the --config flag, defaulting to the workspace file.
func configPath() string {
	if cfg.ConfigPath != "" {
		return cfg.ConfigPath
	}
	ws := cfg.Workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	return filepath.Join(ws, ".ceylo", "config.yaml")
}

// openStore opens the conversation store without starting a model client.
func openStore(ctx context.Context) (persistence.SessionStore, error) {
	storeCfg := cfg
	storeCfg.ConfigPath = configPath()
	ws, err := runtimesvc.LoadWorkspaceConfig(storeCfg.ConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	storeCfg.ApplyWorkspace(ws)
	if err := storeCfg.Normalize(); err != nil {
		return nil, err
	}
	return runtimesvc.OpenStore(ctx, storeCfg)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// printResult writes a turn result the way the chat shows it.
func printResult(w io.Writer, result *agents.TurnResult) {
	fmt.Fprintln(w, result.Reply)
	if len(result.QuickReplies) > 0 {
		fmt.Fprintf(w, "[%s]\n", strings.Join(result.QuickReplies, " | "))
	}
	if result.Plan != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, trip.RenderPlan(result.Plan))
	}
}

// readConfigMap deserializes config.yaml into a generic map for dotted lookups.
func readConfigMap(path string) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	bytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(bytes, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

// writeConfigMap persists the config map back to YAML, creating directories.
// The result must still load as a workspace config.
func writeConfigMap(path string, data map[string]interface{}) error {
	bytes, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	var check runtimesvc.WorkspaceConfig
	if err := yaml.Unmarshal(bytes, &check); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, bytes, 0o644)
}

// getConfigValue traverses a nested map using dotted notation.
func getConfigValue(data map[string]interface{}, key string) (interface{}, bool) {
	var current interface{} = data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := m[part]
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

// setConfigValue creates or replaces the nested key referenced by dotted
// notation.
func setConfigValue(data map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	current := data
	for i, part := range parts {
		if part == "" {
			return fmt.Errorf("invalid key %q", key)
		}
		if i == len(parts)-1 {
			current[part] = value
			return nil
		}
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	return nil
}

// prettyValue renders nested values in a human-readable one-line format.
func prettyValue(v interface{}) string {
	switch value := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, prettyValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		b, _ := yaml.Marshal(value)
		return strings.TrimSpace(string(b))
	default:
		return fmt.Sprint(value)
	}
}
