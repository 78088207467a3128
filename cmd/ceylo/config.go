package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/ceylo/internal/ceylo/runtime"
)

// configKey describes one settable entry of .ceylo/config.yaml. parse turns
// the CLI text into the value stored in the file.
type configKey struct {
	help  string
	parse func(raw string) (interface{}, error)
}

var configKeys = map[string]configKey{
	"model":                       {help: "Ollama model name", parse: text},
	"endpoint":                    {help: "Ollama base URL", parse: text},
	"conversation.history_window": {help: "recent turns included in each extraction prompt", parse: positiveInt},
	"conversation.idle_ttl":       {help: "how long an idle conversation stays in memory", parse: positiveDuration},
	"conversation.temperature":    {help: "sampling temperature for Oracle calls", parse: temperature},
	"oracle.timeout":              {help: "deadline for a single Oracle call", parse: positiveDuration},
	"store.driver":                {help: "file, sqlite, postgres or memory", parse: storeDriver},
	"store.dsn":                   {help: "store directory, file or connection string", parse: text},
	"mqtt.broker":                 {help: "broker URL for finished plans", parse: text},
	"mqtt.topic_prefix":           {help: "topic prefix for finished plans", parse: text},
	"mqtt.client_id":              {help: "MQTT client id", parse: text},
	"logging.llm_debug":           {help: "log raw Ollama payloads", parse: boolean},
	"logging.telemetry":           {help: "write JSON telemetry events", parse: boolean},
	"server.allowed_origins":      {help: "comma separated browser origins for chat WebSockets", parse: origins},
}

// newConfigCmd registers subcommands that inspect or mutate config.yaml.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or modify .ceylo/config.yaml",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigKeysCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Read a config value by dotted key, e.g. conversation.history_window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readConfigMap(configPath())
			if err != nil {
				return err
			}
			value, ok := getConfigValue(data, args[0])
			if !ok {
				return fmt.Errorf("key %s is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyValue(value))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Update a config value; see 'ceylo config keys'",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := checkConfigValue(key, args[1])
			if err != nil {
				return err
			}
			path := configPath()
			data, err := readConfigMap(path)
			if err != nil {
				return err
			}
			if err := setConfigValue(data, key, value); err != nil {
				return err
			}
			if err := writeConfigMap(path, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
			return nil
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the keys config set accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range sortedConfigKeys() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", key, configKeys[key].help)
			}
			return nil
		},
	}
}

func sortedConfigKeys() []string {
	keys := lo.Keys(configKeys)
	sort.Strings(keys)
	return keys
}

// checkConfigValue rejects unknown keys and values the runtime would refuse,
// and returns the value in the shape config.yaml stores it.
func checkConfigValue(key, raw string) (interface{}, error) {
	entry, ok := configKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q (known keys: %s)", key, strings.Join(sortedConfigKeys(), ", "))
	}
	value, err := entry.parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func text(raw string) (interface{}, error) {
	if raw == "" {
		return nil, fmt.Errorf("value must not be empty")
	}
	return raw, nil
}

func positiveInt(raw string) (interface{}, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("expected a positive whole number, got %q", raw)
	}
	return n, nil
}

// positiveDuration keeps the text form, which yaml decodes into time.Duration.
func positiveDuration(raw string) (interface{}, error) {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("expected a duration such as 90s or 2m, got %q", raw)
	}
	return raw, nil
}

func temperature(raw string) (interface{}, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 2 {
		return nil, fmt.Errorf("expected a number between 0 and 2, got %q", raw)
	}
	return f, nil
}

func storeDriver(raw string) (interface{}, error) {
	drivers := []string{runtimesvc.StoreFile, runtimesvc.StoreSQLite, runtimesvc.StorePostgres, runtimesvc.StoreMemory}
	if !lo.Contains(drivers, raw) {
		return nil, fmt.Errorf("expected one of %s, got %q", strings.Join(drivers, ", "), raw)
	}
	return raw, nil
}

func boolean(raw string) (interface{}, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("expected true or false, got %q", raw)
	}
	return b, nil
}

func origins(raw string) (interface{}, error) {
	out := lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(s), "/")
	}))
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one origin required")
	}
	return out, nil
}
