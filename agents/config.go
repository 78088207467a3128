package agents

import (
	"time"

	"github.com/lexcodex/ceylo/framework"
	"github.com/lexcodex/ceylo/trip"
)

const (
	DefaultIdleTTL       = 2 * time.Hour
	DefaultOracleTimeout = 2 * time.Minute
)

// Settings controls how conversations talk to the Oracle. It is embedded in
// the workspace config under the conversation key.
type Settings struct {
	Model         string        `yaml:"-"`
	HistoryWindow int           `yaml:"history_window"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	OracleTimeout time.Duration `yaml:"-"`
	Temperature   float64       `yaml:"temperature,omitempty"`
}

// DefaultSettings returns the conversation defaults.
func DefaultSettings() Settings {
	return Settings{
		HistoryWindow: trip.DefaultWindow,
		IdleTTL:       DefaultIdleTTL,
		OracleTimeout: DefaultOracleTimeout,
	}
}

// Normalize fills zero values with defaults.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.HistoryWindow <= 0 {
		s.HistoryWindow = def.HistoryWindow
	}
	if s.IdleTTL <= 0 {
		s.IdleTTL = def.IdleTTL
	}
	if s.OracleTimeout <= 0 {
		s.OracleTimeout = def.OracleTimeout
	}
	return s
}

func (s Settings) llmOptions() *framework.LLMOptions {
	return &framework.LLMOptions{
		Model:       s.Model,
		Format:      framework.FormatJSON,
		Temperature: s.Temperature,
	}
}
