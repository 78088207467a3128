package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/ceylo/agents"
	"github.com/lexcodex/ceylo/llm"
)

const dataDirName = ".ceylo"

// Store drivers.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config captures every knob shared across the ceylo CLI, TUI, RPC and HTTP
// entry points. Empty fields are filled from the environment, then from the
// workspace config file, then from defaults.
type Config struct {
	Workspace      string
	DataDir        string
	LogPath        string
	TelemetryPath  string
	ConfigPath     string
	OllamaEndpoint string
	OllamaModel    string
	ServerAddr     string
	AllowedOrigins []string
	StoreDriver    string
	StoreDSN       string
	MQTTBroker     string
	MQTTTopic      string
	MQTTClientID   string
	LLMDebug       bool
	Telemetry      bool
	// LogToStdout mirrors the log to stdout. The TUI and the stdio RPC
	// server own stdout and leave it off.
	LogToStdout  bool
	Conversation agents.Settings
}

// DefaultConfig roots the config in the current working directory. Errors
// from os.Getwd are ignored so callers can override manually.
func DefaultConfig() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Config{
		Workspace:  cwd,
		ConfigPath: filepath.Join(cwd, dataDirName, "config.yaml"),
	}
}

// ApplyEnv fills unset fields from OLLAMA_HOST and CEYLO_MODEL.
func (c *Config) ApplyEnv() {
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = ollamaHostEndpoint(os.Getenv("OLLAMA_HOST"))
	}
	if c.OllamaModel == "" {
		c.OllamaModel = strings.TrimSpace(os.Getenv("CEYLO_MODEL"))
	}
}

func ollamaHostEndpoint(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

// ApplyWorkspace fills unset fields from the workspace config file.
func (c *Config) ApplyWorkspace(ws WorkspaceConfig) {
	if c.OllamaModel == "" {
		c.OllamaModel = ws.Model
	}
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = ws.Endpoint
	}
	if c.StoreDriver == "" {
		c.StoreDriver = ws.Store.Driver
	}
	if c.StoreDSN == "" {
		c.StoreDSN = ws.Store.DSN
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = ws.Server.AllowedOrigins
	}
	if c.MQTTBroker == "" {
		c.MQTTBroker = ws.MQTT.Broker
	}
	if c.MQTTTopic == "" {
		c.MQTTTopic = ws.MQTT.TopicPrefix
	}
	if c.MQTTClientID == "" {
		c.MQTTClientID = ws.MQTT.ClientID
	}
	c.LLMDebug = c.LLMDebug || ws.Logging.LLMDebug
	c.Telemetry = c.Telemetry || ws.Logging.Telemetry
	if c.Conversation.HistoryWindow <= 0 {
		c.Conversation.HistoryWindow = ws.Conversation.HistoryWindow
	}
	if c.Conversation.IdleTTL <= 0 {
		c.Conversation.IdleTTL = ws.Conversation.IdleTTL
	}
	if c.Conversation.Temperature == 0 {
		c.Conversation.Temperature = ws.Conversation.Temperature
	}
	if c.Conversation.OracleTimeout <= 0 {
		c.Conversation.OracleTimeout = ws.Oracle.Timeout
	}
}

// Normalize ensures every filesystem path is absolute and fills missing
// defaults so runtime initialization never has to re-check the same invariants.
func (c *Config) Normalize() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	absWorkspace, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	c.Workspace = absWorkspace
	c.DataDir = c.absPath(c.DataDir, dataDirName)
	c.LogPath = c.absPath(c.LogPath, filepath.Join(dataDirName, "ceylo.log"))
	c.TelemetryPath = c.absPath(c.TelemetryPath, filepath.Join(dataDirName, "telemetry.jsonl"))
	c.ConfigPath = c.absPath(c.ConfigPath, filepath.Join(dataDirName, "config.yaml"))
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = llm.DefaultEndpoint
	}
	if c.OllamaModel == "" {
		c.OllamaModel = llm.DefaultModel
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case "":
		c.StoreDriver = StoreFile
	case StoreFile, StoreSQLite, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.StoreDriver == StorePostgres && c.StoreDSN == "" {
		return fmt.Errorf("store.dsn required for postgres")
	}
	if c.StoreDSN == "" {
		switch c.StoreDriver {
		case StoreFile:
			c.StoreDSN = filepath.Join(c.DataDir, "sessions")
		case StoreSQLite:
			c.StoreDSN = filepath.Join(c.DataDir, "ceylo.db")
		}
	} else if c.StoreDriver == StoreFile || c.StoreDriver == StoreSQLite {
		c.StoreDSN = c.absPath(c.StoreDSN, c.StoreDSN)
	}
	c.Conversation.Model = c.OllamaModel
	c.Conversation = c.Conversation.Normalize()
	return nil
}

func (c *Config) absPath(value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(c.Workspace, value)
}

// WorkspaceConfig is .ceylo/config.yaml.
type WorkspaceConfig struct {
	Model        string          `yaml:"model,omitempty"`
	Endpoint     string          `yaml:"endpoint,omitempty"`
	Conversation agents.Settings `yaml:"conversation,omitempty"`
	Oracle       OracleConfig    `yaml:"oracle,omitempty"`
	Store        StoreConfig     `yaml:"store,omitempty"`
	MQTT         MQTTConfig      `yaml:"mqtt,omitempty"`
	Logging      LoggingConfig   `yaml:"logging,omitempty"`
	Server       ServerConfig    `yaml:"server,omitempty"`
}

// ServerConfig configures the HTTP and WebSocket API.
type ServerConfig struct {
	// AllowedOrigins are browser origins allowed to open a chat WebSocket
	// besides the API's own host.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// OracleConfig tunes model calls.
type OracleConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// MQTTConfig points at the broker the map collaborator listens on.
type MQTTConfig struct {
	Broker      string `yaml:"broker,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	LLMDebug  bool `yaml:"llm_debug,omitempty"`
	Telemetry bool `yaml:"telemetry,omitempty"`
}

// LoadWorkspaceConfig loads the workspace configuration from disk.
func LoadWorkspaceConfig(path string) (WorkspaceConfig, error) {
	if path == "" {
		return WorkspaceConfig{}, fmt.Errorf("config path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkspaceConfig{}, err
	}
	var cfg WorkspaceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorkspaceConfig{}, err
	}
	return cfg, nil
}

// SaveWorkspaceConfig persists the configuration.
func SaveWorkspaceConfig(path string, cfg WorkspaceConfig) error {
	if path == "" {
		return fmt.Errorf("config path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
