package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/lexcodex/ceylo/agents"
	"github.com/lexcodex/ceylo/framework"
	"github.com/lexcodex/ceylo/llm"
	"github.com/lexcodex/ceylo/notify"
	"github.com/lexcodex/ceylo/persistence"
	"github.com/lexcodex/ceylo/server"
)

// Runtime wires the ceylo CLI, Bubble Tea UI, RPC and HTTP servers to one
// conversation manager. It owns the log, telemetry sinks, model client,
// snapshot store and plan publisher.
type Runtime struct {
	Config    Config
	Workspace WorkspaceConfig
	Logger    *log.Logger
	Telemetry framework.Telemetry
	Model     framework.LanguageModel
	Store     persistence.SessionStore
	Plans     agents.PlanSink
	Manager   *agents.Manager

	logFile       io.Closer
	telemetryFile *framework.JSONFileTelemetry
	mqtt          *notify.MQTTPublisher

	serverMu     sync.Mutex
	serverCancel context.CancelFunc
}

// Option customizes New, mostly for tests.
type Option func(*Runtime)

// WithModel replaces the Ollama client.
func WithModel(model framework.LanguageModel) Option {
	return func(r *Runtime) { r.Model = model }
}

// WithPlanSink replaces the MQTT publisher.
func WithPlanSink(sink agents.PlanSink) Option {
	return func(r *Runtime) { r.Plans = sink }
}

// New builds a runtime from cfg, the environment and the workspace config.
func New(ctx context.Context, cfg Config, opts ...Option) (*Runtime, error) {
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	cfg.ApplyEnv()
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(cfg.Workspace, dataDirName, "config.yaml")
	}
	workspaceCfg, wsErr := LoadWorkspaceConfig(cfg.ConfigPath)
	if wsErr != nil {
		workspaceCfg = WorkspaceConfig{}
	}
	cfg.ApplyWorkspace(workspaceCfg)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	var out io.Writer = logFile
	if cfg.LogToStdout {
		out = io.MultiWriter(os.Stdout, logFile)
	}
	logger := log.New(out, "ceylo ", log.LstdFlags|log.Lmicroseconds)
	if wsErr != nil && !errors.Is(wsErr, os.ErrNotExist) {
		logger.Printf("workspace config load failed: %v", wsErr)
	}

	rt := &Runtime{
		Config:    cfg,
		Workspace: workspaceCfg,
		Logger:    logger,
		logFile:   logFile,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := rt.init(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) init(ctx context.Context) error {
	sinks := []framework.Telemetry{framework.LoggerTelemetry{Logger: r.Logger}}
	if r.Config.Telemetry {
		fileSink, err := framework.NewJSONFileTelemetry(r.Config.TelemetryPath)
		if err != nil {
			return fmt.Errorf("telemetry init: %w", err)
		}
		r.telemetryFile = fileSink
		sinks = append(sinks, fileSink)
	}
	r.Telemetry = framework.MultiplexTelemetry{Sinks: sinks}

	if r.Model == nil {
		client := llm.NewClient(r.Config.OllamaEndpoint, r.Config.OllamaModel)
		client.Logger = r.Logger
		client.SetDebugLogging(r.Config.LLMDebug)
		r.Model = client
	}
	instrumented := llm.NewInstrumentedModel(r.Model, r.Telemetry, r.Config.LLMDebug)

	store, err := OpenStore(ctx, r.Config)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	r.Store = store

	if r.Plans == nil {
		r.Plans = notify.NopPublisher{}
		if r.Config.MQTTBroker != "" {
			pub, err := notify.NewMQTTPublisher(notify.Config{
				BrokerURL:   r.Config.MQTTBroker,
				ClientID:    r.Config.MQTTClientID,
				TopicPrefix: r.Config.MQTTTopic,
			}, r.Logger)
			if err != nil {
				r.Logger.Printf("plan publisher unavailable: %v", err)
			} else {
				r.mqtt = pub
				r.Plans = pub
			}
		}
	}

	r.Manager = agents.NewManager(&agents.Environment{
		Model:     instrumented,
		Telemetry: r.Telemetry,
		Settings:  r.Config.Conversation,
		Plans:     r.Plans,
	}, r.Store, r.Logger)
	r.Logger.Printf("runtime ready: model=%s endpoint=%s store=%s", r.Config.OllamaModel, r.Config.OllamaEndpoint, r.Config.StoreDriver)
	return nil
}

// OpenStore opens the snapshot store selected by cfg.
func OpenStore(ctx context.Context, cfg Config) (persistence.SessionStore, error) {
	switch cfg.StoreDriver {
	case StoreFile, "":
		return persistence.NewFileStore(cfg.StoreDSN)
	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StoreDSN), 0o755); err != nil {
			return nil, err
		}
		return persistence.NewSQLiteStore(cfg.StoreDSN)
	case StorePostgres:
		return persistence.NewPostgresStore(ctx, cfg.StoreDSN)
	case StoreMemory:
		return persistence.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close releases resources managed by runtime.
func (r *Runtime) Close() error {
	var errs []error
	if r.Manager != nil {
		if err := r.Manager.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	} else if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.mqtt != nil {
		r.mqtt.Close()
	}
	if r.telemetryFile != nil {
		if err := r.telemetryFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.logFile != nil {
		if err := r.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartServer launches the HTTP API server. The returned stop function shuts
// it down and waits for it to exit.
func (r *Runtime) StartServer(ctx context.Context, addr string) (func(context.Context) error, error) {
	r.serverMu.Lock()
	defer r.serverMu.Unlock()
	if r.serverCancel != nil {
		return nil, errors.New("server already running")
	}
	if addr == "" {
		addr = r.Config.ServerAddr
	}
	api := &server.APIServer{Conversations: r.Manager, Logger: r.Logger, AllowedOrigins: r.Config.AllowedOrigins}
	serverCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- api.ServeContext(serverCtx, addr)
	}()
	r.serverCancel = cancel
	stopFn := func(shutdownCtx context.Context) error {
		r.serverMu.Lock()
		if r.serverCancel == nil {
			r.serverMu.Unlock()
			return nil
		}
		r.serverCancel()
		r.serverCancel = nil
		r.serverMu.Unlock()
		select {
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	}
	return stopFn, nil
}

// ServerRunning reports whether the HTTP server is active.
func (r *Runtime) ServerRunning() bool {
	r.serverMu.Lock()
	defer r.serverMu.Unlock()
	return r.serverCancel != nil
}

// ServeRPC serves JSON-RPC on rwc until the peer disconnects.
func (r *Runtime) ServeRPC(ctx context.Context, rwc io.ReadWriteCloser) error {
	rpc := &server.RPCServer{Conversations: r.Manager, Logger: r.Logger}
	return rpc.Serve(ctx, rwc)
}
