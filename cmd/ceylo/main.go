package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/ceylo/internal/ceylo/runtime"
	"github.com/lexcodex/ceylo/internal/ceylo/tui"
	"github.com/lexcodex/ceylo/server"
)

var (
	cfg         = runtimesvc.DefaultConfig()
	startServer bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ceylo",
		Short:        "Conversational Sri Lanka trip planner backed by Ollama",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "Workspace directory holding .ceylo/")
	flags.StringVar(&cfg.ConfigPath, "config", "", "Path to config.yaml (default <workspace>/.ceylo/config.yaml)")
	flags.StringVar(&cfg.OllamaEndpoint, "ollama-endpoint", "", "Ollama endpoint URL")
	flags.StringVar(&cfg.OllamaModel, "ollama-model", "", "Ollama model name")
	flags.StringVar(&cfg.StoreDriver, "store", "", "Conversation store (file, sqlite, postgres, memory)")
	flags.StringVar(&cfg.StoreDSN, "store-dsn", "", "Store location: directory, sqlite file or postgres DSN")
	flags.StringVar(&cfg.MQTTBroker, "mqtt-broker", "", "MQTT broker URL for published plans")
	flags.BoolVar(&cfg.LLMDebug, "llm-debug", false, "Log full prompts and replies")
	flags.BoolVar(&cfg.Telemetry, "telemetry", false, "Write telemetry events to .ceylo/telemetry.jsonl")

	root.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newRPCCmd(),
		newAskCmd(),
		newSessionCmd(),
		newConfigCmd(),
		newDoctorCmd(),
	)
	return root
}

func newChatCmd() *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Plan a trip in the terminal chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, false, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				if startServer {
					stop, err := rt.StartServer(ctx, cfg.ServerAddr)
					if err != nil {
						return err
					}
					defer stop(context.Background())
				}
				return tui.Run(ctx, rt, tui.Options{ConversationID: conversation})
			})
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "Resume a stored conversation")
	cmd.Flags().BoolVar(&startServer, "serve", false, "Launch the HTTP API server alongside the chat")
	cmd.Flags().StringVar(&cfg.ServerAddr, "addr", "", "HTTP server listen address")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, true, func(cmdCtx context.Context, rt *runtimesvc.Runtime) error {
				stop, err := rt.StartServer(cmdCtx, rt.Config.ServerAddr)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ceylo API listening on %s\n", rt.Config.ServerAddr)
				<-cmdCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return stop(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&cfg.ServerAddr, "addr", "", "HTTP server listen address")
	cmd.Flags().StringSliceVar(&cfg.AllowedOrigins, "allow-origin", nil, "Browser origin allowed to open chat WebSockets (repeatable)")
	return cmd
}

func newRPCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Serve JSON-RPC over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, false, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				return rt.ServeRPC(ctx, server.StdioConn{Reader: os.Stdin, Writer: os.Stdout})
			})
		},
	}
}

func newAskCmd() *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, false, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				id := conversation
				if id == "" {
					conv, err := rt.Manager.Create(ctx)
					if err != nil {
						return err
					}
					id = conv.ID
					fmt.Fprintf(cmd.ErrOrStderr(), "conversation %s\n", id)
				}
				result, err := rt.Manager.Send(ctx, id, joinArgs(args))
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "Continue an existing conversation")
	return cmd
}

func runWithRuntime(cmd *cobra.Command, logToStdout bool, fn func(context.Context, *runtimesvc.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runCfg := cfg
	runCfg.LogToStdout = logToStdout
	rt, err := runtimesvc.New(ctx, runCfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
