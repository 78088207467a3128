package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/ceylo/internal/ceylo/runtime"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check Ollama and the conversation store",
		RunE: func(cmd *cobra.Command, args []string) error {
			probeCfg := cfg
			probeCfg.ConfigPath = configPath()
			probeCfg.ApplyEnv()
			ws, err := runtimesvc.LoadWorkspaceConfig(probeCfg.ConfigPath)
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			probeCfg.ApplyWorkspace(ws)
			if err := probeCfg.Normalize(); err != nil {
				return err
			}
			report := runtimesvc.ProbeEnvironment(cmd.Context(), probeCfg)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workspace  %s\n", report.Workspace)
			fmt.Fprintf(out, "ollama     %s %s\n", report.Ollama.Endpoint, status(report.Ollama.Healthy && report.Ollama.ModelAvailable, report.Ollama.Error))
			if len(report.Ollama.Models) > 0 {
				fmt.Fprintf(out, "models     %s\n", strings.Join(report.Ollama.Models, ", "))
			}
			fmt.Fprintf(out, "store      %s %s (%d conversations)\n", report.Store.Driver, status(report.Store.Error == "", report.Store.Error), report.Store.Conversations)
			if !report.OK() {
				return fmt.Errorf("environment not ready")
			}
			return nil
		},
	}
}

func status(ok bool, detail string) string {
	if ok {
		return "ok"
	}
	return "FAIL: " + detail
}
