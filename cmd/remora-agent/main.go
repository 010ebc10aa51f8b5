// Package main provides the remora-agent server binary.
//
// The agent runs on the machine holding the processes to debug and
// serves the debug protocol over TCP to remote clients.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remora-mesh/remora/internal/cli/agent"
	"github.com/remora-mesh/remora/internal/cli/config"
	"github.com/remora-mesh/remora/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "remora-agent",
		Short:         "Remora Agent - remote debugging endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Register agent subcommands directly on root for a flat hierarchy
	// (e.g. "remora-agent serve" instead of "remora-agent agent serve").
	agent.RegisterCommands(rootCmd)

	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Remora Agent version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
