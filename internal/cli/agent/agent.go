// Package agent provides the CLI commands for running the debug agent.
package agent

import (
	"github.com/spf13/cobra"
)

// RegisterCommands adds the agent commands to the given root command.
func RegisterCommands(root *cobra.Command) {
	root.AddCommand(NewServeCmd())
}
