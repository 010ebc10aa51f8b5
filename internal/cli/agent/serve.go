package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remora-mesh/remora/internal/component"
	"github.com/remora-mesh/remora/internal/config"
	"github.com/remora-mesh/remora/internal/debug/agent"
	"github.com/remora-mesh/remora/internal/logging"
	"github.com/remora-mesh/remora/internal/privilege"
	"github.com/remora-mesh/remora/internal/sysapi/hostsys"
	"github.com/remora-mesh/remora/internal/transport"
	"github.com/remora-mesh/remora/pkg/version"
)

// NewServeCmd creates the serve command for the debug agent.
func NewServeCmd() *cobra.Command {
	var (
		configFile string
		listenPort int
		quitOnExit bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the debug protocol to remote clients",
		Long: `Run the debug agent and serve the wire protocol over TCP.

The agent will:
- Accept one debug client at a time (session state survives reconnects)
- Launch, attach to, and observe processes on this machine
- Install breakpoints and stream thread and module events to the client
- Run until stopped by signal or told to quit by the client

Configuration sources (in order of precedence):
1. Environment variables (REMORA_*)
2. Config file (--config flag)
3. Defaults

Environment Variables:
  REMORA_LISTEN_ADDRESS  - Bind address (default 127.0.0.1)
  REMORA_LISTEN_PORT     - TCP port (default 2345)
  REMORA_LOG_LEVEL       - Logging level (debug, info, warn, error)
  REMORA_LOG_PRETTY      - Human-readable console output (true/false)
  REMORA_QUIT_ON_EXIT    - Quit when the last debugged process exits

Examples:
  # Defaults (localhost:2345)
  remora-agent serve

  # With config file
  remora-agent serve --config /etc/remora/agent.yaml

  # One-shot session on an alternate port
  remora-agent serve --port 9229 --quit-on-exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load agent configuration: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Listen.Port = listenPort
			}
			if cmd.Flags().Changed("quit-on-exit") {
				cfg.Agent.QuitOnExit = quitOnExit
			}

			logger := logging.NewWithComponent(logging.Config{
				Level:  cfg.Log.Level,
				Pretty: cfg.Log.Pretty,
			}, "agent")

			logger.Info().
				Str("version", version.Full()).
				Str("addr", cfg.ListenAddr()).
				Bool("quit_on_exit", cfg.Agent.QuitOnExit).
				Msg("Starting remora agent")

			if priv := privilege.Detect(); !priv.CanDebugOthers() {
				logger.Warn().
					Int("euid", priv.EUID).
					Int("ptrace_scope", priv.PtraceScope).
					Msg("Insufficient privileges for cross-process debugging; attaching to other users' processes will fail")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The client can ask the agent to quit; that cancels the
			// same context the signal handler does.
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			sys := hostsys.New(logger)
			components := component.NewExecManager(logger)

			a := agent.New(sys, components, version.Version, logger, cancel,
				agent.WithMaxWorkers(cfg.Agent.MaxWorkers),
				agent.WithQuitOnExit(cfg.Agent.QuitOnExit))
			defer a.Shutdown()

			srv := transport.New(cfg.ListenAddr(), a, cfg.Listen.AcceptBackoff, logger)
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("agent server failed: %w", err)
			}

			logger.Info().Msg("Agent stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to agent configuration file")
	cmd.Flags().IntVar(&listenPort, "port", 0, "TCP port to listen on (overrides config file)")
	cmd.Flags().BoolVar(&quitOnExit, "quit-on-exit", false, "Quit when the last debugged process exits")

	return cmd
}
