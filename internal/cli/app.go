// Package cli holds the commands of the handoff binary.
package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/agent_handoff/internal/monitoring"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// NewApp returns the handoff command line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "handoff",
		Usage:   "Hand user utterances to an external agent through a shared mailbox",
		Version: monitoring.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  "json",
				Service: "agent-handoff",
			})

			// Store logger in context for commands to use
			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}
			return nil
		},
		Commands: []*cli.Command{
			ConfigCommand(),
			ServerCommand(),
			AgentCommand(),
			ExchangeCommand(),
		},
	}
}
