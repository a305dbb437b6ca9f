package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "agent",
						Usage: "Also validate the agent responder settings",
					},
				},
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if ctx.Bool("agent") {
		if err := cfg.ValidateAgent(); err != nil {
			log.Error("Agent configuration validation failed", logger.ErrorField(err))
			return fmt.Errorf("agent configuration validation failed: %w", err)
		}
	}

	cfg.LogConfig(log)
	log.Info("Configuration validation passed")
	_, _ = fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return nil
}
