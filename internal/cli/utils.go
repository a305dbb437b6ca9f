package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/agent_handoff/internal/config"
	"github.com/lewisedginton/agent_handoff/pkg/config"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	// Fallback to default logger if not found
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "agent-handoff",
	})
}

// loadConfig reads --config-file, then the environment. The returned logger
// follows the configuration unless --log-level was given explicitly.
func loadConfig(ctx *cli.Context) (*appconfig.AppConfig, logger.Logger, error) {
	log := getLogger(ctx)

	cfg := &appconfig.AppConfig{}
	if err := config.GetConfig(cfg, ctx.String("config-file"), false); err != nil {
		log.Error("Failed to load configuration", logger.ErrorField(err))
		return nil, log, fmt.Errorf("failed to load configuration: %w", err)
	}

	if !ctx.IsSet("log-level") {
		log = cfg.Logger()
	}
	return cfg, log, nil
}
