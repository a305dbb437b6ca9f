package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/agent_handoff/internal/server"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// ServerCommand returns a command for server operations
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Server operations",
		Subcommands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Start the chat endpoint",
				Action: serverStartAction,
			},
		},
	}
}

func serverStartAction(ctx *cli.Context) error {
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.LogConfig(log)

	s, err := server.New(ctx.Context, cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan, closer, gracefulCloser, err := s.Listen()
	if err != nil {
		log.Error("Failed to start server", logger.ErrorField(err))
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("HTTP service started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))
		gracefulCloser()
		log.Info("Server exited gracefully")
	case err := <-errChan:
		if err != nil {
			log.Error("Fatal server error occurred", logger.ErrorField(err))
			closer()
			return fmt.Errorf("server error: %w", err)
		}
		log.Info("Server exited normally")
	}

	return nil
}
