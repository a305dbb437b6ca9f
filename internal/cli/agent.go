package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/agent_handoff/internal/agent"
	"github.com/lewisedginton/agent_handoff/internal/server"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// AgentCommand returns a command that runs the reference agent
func AgentCommand() *cli.Command {
	return &cli.Command{
		Name:    "agent",
		Aliases: []string{"a"},
		Usage:   "Reference agent operations",
		Subcommands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Answer requests from the mailbox until interrupted",
				Action: agentRunAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "responder",
						Usage: "Override the configured responder (echo, anthropic, openai, gemini)",
					},
					&cli.BoolFlag{
						Name:  "ack",
						Usage: "Delete each request as soon as it is picked up; the service needs HANDOFF_ACCEPT_ACKED",
					},
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Answer the pending request, if any, and exit",
					},
				},
			},
		},
	}
}

func agentRunAction(ctx *cli.Context) error {
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("responder") {
		cfg.Agent.Responder = ctx.String("responder")
	}
	if ctx.IsSet("ack") {
		cfg.Agent.Ack = ctx.Bool("ack")
	}
	if err := cfg.ValidateAgent(); err != nil {
		log.Error("Invalid agent configuration", logger.ErrorField(err))
		return fmt.Errorf("invalid agent configuration: %w", err)
	}

	if cfg.Agent.Ack && !cfg.Handoff.AcceptAcked {
		log.Warn("Acknowledged requests are refused unless the service sets HANDOFF_ACCEPT_ACKED")
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, rdb, err := server.OpenMailbox(runCtx, cfg.Mailbox, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	responder, err := agent.NewResponder(runCtx, cfg.Agent)
	if err != nil {
		log.Error("Failed to create responder", logger.ErrorField(err))
		return fmt.Errorf("failed to create responder: %w", err)
	}

	consumer := agent.NewConsumer(store, server.Layout(cfg.Mailbox), responder,
		agent.WithLogger(log),
		agent.WithPollInterval(cfg.Agent.PollInterval),
		agent.WithAck(cfg.Agent.Ack),
	)

	if ctx.Bool("once") {
		handled, err := consumer.HandleOnce(runCtx)
		if err != nil {
			return err
		}
		if !handled {
			log.Info("No pending request")
		}
		return nil
	}

	if err := consumer.Run(runCtx); err != nil {
		log.Error("Agent consumer failed", logger.ErrorField(err))
		return fmt.Errorf("agent consumer failed: %w", err)
	}
	return nil
}
