package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/agent_handoff/internal/handoff"
	"github.com/lewisedginton/agent_handoff/internal/server"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// ExchangeCommand returns a command that runs one exchange without the HTTP server
func ExchangeCommand() *cli.Command {
	return &cli.Command{
		Name:    "exchange",
		Aliases: []string{"x"},
		Usage:   "Exchange operations",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Publish an utterance and print the agent's reply",
				ArgsUsage: "<utterance>",
				Action:    exchangeSendAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "experiment-id", Usage: "Experiment label"},
					&cli.StringFlag{Name: "dialog-id", Usage: "Dialog label"},
					&cli.StringFlag{Name: "turn-id", Usage: "Turn label"},
					&cli.StringFlag{Name: "system-name", Usage: "System label"},
					&cli.BoolFlag{Name: "json", Usage: "Print the full result as JSON"},
				},
			},
		},
	}
}

type exchangeOutput struct {
	ExchangeID string `json:"exchange_id"`
	Reply      string `json:"agent_utterance"`
	Outcome    string `json:"outcome"`
	WaitMs     int64  `json:"wait_ms"`
	DurationMs int64  `json:"duration_ms"`
}

func exchangeSendAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 || ctx.Args().First() == "" {
		return cli.Exit("exactly one non-empty utterance is required", 2)
	}

	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	// Interrupting withdraws the request before exiting.
	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, rdb, err := server.OpenMailbox(runCtx, cfg.Mailbox, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	channelCfg, err := server.ChannelConfig(cfg)
	if err != nil {
		return err
	}
	channel, err := handoff.New(store, channelCfg, handoff.WithLogger(log))
	if err != nil {
		return err
	}

	res, err := channel.Exchange(runCtx, handoff.Request{
		Utterance: ctx.Args().First(),
		Labels: handoff.Labels{
			ExperimentID: ctx.String("experiment-id"),
			DialogID:     ctx.String("dialog-id"),
			TurnID:       ctx.String("turn-id"),
			SystemName:   ctx.String("system-name"),
		},
	})
	if err != nil {
		log.Error("Exchange failed", logger.ErrorField(err))
		return fmt.Errorf("exchange failed: %w", err)
	}

	if !ctx.Bool("json") {
		_, err = fmt.Fprintln(ctx.App.Writer, res.Reply)
		return err
	}
	return json.NewEncoder(ctx.App.Writer).Encode(exchangeOutput{
		ExchangeID: res.ID.String(),
		Reply:      res.Reply,
		Outcome:    res.Outcome,
		WaitMs:     res.Wait().Milliseconds(),
		DurationMs: res.Duration().Milliseconds(),
	})
}
