package server

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/lewisedginton/agent_handoff/internal/config"
	"github.com/lewisedginton/agent_handoff/internal/handoff"
	"github.com/lewisedginton/agent_handoff/internal/mailbox"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// OpenMailbox creates the configured mailbox store. For the redis backend the
// client is returned as well so callers can health-check and close it.
func OpenMailbox(ctx context.Context, cfg appconfig.MailboxConfig, log logger.Logger) (mailbox.Store, redis.UniversalClient, error) {
	mc := mailbox.Config{
		Backend:   mailbox.BackendType(cfg.Backend),
		Namespace: cfg.Namespace,
	}
	var rdb redis.UniversalClient

	switch mc.Backend {
	case mailbox.BackendLocal:
		log.Info("Using local mailbox", logger.StringField("directory", cfg.Dir))

		mode, err := cfg.Mode()
		if err != nil {
			return nil, nil, err
		}
		// 0750 needed for directory traversal
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create mailbox directory: %w", err)
		}
		mc.Local = &mailbox.LocalConfig{Dir: cfg.Dir, FileMode: fs.FileMode(mode)}

	case mailbox.BackendS3:
		log.Info("Using S3 mailbox",
			logger.StringField("bucket", cfg.S3Bucket),
			logger.StringField("prefix", cfg.S3Prefix),
			logger.StringField("region", cfg.S3Region))

		configOptions := []func(*awsconfig.LoadOptions) error{}
		if cfg.S3Profile != "" {
			configOptions = append(configOptions, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
		}
		if cfg.S3Region != "" {
			configOptions = append(configOptions, awsconfig.WithRegion(cfg.S3Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		mc.S3 = &mailbox.S3Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Client: mailbox.NewAWSS3Client(client),
		}

	case mailbox.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		log.Info("Using redis mailbox",
			logger.StringField("addr", opts.Addr),
			logger.StringField("key_prefix", cfg.RedisKeyPrefix))

		rdb = redis.NewClient(opts)
		mc.Redis = &mailbox.RedisConfig{Client: rdb, KeyPrefix: cfg.RedisKeyPrefix}
	}

	store, err := mailbox.New(mc)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, fmt.Errorf("failed to create mailbox: %w", err)
	}
	return store, rdb, nil
}

// Layout returns the slot names agreed with the agent.
func Layout(cfg appconfig.MailboxConfig) mailbox.Layout {
	return mailbox.Layout{
		Request: cfg.RequestSlot,
		Payload: cfg.PayloadSlot,
		Marker:  cfg.MarkerSlot,
	}
}

// ChannelConfig translates the handoff block of cfg.
func ChannelConfig(cfg *appconfig.AppConfig) (handoff.Config, error) {
	timeout, err := cfg.Handoff.TimeoutDuration()
	if err != nil {
		return handoff.Config{}, err
	}
	return handoff.Config{
		Layout:     Layout(cfg.Mailbox),
		Timeout:    timeout,
		BusyPolicy: handoff.BusyPolicy(cfg.Handoff.BusyPolicy),
		Backoff: handoff.Backoff{
			Initial:    cfg.Handoff.PollInitial,
			Max:        cfg.Handoff.PollMax,
			Multiplier: cfg.Handoff.PollMultiplier,
		},
		DisableWatch: cfg.Handoff.DisableWatch,
		AcceptAcked:  cfg.Handoff.AcceptAcked,
	}, nil
}
