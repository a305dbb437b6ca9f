// Package server exposes the handoff channel over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"

	appconfig "github.com/lewisedginton/agent_handoff/internal/config"
	"github.com/lewisedginton/agent_handoff/internal/handoff"
	"github.com/lewisedginton/agent_handoff/internal/journal"
	"github.com/lewisedginton/agent_handoff/internal/mailbox"
	"github.com/lewisedginton/agent_handoff/internal/monitoring"
	"github.com/lewisedginton/agent_handoff/pkg/httpmiddleware"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
	"github.com/lewisedginton/agent_handoff/pkg/metrics"
	"github.com/lewisedginton/agent_handoff/pkg/utils"
)

// Components are the external resources a Server runs on.
type Components struct {
	Store   mailbox.Store
	Redis   redis.UniversalClient // set for the redis mailbox
	Journal journal.Journal       // nil means no journal
}

// Server encapsulates the HTTP endpoint, the handoff channel and lifecycle management
type Server struct {
	cfg        *appconfig.AppConfig
	log        logger.Logger
	components Components
	channel    *handoff.Channel
	metrics    *metrics.Metrics
	health     *monitoring.HealthMonitor
	server     *http.Server
	stopMetric func(context.Context) error
}

// New opens the configured mailbox and journal and builds a Server on them.
func New(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	store, rdb, err := OpenMailbox(ctx, cfg.Mailbox, log)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(ctx, cfg.Journal, log)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return NewWithComponents(cfg, log, Components{Store: store, Redis: rdb, Journal: j})
}

// NewWithComponents builds a Server on already opened components.
func NewWithComponents(cfg *appconfig.AppConfig, log logger.Logger, c Components) (*Server, error) {
	if c.Journal == nil {
		c.Journal = journal.Noop{}
	}

	s := &Server{
		cfg:        cfg,
		log:        log,
		components: c,
		metrics:    metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, cfg.Metrics.EnableExchangeMetrics, log),
	}

	channelCfg, err := ChannelConfig(cfg)
	if err != nil {
		return nil, err
	}
	s.channel, err = handoff.New(c.Store, channelCfg,
		handoff.WithLogger(log),
		handoff.WithObserver(s.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handoff channel: %w", err)
	}

	hc := monitoring.Config{
		Logger:           log,
		Store:            c.Store,
		ProbeSlot:        cfg.Health.ProbeSlot,
		Redis:            c.Redis,
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
	}
	if _, noop := c.Journal.(journal.Noop); !noop {
		hc.Journal = c.Journal
	}
	s.health, err = monitoring.NewHealthMonitor(hc)
	if err != nil {
		return nil, fmt.Errorf("failed to create health monitor: %w", err)
	}

	s.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:        s.createRouter(),
		ReadTimeout:    cfg.HTTP.ReadTimeout(),
		WriteTimeout:   cfg.HTTP.WriteTimeout(),
		IdleTimeout:    cfg.HTTP.IdleTimeout(),
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	log.Info("Handoff server initialized",
		logger.IntField("http_port", cfg.HTTP.Port),
		logger.StringField("request_slot", channelCfg.Layout.Request),
		logger.DurationField("exchange_timeout", channelCfg.Timeout),
		logger.StringField("busy_policy", string(channelCfg.BusyPolicy)))

	return s, nil
}

// Handler returns the HTTP handler with all middleware installed.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Channel returns the handoff channel the server drives.
func (s *Server) Channel() *handoff.Channel {
	return s.channel
}

// createRouter sets up all routes and middleware
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.metrics.HTTPMiddleware())

	mw := httpmiddleware.DefaultConfig()
	mw.Logger = s.log
	mw.EnableLogging = true
	mw.StripPrefix = s.cfg.Security.StripPrefix
	mw.CORS.AllowedOrigins = s.cfg.Security.CORSAllowedOrigins
	mw.Security = &secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}
	httpmiddleware.ApplyToRouter(r, mw)

	r.Post("/chat", s.chatHandler)
	s.health.RegisterHandlers(r, s.cfg.Health.LivenessPath, s.cfg.Health.ReadinessPath)

	return r
}

// Listen starts the HTTP server, and the metrics server when exposed, and
// returns a channel for fatal errors together with a forceful and a graceful closer.
func (s *Server) Listen() (chan error, func(), func(), error) {
	errChan := make(chan error, 1)
	channels := []chan error{errChan}

	if s.cfg.Metrics.ExposeMetrics {
		metricsErr, stop := s.metrics.Listen(s.cfg.Metrics.Port)
		s.stopMetric = stop
		channels = append(channels, metricsErr)
	}

	go func() {
		s.log.Info("Starting HTTP server", logger.StringField("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	closer := func() {
		s.log.Info("Forcefully closing HTTP server")
		if err := s.Close(); err != nil {
			s.log.Error("Error during forced shutdown", logger.ErrorField(err))
		}
	}

	gracefulCloser := func() {
		s.log.Info("Gracefully closing HTTP server")
		if err := s.GracefulShutdown(); err != nil {
			s.log.Error("Error during graceful shutdown", logger.ErrorField(err))
		}
	}

	return utils.MergeErrorChans(channels...), closer, gracefulCloser, nil
}

// GracefulShutdown withdraws readiness, waits for in-flight exchanges up to
// the shutdown timeout and releases the components.
func (s *Server) GracefulShutdown() error {
	s.health.ShutdownCheck()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	if s.stopMetric != nil {
		if err := s.stopMetric(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown error: %w", err))
		}
	}
	errs = append(errs, s.release())
	return errors.Join(errs...)
}

// Close forcefully shuts down the server
func (s *Server) Close() error {
	err := s.server.Close()
	return errors.Join(err, s.release())
}

func (s *Server) release() error {
	s.components.Journal.Close()
	if s.components.Redis != nil {
		return s.components.Redis.Close()
	}
	return nil
}
