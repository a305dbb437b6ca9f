package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lewisedginton/agent_handoff/internal/mailbox"
	"github.com/lewisedginton/agent_handoff/pkg/health"
	"github.com/lewisedginton/agent_handoff/pkg/health/checkers"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// Health status constants
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusReady     = "ready"
	statusNotReady  = "not_ready"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// Pinger is anything that can report whether its backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor manages health checks and monitoring endpoints for the application
type HealthMonitor struct {
	checker      *health.HealthChecker
	logger       logger.Logger
	startTime    time.Time
	shuttingDown atomic.Bool
}

// Config holds configuration for the health monitor
type Config struct {
	Logger           logger.Logger
	Store            mailbox.Store         // mailbox to probe; required
	ProbeSlot        string                // prefix of the slots used by the mailbox probe
	Redis            redis.UniversalClient // optional, set for the redis backend
	Journal          Pinger                // optional
	Timeout          time.Duration         // Health check timeout
	FailureThreshold int                   // Number of consecutive failures before reporting unhealthy
}

// NewHealthMonitor creates a new health monitor with configured checks
func NewHealthMonitor(cfg Config) (*HealthMonitor, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 3
	}
	if cfg.ProbeSlot == "" {
		cfg.ProbeSlot = ".handoff_probe"
	}
	if err := mailbox.ValidateSlot(cfg.ProbeSlot); err != nil {
		return nil, fmt.Errorf("probe slot: %w", err)
	}

	hm := &HealthMonitor{
		checker: health.New(
			health.WithLogger(cfg.Logger),
			health.WithTimeout(timeout),
			health.WithFailureThreshold(failureThreshold),
		),
		logger:    cfg.Logger,
		startTime: time.Now(),
	}

	hm.checker.AddLivenessCheck(health.NewCheckFunc("process", func(ctx context.Context) error {
		return nil
	}))

	hm.checker.AddReadinessCheck(health.NewCheckFunc("shutdown", func(ctx context.Context) error {
		if hm.shuttingDown.Load() {
			return fmt.Errorf("shutting down")
		}
		return nil
	}))
	hm.checker.AddReadinessCheck(NewMailboxProbe(cfg.Store, cfg.ProbeSlot))

	if cfg.Redis != nil {
		hm.checker.AddReadinessCheck(checkers.NewRedisChecker(cfg.Redis, "mailbox_redis"))
	}
	if cfg.Journal != nil {
		hm.checker.AddReadinessCheck(health.NewCheckFunc("journal", cfg.Journal.Ping))
	}

	return hm, nil
}

// NewMailboxProbe returns a check that writes, reads back and deletes a slot
// named after prefix. Each run uses its own slot, so concurrent checks and
// replicas sharing the mailbox do not trip over each other.
func NewMailboxProbe(store mailbox.Store, prefix string) health.Check {
	return health.NewCheckFunc("mailbox", func(ctx context.Context) error {
		slot := prefix + "." + uuid.NewString()
		want := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
		if err := store.WriteAtomic(ctx, slot, want); err != nil {
			return fmt.Errorf("write probe: %w", err)
		}
		got, err := store.Read(ctx, slot)
		if err != nil {
			return fmt.Errorf("read probe: %w", err)
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("probe read back %q, wrote %q", got, want)
		}
		if err := store.Delete(ctx, slot); err != nil {
			return fmt.Errorf("delete probe: %w", err)
		}
		return nil
	})
}

// LivenessHandler returns an HTTP handler for Kubernetes liveness probes
func (hm *HealthMonitor) LivenessHandler() http.HandlerFunc {
	return hm.checker.LivenessHandler()
}

// ReadinessHandler returns an HTTP handler for Kubernetes readiness probes
func (hm *HealthMonitor) ReadinessHandler() http.HandlerFunc {
	return hm.checker.ReadinessHandler()
}

// HealthHandler returns a combined health endpoint that includes both liveness and readiness
// GET /health - Returns comprehensive health status
func (hm *HealthMonitor) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		livenessStatus, livenessErr := hm.checker.CheckLiveness(ctx)
		readinessStatus, readinessErr := hm.checker.CheckReadiness(ctx)

		liveness := map[string]interface{}{
			"status": statusHealthy,
			"checks": livenessStatus.Checks,
		}
		readiness := map[string]interface{}{
			"status": statusReady,
			"checks": readinessStatus.Checks,
		}
		response := map[string]interface{}{
			"status":    statusHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(hm.startTime).String(),
			"version":   Version,
			"liveness":  liveness,
			"readiness": readiness,
		}

		overallHealthy := true
		if livenessErr != nil {
			liveness["status"] = statusUnhealthy
			liveness["error"] = livenessErr.Error()
			overallHealthy = false
		}
		if readinessErr != nil {
			readiness["status"] = statusNotReady
			readiness["error"] = readinessErr.Error()
			overallHealthy = false
		}

		w.Header().Set("Content-Type", "application/json")
		if !overallHealthy {
			response["status"] = statusUnhealthy
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// RegisterHandlers mounts the health endpoints on r.
func (hm *HealthMonitor) RegisterHandlers(r chi.Router, livenessPath, readinessPath string) {
	r.Get("/health", hm.HealthHandler())
	r.Get(livenessPath, hm.LivenessHandler())
	r.Get(readinessPath, hm.ReadinessHandler())
}

// ShutdownCheck marks the service as not ready so load balancers drain it
// before the listener closes.
func (hm *HealthMonitor) ShutdownCheck() {
	hm.shuttingDown.Store(true)
	hm.logger.Info("Readiness withdrawn for shutdown")
}
