// Package health runs liveness and readiness checks and serves their results over HTTP.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// Check represents a single health check that can succeed or fail.
type Check interface {
	// Name returns the human-readable name of this check
	Name() string

	// Check returns nil if healthy, error if unhealthy
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckResult represents the result of a single health check execution.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Healthy bool
	Checks  []CheckResult
}

// HealthChecker manages and executes health checks for liveness and readiness probes.
// A check is only reported unhealthy after failureThreshold consecutive failures.
type HealthChecker struct {
	mu               sync.Mutex
	livenessChecks   []Check
	readinessChecks  []Check
	timeout          time.Duration
	failureCount     map[string]int
	failureThreshold int
	logger           logger.Logger
}

// Option is a functional option for configuring HealthChecker.
type Option func(*HealthChecker)

// WithTimeout sets the timeout for individual health checks. Default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(h *HealthChecker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the logger for health check operations.
func WithLogger(l logger.Logger) Option {
	return func(h *HealthChecker) {
		h.logger = l
	}
}

// WithFailureThreshold sets the number of consecutive failures before a check is
// considered unhealthy. Default is 3.
func WithFailureThreshold(threshold int) Option {
	return func(h *HealthChecker) {
		if threshold > 0 {
			h.failureThreshold = threshold
		}
	}
}

// New creates a new HealthChecker with the given options.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{
		timeout:          5 * time.Second,
		failureThreshold: 3,
		failureCount:     make(map[string]int),
		logger:           logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck adds a check that decides whether the process should be restarted.
func (h *HealthChecker) AddLivenessCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, check)
}

// AddReadinessCheck adds a check that decides whether the service can take traffic.
func (h *HealthChecker) AddReadinessCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, check)
}

// CheckLiveness executes all liveness checks and returns an error if any fail.
func (h *HealthChecker) CheckLiveness(ctx context.Context) (*HealthStatus, error) {
	h.mu.Lock()
	checks := append([]Check(nil), h.livenessChecks...)
	h.mu.Unlock()
	return h.run(ctx, checks)
}

// CheckReadiness executes all readiness checks and returns an error if any fail.
func (h *HealthChecker) CheckReadiness(ctx context.Context) (*HealthStatus, error) {
	h.mu.Lock()
	checks := append([]Check(nil), h.readinessChecks...)
	h.mu.Unlock()
	return h.run(ctx, checks)
}

func (h *HealthChecker) run(ctx context.Context, checks []Check) (*HealthStatus, error) {
	status := &HealthStatus{Healthy: true, Checks: make([]CheckResult, len(checks))}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			status.Checks[i] = h.runOne(ctx, check)
		}(i, check)
	}
	wg.Wait()

	var failed []string
	for _, r := range status.Checks {
		if !r.Healthy {
			failed = append(failed, r.Name)
		}
	}
	if len(failed) > 0 {
		status.Healthy = false
		return status, fmt.Errorf("health checks failed: %v", failed)
	}
	return status, nil
}

func (h *HealthChecker) runOne(parent context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Name: check.Name(), Healthy: true, Latency: time.Since(start)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.failureCount[result.Name] = 0
		return result
	}

	h.failureCount[result.Name]++
	failures := h.failureCount[result.Name]
	fields := []logger.LogField{
		logger.StringField("check", result.Name),
		logger.ErrorField(err),
		logger.IntField("failures", failures),
	}
	if failures < h.failureThreshold {
		h.logger.Debug("Health check failed but below threshold", fields...)
		return result
	}

	h.logger.Warn("Health check failed", fields...)
	result.Healthy = false
	result.Error = err.Error()
	return result
}
