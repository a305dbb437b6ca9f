// Package config defines the configuration of the handoff service and agent.
package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/lewisedginton/agent_handoff/pkg/config"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Common   pkgconfig.CommonConfig     `yaml:"common"`
	HTTP     pkgconfig.HTTPServerConfig `yaml:"http"`
	Metrics  pkgconfig.MetricsConfig    `yaml:"metrics"`
	Mailbox  MailboxConfig              `yaml:"mailbox"`
	Handoff  HandoffConfig              `yaml:"handoff"`
	Agent    AgentConfig                `yaml:"agent"`
	Journal  JournalConfig              `yaml:"journal"`
	Health   HealthConfig               `yaml:"health"`
	Security SecurityConfig             `yaml:"security"`
}

// Validate checks every block and reports all problems at once
func (c *AppConfig) Validate() error {
	var result error
	for _, v := range []pkgconfig.Validator{c.Common, c.HTTP, c.Metrics, c.Mailbox, c.Handoff} {
		if err := v.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.Security.MaxRequestBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_request_bytes must be greater than 0"))
	}
	if c.Health.FailureThreshold <= 0 {
		result = multierror.Append(result, fmt.Errorf("health failure_threshold must be greater than 0"))
	}
	if c.Journal.Enabled() && c.Journal.MaxConnections <= 0 {
		result = multierror.Append(result, fmt.Errorf("journal max_connections must be greater than 0 when the journal is configured"))
	}
	for _, slot := range []string{c.Mailbox.RequestSlot, c.Mailbox.PayloadSlot, c.Mailbox.MarkerSlot} {
		if c.Health.ProbeSlot == slot {
			result = multierror.Append(result, fmt.Errorf("health probe_slot %q collides with a mailbox slot", slot))
		}
	}
	if timeout, err := c.Handoff.TimeoutDuration(); err == nil && timeout > 0 &&
		c.HTTP.WriteTimeoutSeconds > 0 && c.HTTP.WriteTimeout() <= timeout {
		result = multierror.Append(result, fmt.Errorf(
			"http write_timeout_seconds (%s) must exceed the handoff timeout (%s) or replies are lost", c.HTTP.WriteTimeout(), timeout))
	}
	return result
}

// ValidateAgent checks the settings only "agent run" needs
func (c *AppConfig) ValidateAgent() error {
	return c.Agent.Validate()
}

// Logger builds the service logger from the common block
func (c *AppConfig) Logger() logger.Logger {
	return logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(c.Common.LogLevel),
		Format:  strings.ToLower(c.Common.LogFormat),
		Service: c.Common.ServiceName,
	})
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.Common.ServiceName),
		logger.IntField("http_port", c.HTTP.Port),
		logger.StringField("mailbox_backend", c.Mailbox.Backend),
		logger.StringField("mailbox_namespace", c.Mailbox.Namespace),
		logger.StringField("handoff_timeout", c.Handoff.Timeout),
		logger.StringField("busy_policy", c.Handoff.BusyPolicy),
		logger.StringField("responder", c.Agent.Responder),
		logger.BoolField("journal_enabled", c.Journal.Enabled()),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
	)
}
