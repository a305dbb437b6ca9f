package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/lewisedginton/agent_handoff/pkg/config"
)

func load(t *testing.T, env map[string]string, yamlBody string) (*AppConfig, error) {
	t.Helper()
	os.Clearenv()
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg := &AppConfig{}
	if yamlBody == "" {
		return cfg, pkgconfig.GetConfigFromEnvVars(cfg)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	return cfg, pkgconfig.GetConfig(cfg, path, false)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t, nil, "")
	require.NoError(t, err)

	assert.Equal(t, 5001, cfg.HTTP.Port)
	assert.Equal(t, "local", cfg.Mailbox.Backend)
	assert.Equal(t, "user_input.txt", cfg.Mailbox.RequestSlot)
	assert.Equal(t, "agent_output.txt", cfg.Mailbox.PayloadSlot)
	assert.Equal(t, "agent_output_completed.txt", cfg.Mailbox.MarkerSlot)
	assert.Equal(t, "queue", cfg.Handoff.BusyPolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.Handoff.PollInitial)
	assert.Equal(t, "echo", cfg.Agent.Responder)
	assert.False(t, cfg.Journal.Enabled())

	timeout, err := cfg.Handoff.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, timeout)

	mode, err := cfg.Mailbox.Mode()
	require.NoError(t, err)
	assert.Equal(t, uint32(0o644), mode)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"HANDOFF_TIMEOUT":      "0",
		"HANDOFF_BUSY_POLICY":  "reject",
		"MAILBOX_BACKEND":      "redis",
		"MAILBOX_REDIS_URL":    "redis://localhost:6379/0",
		"JOURNAL_DATABASE_URL": "postgres://localhost/handoff",
	}, "")
	require.NoError(t, err)

	timeout, err := cfg.Handoff.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, timeout)
	assert.Equal(t, "reject", cfg.Handoff.BusyPolicy)
	assert.True(t, cfg.Journal.Enabled())
}

func TestYAML(t *testing.T) {
	cfg, err := load(t, map[string]string{"MAILBOX_ROOT": "/srv/mailbox"}, `
mailbox:
  dir: ${MAILBOX_ROOT}
  namespace: dialog-7
handoff:
  timeout: none
  poll_max: 5s
agent:
  responder: echo
  echo_prefix: "agent: "
`)
	require.NoError(t, err)

	assert.Equal(t, "/srv/mailbox", cfg.Mailbox.Dir)
	assert.Equal(t, "dialog-7", cfg.Mailbox.Namespace)
	assert.Equal(t, 5*time.Second, cfg.Handoff.PollMax)
	assert.Equal(t, "agent: ", cfg.Agent.EchoPrefix)

	timeout, err := cfg.Handoff.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown backend", map[string]string{"MAILBOX_BACKEND": "ftp"}, "mailbox backend"},
		{"s3 without bucket", map[string]string{"MAILBOX_BACKEND": "s3"}, "MAILBOX_S3_BUCKET"},
		{"redis without url", map[string]string{"MAILBOX_BACKEND": "redis"}, "MAILBOX_REDIS_URL"},
		{"bad file mode", map[string]string{"MAILBOX_FILE_MODE": "rw-r--r--"}, "file_mode"},
		{"bad busy policy", map[string]string{"HANDOFF_BUSY_POLICY": "drop"}, "busy_policy"},
		{"bad timeout", map[string]string{"HANDOFF_TIMEOUT": "soon"}, "handoff timeout"},
		{"negative timeout", map[string]string{"HANDOFF_TIMEOUT": "-1s"}, "negative"},
		{"poll max below initial", map[string]string{"HANDOFF_POLL_MAX": "100ms"}, "poll intervals"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "log_level"},
		{"probe on request slot", map[string]string{"HEALTH_PROBE_SLOT": "user_input.txt"}, "collides with a mailbox slot"},
		{"probe on renamed marker", map[string]string{"MAILBOX_MARKER_SLOT": "done", "HEALTH_PROBE_SLOT": "done"}, "collides with a mailbox slot"},
		{"write timeout below handoff timeout", map[string]string{"HANDOFF_TIMEOUT": "10m"}, "write_timeout_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.env, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteTimeoutOutlivesHandoffTimeout(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"longer write timeout": {"HANDOFF_TIMEOUT": "10m", "HTTP_WRITE_TIMEOUT_SECONDS": "660"},
		"no write timeout":     {"HANDOFF_TIMEOUT": "10m", "HTTP_WRITE_TIMEOUT_SECONDS": "0"},
		"unbounded exchange":   {"HANDOFF_TIMEOUT": "none", "HTTP_WRITE_TIMEOUT_SECONDS": "30"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, env, "")
			assert.NoError(t, err)
		})
	}
}

func TestValidateAgent(t *testing.T) {
	cfg, err := load(t, map[string]string{"AGENT_RESPONDER": "anthropic"}, "")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.ValidateAgent(), "ANTHROPIC_API_KEY")

	cfg, err = load(t, map[string]string{"AGENT_RESPONDER": "anthropic", "ANTHROPIC_API_KEY": "sk-test"}, "")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateAgent())

	cfg, err = load(t, map[string]string{"AGENT_RESPONDER": "gemini", "GOOGLE_CLOUD_PROJECT": "p", "GOOGLE_CLOUD_REGION": "europe-west1"}, "")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateAgent())

	cfg, err = load(t, map[string]string{"AGENT_RESPONDER": "parrot"}, "")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.ValidateAgent(), "responder must be one of")
}
