package config

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// MailboxConfig selects the slot store shared with the agent
type MailboxConfig struct {
	Backend   string `env:"MAILBOX_BACKEND" yaml:"backend" default:"local"` // "local", "s3" or "redis"
	Namespace string `env:"MAILBOX_NAMESPACE" yaml:"namespace"`

	RequestSlot string `env:"MAILBOX_REQUEST_SLOT" yaml:"request_slot" default:"user_input.txt"`
	PayloadSlot string `env:"MAILBOX_PAYLOAD_SLOT" yaml:"payload_slot" default:"agent_output.txt"`
	MarkerSlot  string `env:"MAILBOX_MARKER_SLOT" yaml:"marker_slot" default:"agent_output_completed.txt"`

	Dir      string `env:"MAILBOX_DIR" yaml:"dir" default:"."`
	FileMode string `env:"MAILBOX_FILE_MODE" yaml:"file_mode" default:"0644"` // octal

	S3Bucket   string `env:"MAILBOX_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix   string `env:"MAILBOX_S3_PREFIX" yaml:"s3_prefix"`
	S3Region   string `env:"MAILBOX_S3_REGION" yaml:"s3_region"`
	S3Profile  string `env:"MAILBOX_S3_PROFILE" yaml:"s3_profile"`
	S3Endpoint string `env:"MAILBOX_S3_ENDPOINT" yaml:"s3_endpoint"` // S3-compatible endpoint, e.g. MinIO

	RedisURL       string `env:"MAILBOX_REDIS_URL" yaml:"redis_url"`
	RedisKeyPrefix string `env:"MAILBOX_REDIS_KEY_PREFIX" yaml:"redis_key_prefix" default:"handoff"`
}

// Mode parses FileMode as an octal permission.
func (m MailboxConfig) Mode() (uint32, error) {
	v, err := strconv.ParseUint(m.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("file_mode must be octal, got %q", m.FileMode)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("file_mode must be a permission, got %q", m.FileMode)
	}
	return uint32(v), nil
}

func (m MailboxConfig) Validate() error {
	var result error

	switch m.Backend {
	case "local":
		if m.Dir == "" {
			result = multierror.Append(result, fmt.Errorf("MAILBOX_DIR is required for local backend"))
		}
		if _, err := m.Mode(); err != nil {
			result = multierror.Append(result, err)
		}
	case "s3":
		if m.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("MAILBOX_S3_BUCKET is required for s3 backend"))
		}
	case "redis":
		if m.RedisURL == "" {
			result = multierror.Append(result, fmt.Errorf("MAILBOX_REDIS_URL is required for redis backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("mailbox backend must be one of [local, s3, redis], got %q", m.Backend))
	}
	return result
}
