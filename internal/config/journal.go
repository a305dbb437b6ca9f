package config

import "time"

// JournalConfig enables the Postgres exchange journal when DatabaseURL is set
type JournalConfig struct {
	DatabaseURL     string        `env:"JOURNAL_DATABASE_URL" yaml:"-"`
	MaxConnections  int           `env:"JOURNAL_MAX_CONNECTIONS" yaml:"max_connections" default:"5"`
	ConnMaxLifetime time.Duration `env:"JOURNAL_CONN_MAX_LIFETIME" yaml:"conn_max_lifetime" default:"30m"`
	ConnMaxIdleTime time.Duration `env:"JOURNAL_CONN_MAX_IDLE_TIME" yaml:"conn_max_idle_time" default:"5m"`
	WriteTimeout    time.Duration `env:"JOURNAL_WRITE_TIMEOUT" yaml:"write_timeout" default:"3s"`
}

// Enabled reports whether a journal database is configured.
func (j JournalConfig) Enabled() bool {
	return j.DatabaseURL != ""
}
