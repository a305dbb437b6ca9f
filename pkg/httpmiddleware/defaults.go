// Package httpmiddleware assembles the chi middleware stack shared by the HTTP entrypoints.
package httpmiddleware

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// Config selects which middleware ApplyToRouter installs.
type Config struct {
	Logger      logger.Logger
	StripPrefix string
	CORS        *CORSConfig
	Security    *secure.Options

	// Timeout bounds each request. Zero disables the timeout middleware; the
	// chat route relies on the exchange timeout instead.
	Timeout time.Duration

	EnableCorrelationID bool
	EnableLogging       bool
	EnableRecovery      bool
	EnableCORS          bool
	EnableSecurity      bool
	EnableHeartbeat     bool
	EnableRealIP        bool
}

// DefaultConfig returns the middleware set used by the server. Logging stays
// off until a Logger is supplied.
func DefaultConfig() Config {
	corsConfig := DefaultCORSConfig()
	return Config{
		CORS:                &corsConfig,
		EnableCorrelationID: true,
		EnableRecovery:      true,
		EnableCORS:          true,
		EnableSecurity:      true,
		EnableHeartbeat:     true,
		EnableRealIP:        true,
	}
}

// ApplyToRouter installs the configured middleware, outermost first:
// correlation id, security headers, real ip, logging, recovery, strip prefix,
// CORS, timeout, heartbeat.
func ApplyToRouter(router chi.Router, config Config) {
	if config.EnableCorrelationID {
		router.Use(CorrelationID())
	}
	if config.EnableSecurity {
		router.Use(Security(config.Security))
	}
	if config.EnableRealIP {
		router.Use(middleware.RealIP)
	}
	if config.EnableLogging && config.Logger != nil {
		router.Use(NewHTTPLogger(config.Logger).Middleware)
	}
	if config.EnableRecovery {
		router.Use(Recovery(config.Logger))
	}
	if config.StripPrefix != "" {
		router.Use(StripPrefix(config.StripPrefix))
	}
	if config.EnableCORS && config.CORS != nil {
		router.Use(CORS(*config.CORS))
	}
	if config.Timeout > 0 {
		router.Use(middleware.Timeout(config.Timeout))
	}
	if config.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
}
