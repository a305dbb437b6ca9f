package config

// SecurityConfig holds settings for the HTTP surface
type SecurityConfig struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins" default:"https://*,http://*"`
	MaxRequestBytes    int64    `env:"MAX_REQUEST_BYTES" yaml:"max_request_bytes" default:"1048576"`
	StripPrefix        string   `env:"HTTP_STRIP_PREFIX" yaml:"strip_prefix"`
}
