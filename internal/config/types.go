package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Backend   BackendConfig   `yaml:"backend" mapstructure:"backend"`
	Intake    IntakeConfig    `yaml:"intake" mapstructure:"intake"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// BackendConfig points at the OCR/PII service that does the real work.
// BaseURL is read once at startup and handed to the client explicitly.
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// IntakeConfig controls which files the upload control accepts
type IntakeConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
}

// SessionConfig contains browser session configuration
type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name" mapstructure:"cookie_name"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	SecureCookie  bool          `yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

// BlobConfig selects where masked images live while a session is open
type BlobConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // memory or redis
	RedisURL  string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	PoolSize  int    `yaml:"pool_size" mapstructure:"pool_size"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string      `yaml:"level" mapstructure:"level"`
	Format string      `yaml:"format" mapstructure:"format"` // json or console
	File   FileLogging `yaml:"file" mapstructure:"file"`
}

// FileLogging enables an additional JSON log sink
type FileLogging struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// WebSocketConfig contains configuration for live lifecycle notifications
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Path           string        `yaml:"path" mapstructure:"path"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// DefaultBackendURL is used when no backend origin is configured
const DefaultBackendURL = "http://localhost:8000"

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxUploadBytes: 20 << 20,
		},
		Backend: BackendConfig{
			BaseURL:   DefaultBackendURL,
			UserAgent: "PII-Shield/0.1.0",
		},
		Intake: IntakeConfig{
			AllowedExtensions: []string{".jpg", ".jpeg", ".png"},
		},
		Session: SessionConfig{
			CookieName:    "pii_shield_session",
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Blob: BlobConfig{
			Backend:   "memory",
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "pii-shield",
			PoolSize:  10,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			Burst:          20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: FileLogging{
				Enabled: false,
				Path:    "logs/pii-shield.log",
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			PingInterval:   54 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 512,
			AllowedOrigins: []string{"*"},
		},
	}
}
