package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DotEnvFile is read from the working directory before the environment is
// consulted; variables already set in the process win.
const DotEnvFile = ".env"

// AppName is used for the config search path and the environment prefix
const AppName = "pii-shield"

// envBindings lists keys that may be overridden from the environment.
// The first entry of each slice is the config key; the rest are variable
// names checked in order. VITE_API_URL keeps the web build's variable working.
var envBindings = [][]string{
	{"backend.base_url", "PIISHIELD_BACKEND_BASE_URL", "VITE_API_URL"},
	{"backend.timeout", "PIISHIELD_BACKEND_TIMEOUT"},
	{"server.port", "PIISHIELD_SERVER_PORT", "PORT"},
	{"logging.level", "PIISHIELD_LOGGING_LEVEL"},
	{"logging.format", "PIISHIELD_LOGGING_FORMAT"},
	{"blob.backend", "PIISHIELD_BLOB_BACKEND"},
	{"blob.redis_url", "PIISHIELD_BLOB_REDIS_URL", "REDIS_URL"},
	{"session.ttl", "PIISHIELD_SESSION_TTL"},
	{"rate_limit.enabled", "PIISHIELD_RATE_LIMIT_ENABLED"},
}

var (
	mu      sync.Mutex
	current *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", DotEnvFile, err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath(XDGConfigDir())
	v.AddConfigPath("/etc/pii-shield/")

	v.SetEnvPrefix("PIISHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, binding := range envBindings {
		if err := v.BindEnv(binding...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", binding[0], err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	current = v
	mu.Unlock()

	return config, nil
}

// FileUsed returns the configuration file of the last Load, if any
func FileUsed() string {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return ""
	}
	return current.ConfigFileUsed()
}

// XDGConfigDir returns the per-user config directory, e.g. ~/.config/pii-shield
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload size: %d", config.Server.MaxUploadBytes)
	}

	if err := validateBaseURL(config.Backend.BaseURL); err != nil {
		return err
	}

	if config.Backend.Timeout < 0 {
		return fmt.Errorf("invalid backend timeout: %s", config.Backend.Timeout)
	}

	if len(config.Intake.AllowedExtensions) == 0 {
		return fmt.Errorf("intake needs at least one allowed extension")
	}

	if config.Session.TTL <= 0 {
		return fmt.Errorf("invalid session ttl: %s", config.Session.TTL)
	}

	if config.Session.SweepInterval <= 0 {
		return fmt.Errorf("invalid session sweep interval: %s", config.Session.SweepInterval)
	}

	if config.Blob.Backend != "memory" && config.Blob.Backend != "redis" {
		return fmt.Errorf("invalid blob backend: %s (must be memory or redis)", config.Blob.Backend)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid backend base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend base url %q: missing host", raw)
	}
	return nil
}

// Watch starts watching the configuration file for changes.
// The callback only sees configurations that pass validation.
func Watch(callback func(*Config)) error {
	mu.Lock()
	v := current
	mu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if v.ConfigFileUsed() == "" {
		// Nothing on disk to watch
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			return
		}

		if err := validateConfig(newConfig); err != nil {
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
