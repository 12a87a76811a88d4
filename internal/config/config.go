// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Upload     UploadConfig
	View       ViewConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Export     ExportConfig
	Seed       SeedConfig
	DropFolder DropFolderConfig
	Metrics    MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds CSV import settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel imports (default: 2)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single import request (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`
}

// ViewConfig holds view synchronization settings.
type ViewConfig struct {
	// RetryAttempts is how many times a not-ready view operation is tried (default: 5)
	RetryAttempts int `env:"VIEW_RETRY_ATTEMPTS" default:"5"`

	// RetryBackoff is the first retry delay, doubled per attempt (default: 100ms)
	RetryBackoff time.Duration `env:"VIEW_RETRY_BACKOFF" default:"100ms"`

	// RetryMaxBackoff caps the retry delay (default: 2s)
	RetryMaxBackoff time.Duration `env:"VIEW_RETRY_MAX_BACKOFF" default:"2s"`

	// ActivationDelay defers activation after a tab switch (default: 50ms)
	ActivationDelay time.Duration `env:"VIEW_ACTIVATION_DELAY" default:"50ms"`

	// ResyncInterval is how often views that missed a broadcast are retried;
	// 0 disables the loop (default: 5s)
	ResyncInterval time.Duration `env:"VIEW_RESYNC_INTERVAL" default:"5s"`

	// EventBuffer is the capacity of the widget event channel (default: 64)
	EventBuffer int `env:"VIEW_EVENT_BUFFER" default:"64"`

	// MaxParallel bounds concurrent pushes during a broadcast (default: 4)
	MaxParallel int `env:"VIEW_MAX_PARALLEL" default:"4"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for the import endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ExportConfig selects where downloaded exports are archived.
type ExportConfig struct {
	// Driver is the archive backend: none, memory, fs or s3 (default: none)
	Driver string `env:"EXPORT_ARCHIVE_DRIVER" default:"none"`

	// Dir is the archive root for the fs driver
	Dir string `env:"EXPORT_ARCHIVE_DIR" default:"./exports"`

	// Bucket is the S3 bucket for the s3 driver
	Bucket string `env:"EXPORT_ARCHIVE_BUCKET"`

	// Prefix is prepended to every archived object key (default: exports/)
	Prefix string `env:"EXPORT_ARCHIVE_PREFIX" default:"exports/"`

	// Region is the S3 region; empty uses the AWS default chain
	Region string `env:"EXPORT_ARCHIVE_REGION" envAlt:"AWS_REGION"`

	// Endpoint overrides the S3 endpoint (MinIO, localstack)
	Endpoint string `env:"EXPORT_ARCHIVE_ENDPOINT"`

	// PathStyle forces path-style S3 addressing (default: false)
	PathStyle bool `env:"EXPORT_ARCHIVE_PATH_STYLE" default:"false"`
}

// SeedConfig holds initial data settings.
type SeedConfig struct {
	// File is a YAML seed document; empty uses the built-in demo data
	File string `env:"SEED_FILE"`
}

// DropFolderConfig holds watched import folder settings.
type DropFolderConfig struct {
	// Dir is the watched folder; empty disables the watcher
	Dir string `env:"DROP_FOLDER_DIR"`

	// Debounce is how long a file must be quiet before it is imported (default: 500ms)
	Debounce time.Duration `env:"DROP_FOLDER_DEBOUNCE" default:"500ms"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes /metrics (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ArchiveEnabled reports whether exports are archived.
func (c *ExportConfig) ArchiveEnabled() bool {
	return c.Driver != "" && c.Driver != "none"
}
