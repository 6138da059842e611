// Package config defines SDK configuration structures and loading hooks.
//
// Conventions:
// - Keep construction behind New() with defaults, then layer file/env in Load.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains the telemetry core configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// CollectURL is the collector endpoint batches are POSTed to.
	CollectURL string `koanf:"collect_url"`

	// EngageURL is the engagement/decision-point endpoint.
	EngageURL string `koanf:"engage_url"`

	// EnvironmentKey identifies the application environment to the backend.
	EnvironmentKey string `koanf:"environment_key"`

	// HashSecret, when non-empty, enables hash-signed submissions.
	HashSecret string `koanf:"hash_secret"`

	// QueueCapacity bounds the active event buffer.
	QueueCapacity int `koanf:"queue_capacity"`

	// UploadIntervalS is the period of the scheduled upload cycle, in seconds.
	UploadIntervalS int `koanf:"upload_interval_s"`

	// RetryDelayMS is the fixed wait between submission retries.
	RetryDelayMS int `koanf:"retry_delay_ms"`

	// MaxRetryAttempts bounds submissions per upload cycle.
	MaxRetryAttempts int `koanf:"max_retry_attempts"`

	// StoragePath locates the SQLite database file. Empty disables
	// persistence and runs the queue and caches in memory only.
	StoragePath string `koanf:"storage_path"`

	// SessionTimeoutS is how long a backgrounded session stays valid.
	SessionTimeoutS int `koanf:"session_timeout_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		QueueCapacity:    400,
		UploadIntervalS:  60,
		RetryDelayMS:     2000,
		MaxRetryAttempts: 5,
		StoragePath:      "funnel.db",
		SessionTimeoutS:  300,
	}
}
