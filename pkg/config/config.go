// Package config loads and validates Warden's runtime configuration from a
// YAML file with environment-variable expansion and overrides, following
// the same loader shape the source codebase uses for its own agent/chain
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the umbrella configuration object enumerated in spec.md §6.4.
type Config struct {
	Debounce      DebounceConfig      `yaml:"debounce"`
	Memory        MemoryConfig        `yaml:"memory"`
	Recovery      RecoveryConfig      `yaml:"recovery"`
	Review        ReviewConfig        `yaml:"review"`
	Watermarks    WatermarkConfig     `yaml:"watermarks"`
	Timeouts      TimeoutConfig       `yaml:"timeouts"`
	Retention     RetentionConfig     `yaml:"retention"`
	LLMProfile    string              `yaml:"llm_profile"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	RetryMax      int                 `yaml:"retry_max" validate:"min=0"`
}

// DebounceConfig configures the Activity Tracker (spec.md §4.3).
type DebounceConfig struct {
	Seconds     int `yaml:"seconds" validate:"min=1"`
	MaxBatch    int `yaml:"max_batch" validate:"min=1"`
	MaxWaitSeconds int `yaml:"max_wait_seconds" validate:"min=1"`
	TypingWindowSeconds int `yaml:"typing_window_seconds" validate:"min=1"`
}

func (d DebounceConfig) Window() time.Duration   { return time.Duration(d.Seconds) * time.Second }
func (d DebounceConfig) MaxWait() time.Duration  { return time.Duration(d.MaxWaitSeconds) * time.Second }
func (d DebounceConfig) TypingWindow() time.Duration {
	return time.Duration(d.TypingWindowSeconds) * time.Second
}

// MemoryConfig configures the Memory Manager (spec.md §4.4).
type MemoryConfig struct {
	MaxMessages int `yaml:"max_messages" validate:"min=1"`
	MaxBytes    int `yaml:"max_bytes" validate:"min=1"`
}

// RecoveryConfig configures the Recovery Agent (spec.md §4.11).
type RecoveryConfig struct {
	MaxAgeHours       int `yaml:"max_age_hours" validate:"min=1"`
	MaxMessagesPerRun int `yaml:"max_messages_per_run" validate:"min=1"`
	MaxUsersPerRun    int `yaml:"max_users_per_run" validate:"min=1"`
	RatePerSec        int `yaml:"rate_per_sec" validate:"min=1"`
}

func (r RecoveryConfig) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeHours) * time.Hour
}

// ReviewConfig configures the reviewer HTTP API (spec.md §6.1).
type ReviewConfig struct {
	AuthToken string `yaml:"auth_token"`
}

// WatermarkConfig configures backpressure thresholds (spec.md §5 Backpressure).
type WatermarkConfig struct {
	IntakeHigh   int `yaml:"intake_high" validate:"min=1"`
	ApprovedHigh int `yaml:"approved_high" validate:"min=1"`
}

// TimeoutConfig configures per-call timeouts (spec.md §5 Cancellation & timeouts).
type TimeoutConfig struct {
	PlatformMS int `yaml:"platform_ms" validate:"min=1"`
	LLMMS      int `yaml:"llm_ms" validate:"min=1"`
	StoreMS    int `yaml:"store_ms" validate:"min=1"`
	CacheMS    int `yaml:"cache_ms" validate:"min=1"`
}

func (t TimeoutConfig) Platform() time.Duration { return time.Duration(t.PlatformMS) * time.Millisecond }
func (t TimeoutConfig) LLM() time.Duration      { return time.Duration(t.LLMMS) * time.Millisecond }
func (t TimeoutConfig) Store() time.Duration    { return time.Duration(t.StoreMS) * time.Millisecond }
func (t TimeoutConfig) Cache() time.Duration    { return time.Duration(t.CacheMS) * time.Millisecond }

// RetentionConfig configures the retention sweep (spec.md §4.10 purge,
// §4.4 memory TTL, §4.9 commitment expiry).
type RetentionConfig struct {
	QuarantineRetentionDays int `yaml:"quarantine_retention_days" validate:"min=1"`
	SweepIntervalSeconds    int `yaml:"sweep_interval_seconds" validate:"min=1"`
}

func (r RetentionConfig) QuarantineRetention() time.Duration {
	return time.Duration(r.QuarantineRetentionDays) * 24 * time.Hour
}

func (r RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

// DatabaseConfig holds Postgres connection settings for the Message Store.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Queue Broker connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads a YAML file at path, expands environment variables, applies
// Defaults() for any zero-valued field sections, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	expanded := ExpandEnv(raw)

	cfg := Defaults()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
