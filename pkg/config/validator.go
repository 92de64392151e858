package config

import "fmt"

// Validate checks a Config for internally-consistent, positive values.
// It intentionally avoids a reflection-based validation library: the field
// set is small and fixed, and explicit checks read clearly at call sites —
// the teacher's own config package reserves struct-tag validation for the
// larger agent/chain registries, not this leaf-level numeric config.
func Validate(c *Config) error {
	checks := []struct {
		field string
		ok    bool
	}{
		{"debounce.seconds", c.Debounce.Seconds > 0},
		{"debounce.max_batch", c.Debounce.MaxBatch > 0},
		{"debounce.max_wait_seconds", c.Debounce.MaxWaitSeconds > 0},
		{"debounce.typing_window_seconds", c.Debounce.TypingWindowSeconds > 0},
		{"memory.max_messages", c.Memory.MaxMessages > 0},
		{"memory.max_bytes", c.Memory.MaxBytes > 0},
		{"recovery.max_age_hours", c.Recovery.MaxAgeHours > 0},
		{"recovery.max_messages_per_run", c.Recovery.MaxMessagesPerRun > 0},
		{"recovery.max_users_per_run", c.Recovery.MaxUsersPerRun > 0},
		{"recovery.rate_per_sec", c.Recovery.RatePerSec > 0},
		{"watermarks.intake_high", c.Watermarks.IntakeHigh > 0},
		{"watermarks.approved_high", c.Watermarks.ApprovedHigh > 0},
		{"timeouts.platform_ms", c.Timeouts.PlatformMS > 0},
		{"timeouts.llm_ms", c.Timeouts.LLMMS > 0},
		{"timeouts.store_ms", c.Timeouts.StoreMS > 0},
		{"timeouts.cache_ms", c.Timeouts.CacheMS > 0},
		{"retention.quarantine_retention_days", c.Retention.QuarantineRetentionDays > 0},
		{"retention.sweep_interval_seconds", c.Retention.SweepIntervalSeconds > 0},
		{"retry_max", c.RetryMax >= 0},
		{"database.host", c.Database.Host != ""},
		{"redis.addr", c.Redis.Addr != ""},
	}

	for _, chk := range checks {
		if !chk.ok {
			return &ValidationError{Field: chk.field, Err: fmt.Errorf("%w: invalid value", ErrValidationFailed)}
		}
	}
	return nil
}
