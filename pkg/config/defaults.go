package config

// Defaults returns a Config populated with the numeric defaults enumerated
// in spec.md §6.4. Callers overlay a YAML file and environment variables
// on top of these.
func Defaults() *Config {
	return &Config{
		Debounce: DebounceConfig{
			Seconds:             5,
			MaxBatch:            5,
			MaxWaitSeconds:      30,
			TypingWindowSeconds: 5,
		},
		Memory: MemoryConfig{
			MaxMessages: 50,
			MaxBytes:    102400,
		},
		Recovery: RecoveryConfig{
			MaxAgeHours:       12,
			MaxMessagesPerRun: 100,
			MaxUsersPerRun:    50,
			RatePerSec:        30,
		},
		Watermarks: WatermarkConfig{
			IntakeHigh:   5000,
			ApprovedHigh: 500,
		},
		Timeouts: TimeoutConfig{
			PlatformMS: 20000,
			LLMMS:      30000,
			StoreMS:    5000,
			CacheMS:    1000,
		},
		Retention: RetentionConfig{
			QuarantineRetentionDays: 30,
			SweepIntervalSeconds:    3600,
		},
		RetryMax: 3,
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 0,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}
