// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	SecretKey   []byte // 32-byte AES-256 key, nil when unset.
	Environment string
	LogLevel    slog.Level

	InterDayDelay        time.Duration
	ClaimLimit           int
	RetryAttempts        int
	RetryInitialInterval time.Duration
	MaxRangeDays         int

	ScheduleInterval  time.Duration // 0 disables the scheduler.
	ScheduleDataTypes []model.DataType
	Timezone          *time.Location

	HTTPTimeout     time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration

	WebhookURL      string
	CredentialsFile string
}

// HasSecretKey reports whether credential encryption is configured.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == 32
}

// SchedulerEnabled reports whether the periodic sync should run.
func (c *Config) SchedulerEnabled() bool {
	return c.ScheduleInterval > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// All variables are optional. Defaults: BARSYNC_LISTEN_ADDR (127.0.0.1:8080),
// BARSYNC_DB_PATH (barsync.db), BARSYNC_ENVIRONMENT (production),
// BARSYNC_INTER_DAY_DELAY (1s), BARSYNC_CLAIM_LIMIT (100), BARSYNC_RETRY_ATTEMPTS (3),
// BARSYNC_RETRY_INITIAL_INTERVAL (2s), BARSYNC_MAX_RANGE_DAYS (400),
// BARSYNC_SCHEDULE_INTERVAL (24h), BARSYNC_TIMEZONE (America/Sao_Paulo),
// BARSYNC_HTTP_TIMEOUT (60s), BARSYNC_BREAKER_FAILURES (5), BARSYNC_BREAKER_TIMEOUT (2m),
// BARSYNC_LOG_LEVEL (info).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:           envString("BARSYNC_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:               envString("BARSYNC_DB_PATH", "barsync.db"),
		Environment:          envString("BARSYNC_ENVIRONMENT", "production"),
		WebhookURL:           os.Getenv("BARSYNC_WEBHOOK_URL"),
		CredentialsFile:      os.Getenv("BARSYNC_CREDENTIALS_FILE"),
		ScheduleDataTypes:    []model.DataType{},
		InterDayDelay:        time.Second,
		ClaimLimit:           100,
		RetryAttempts:        3,
		RetryInitialInterval: 2 * time.Second,
		MaxRangeDays:         400,
		ScheduleInterval:     24 * time.Hour,
		HTTPTimeout:          60 * time.Second,
		BreakerFailures:      5,
		BreakerTimeout:       2 * time.Minute,
	}

	var err error

	if v, ok := os.LookupEnv("BARSYNC_SECRET_KEY"); ok && v != "" {
		key, decodeErr := hex.DecodeString(v)
		if decodeErr != nil {
			return nil, fmt.Errorf("BARSYNC_SECRET_KEY is not valid hex: %w", decodeErr)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("BARSYNC_SECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", len(key))
		}
		cfg.SecretKey = key
	}

	durations := []struct {
		key    string
		target *time.Duration
		min    time.Duration
	}{
		{"BARSYNC_INTER_DAY_DELAY", &cfg.InterDayDelay, 0},
		{"BARSYNC_RETRY_INITIAL_INTERVAL", &cfg.RetryInitialInterval, time.Millisecond},
		{"BARSYNC_SCHEDULE_INTERVAL", &cfg.ScheduleInterval, 0},
		{"BARSYNC_HTTP_TIMEOUT", &cfg.HTTPTimeout, time.Second},
		{"BARSYNC_BREAKER_TIMEOUT", &cfg.BreakerTimeout, time.Second},
	}
	for _, d := range durations {
		if err = envDuration(d.key, d.target, d.min); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"BARSYNC_CLAIM_LIMIT", &cfg.ClaimLimit},
		{"BARSYNC_RETRY_ATTEMPTS", &cfg.RetryAttempts},
		{"BARSYNC_MAX_RANGE_DAYS", &cfg.MaxRangeDays},
		{"BARSYNC_BREAKER_FAILURES", &cfg.BreakerFailures},
	}
	for _, i := range ints {
		if err = envPositiveInt(i.key, i.target); err != nil {
			return nil, err
		}
	}

	if v, ok := os.LookupEnv("BARSYNC_SCHEDULE_DATA_TYPES"); ok && v != "" {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			dt := model.DataType(name)
			if !dt.Valid() {
				return nil, fmt.Errorf("BARSYNC_SCHEDULE_DATA_TYPES has unknown data type %q", name)
			}
			cfg.ScheduleDataTypes = append(cfg.ScheduleDataTypes, dt)
		}
	}

	tz := envString("BARSYNC_TIMEZONE", "America/Sao_Paulo")
	cfg.Timezone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("BARSYNC_TIMEZONE has invalid location %q: %w", tz, err)
	}

	if v, ok := os.LookupEnv("BARSYNC_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("BARSYNC_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envDuration(key string, target *time.Duration, minimum time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < minimum {
		return fmt.Errorf("%s must be at least %s, got %s", key, minimum, parsed)
	}
	*target = parsed
	return nil
}

func envPositiveInt(key string, target *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be positive, got %d", key, parsed)
	}
	*target = parsed
	return nil
}
