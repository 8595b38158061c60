package choreo

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the process-level configuration for a choreo worker.
type Config struct {
	// Backend selects the store and feed implementation: memory, redis,
	// or postgres.
	Backend string `yaml:"backend"`

	// RedisAddr is the Redis address used by the redis backend.
	RedisAddr string `yaml:"redis_addr"`

	// PostgresDSN is the connection string used by the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Concurrency is the number of goroutines per step kind.
	Concurrency int `yaml:"concurrency"`

	// QueueSize bounds the per-kind notification queue.
	QueueSize int `yaml:"queue_size"`

	// Guard selects slip write concurrency control: "none" or "revision".
	Guard string `yaml:"guard"`

	// ReapSchedule is a cron expression for the stuck-slip sweep.
	ReapSchedule string `yaml:"reap_schedule"`

	// FreshnessWindow is how long a non-terminal slip may go untouched
	// before the reaper shakes it.
	FreshnessWindow time.Duration `yaml:"freshness_window"`

	// NudgeRate caps reaper writes per second. Zero means unlimited.
	NudgeRate float64 `yaml:"nudge_rate"`

	// ToggleMs is the non-zero throttle value the control input toggles to.
	ToggleMs int64 `yaml:"toggle_ms"`

	// StepTimeout bounds a single step invocation. Zero disables it.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// ShutdownTimeout is the maximum time to wait for in-flight steps.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Resubscribe re-establishes a feed subscription that ended.
	Resubscribe bool `yaml:"resubscribe"`

	// Audit enables the audit trail: "" (off), "log", or "store".
	Audit string `yaml:"audit"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:         "memory",
		RedisAddr:       "localhost:6379",
		Concurrency:     4,
		QueueSize:       256,
		Guard:           "revision",
		ReapSchedule:    "@every 5s",
		FreshnessWindow: 10 * time.Second,
		ToggleMs:        1000,
		ShutdownTimeout: 30 * time.Second,
	}
}

// LoadConfig reads a YAML configuration file over DefaultConfig. An empty
// path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("choreo: read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("choreo: parse config: %w", err)
	}
	return cfg, nil
}
