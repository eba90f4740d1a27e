package collector

import "time"

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultMaxConcurrency = 10
	DefaultTaskTimeout    = 20 * time.Second
)

// Config holds configuration for the bounded collector.
type Config struct {
	// MaxConcurrency is the number of remote calls allowed in flight at once.
	MaxConcurrency int `mapstructure:"max_concurrency" default:"10"`
	// TaskTimeoutSeconds is the per-device deadline for a single remote call.
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds" default:"20"`
}

// TaskTimeout returns the per-task deadline as a duration.
func (c Config) TaskTimeout() time.Duration {
	if c.TaskTimeoutSeconds <= 0 {
		return DefaultTaskTimeout
	}
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}
