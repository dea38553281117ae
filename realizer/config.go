package realizer

import (
	"fmt"
	"time"
)

// Config bounds how much work the realizer keeps in flight
type Config struct {
	// MaxFilesInProgress is the most files moved in one batch
	MaxFilesInProgress int `yaml:"max_files_in_progress"`
	// MaxFilesInProgressPerKey is the most files moved in one batch
	// between the same origin and target OSD when using the
	// osd_balanced strategy
	MaxFilesInProgressPerKey int `yaml:"max_files_in_progress_per_key"`
	// ModeConcurrency, CreateConcurrency and DeleteConcurrency are the
	// most commands running at once in each phase of a batch
	ModeConcurrency   int `yaml:"mode_concurrency"`
	CreateConcurrency int `yaml:"create_concurrency"`
	DeleteConcurrency int `yaml:"delete_concurrency"`
	// MaxDeleteRetries is how many times failed delete commands are
	// run again before the batch aborts
	MaxDeleteRetries int `yaml:"max_delete_retries"`
	// DeleteRetryInterval is the pause before each retry
	DeleteRetryInterval time.Duration `yaml:"delete_retry_interval"`
}

// DefaultConfig returns the default config
func DefaultConfig() Config {
	return Config{
		MaxFilesInProgress:       10000,
		MaxFilesInProgressPerKey: 200,
		ModeConcurrency:          200,
		CreateConcurrency:        200,
		DeleteConcurrency:        200,
		MaxDeleteRetries:         5,
		DeleteRetryInterval:      15 * time.Second,
	}
}

// Validate checks that every bound is usable
func (config Config) Validate() error {
	positive := map[string]int{
		"max_files_in_progress":         config.MaxFilesInProgress,
		"max_files_in_progress_per_key": config.MaxFilesInProgressPerKey,
		"mode_concurrency":              config.ModeConcurrency,
		"create_concurrency":            config.CreateConcurrency,
		"delete_concurrency":            config.DeleteConcurrency,
	}

	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d: %w", name, value, ErrInvalidConfig)
		}
	}

	if config.MaxDeleteRetries < 0 {
		return fmt.Errorf("max_delete_retries must not be negative, got %d: %w", config.MaxDeleteRetries, ErrInvalidConfig)
	}

	if config.DeleteRetryInterval <= 0 {
		return fmt.Errorf("delete_retry_interval must be positive, got %s: %w", config.DeleteRetryInterval, ErrInvalidConfig)
	}

	return nil
}
