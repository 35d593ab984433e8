package config

import (
	"fmt"
	"time"
)

// MinionConfig configures the minion coordinator and self-reflection minion.
type MinionConfig struct {
	// Workers is the number of queue-draining workers. The default of 1
	// preserves strictly serial task execution; wider pools still serialize
	// tasks per agent.
	Workers int `yaml:"workers"`

	// MaxRetries is the per-task retry budget.
	MaxRetries int `yaml:"max_retries"`

	// TaskTimeout bounds one analyze->repair->verify sequence.
	TaskTimeout string `yaml:"task_timeout"`

	// IdleSleep is how long the worker loop sleeps when the queue is empty.
	IdleSleep string `yaml:"idle_sleep"`

	// ReflectionThreshold is the story-loss value below which a
	// self-reflection task is a no-op.
	ReflectionThreshold float64 `yaml:"reflection_threshold"`

	// HighPriorityLoss is the story-loss value above which tasks are
	// scheduled at high priority.
	HighPriorityLoss float64 `yaml:"high_priority_loss"`

	// AnalysisWindow is how far back the reflection analysis pulls
	// nodes and edges from the graph.
	AnalysisWindow string `yaml:"analysis_window"`
}

// DefaultMinionConfig returns the documented default policy.
func DefaultMinionConfig() MinionConfig {
	return MinionConfig{
		Workers:             1,
		MaxRetries:          1,
		TaskTimeout:         "5m",
		IdleSleep:           "250ms",
		ReflectionThreshold: 0.15,
		HighPriorityLoss:    0.3,
		AnalysisWindow:      "1h",
	}
}

// TaskTimeoutDuration parses TaskTimeout, falling back to 5 minutes.
func (c MinionConfig) TaskTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.TaskTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// IdleSleepDuration parses IdleSleep, falling back to 250ms.
func (c MinionConfig) IdleSleepDuration() time.Duration {
	d, err := time.ParseDuration(c.IdleSleep)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// AnalysisWindowDuration parses AnalysisWindow, falling back to 1h.
func (c MinionConfig) AnalysisWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.AnalysisWindow)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Validate checks worker and retry bounds.
func (c MinionConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.ReflectionThreshold < 0 || c.ReflectionThreshold > 1 {
		return fmt.Errorf("reflection_threshold must be in [0,1], got %v", c.ReflectionThreshold)
	}
	return nil
}
