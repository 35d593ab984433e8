package types

import (
	"time"
)

// =============================================================================
// MINION TASKS
// =============================================================================

// MinionType identifies the specialized background worker a task targets.
type MinionType string

const (
	// MinionSelfReflection re-analyzes an agent's story graph and attempts
	// conservative repair when story-loss crosses the reflection threshold.
	MinionSelfReflection MinionType = "self_reflection"
)

// TaskStatus is the lifecycle state of a MinionTask.
//
// State machine: idle -> active -> {completed, failed, retrying};
// retrying re-enters the queue (-> active) until max retries are exhausted,
// after which failed is terminal.
type TaskStatus string

const (
	TaskIdle      TaskStatus = "idle"
	TaskActive    TaskStatus = "active"
	TaskThinking  TaskStatus = "thinking"
	TaskActing    TaskStatus = "acting"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
)

// Terminal reports whether the status ends the task's lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TriggerDataStoryLoss is the TriggerData key carrying the story-loss scalar
// that caused a self-reflection task to be scheduled.
const TriggerDataStoryLoss = "story_loss"

// MinionTask is one unit of background repair work.
type MinionTask struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agent_id"`
	MinionType   MinionType     `json:"minion_type"`
	TriggerEvent string         `json:"trigger_event"`
	TriggerData  map[string]any `json:"trigger_data,omitempty"`
	Priority     int            `json:"priority"`
	MaxRetries   int            `json:"max_retries"`
	CurrentRetry int            `json:"current_retry"`
	Status       TaskStatus     `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// StoryLoss returns the story-loss scalar the task was triggered with,
// or 0 when absent.
func (t *MinionTask) StoryLoss() float64 {
	if t.TriggerData == nil {
		return 0
	}
	switch v := t.TriggerData[TriggerDataStoryLoss].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
