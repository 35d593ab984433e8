package minion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"storyloom/internal/config"
	"storyloom/internal/types"
)

// stubMinion records execution order and delegates to a configurable body.
type stubMinion struct {
	mu       sync.Mutex
	executed []string
	body     func(task *types.MinionTask) (map[string]any, error)
}

func (m *stubMinion) Type() types.MinionType { return types.MinionSelfReflection }

func (m *stubMinion) Execute(_ context.Context, task *types.MinionTask) (map[string]any, error) {
	m.mu.Lock()
	m.executed = append(m.executed, task.ID)
	m.mu.Unlock()
	if m.body != nil {
		return m.body(task)
	}
	return map[string]any{"action": "done"}, nil
}

func (m *stubMinion) order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executed...)
}

func TestTriggerPriorityAssignment(t *testing.T) {
	c := NewCoordinator(config.DefaultMinionConfig(), &stubMinion{})

	lowID, err := c.TriggerSelfReflection("agent-low", 0.10, nil)
	if err != nil {
		t.Fatal(err)
	}
	highID, err := c.TriggerSelfReflection("agent-high", 0.40, nil)
	if err != nil {
		t.Fatal(err)
	}

	low, _ := c.Task(lowID)
	high, _ := c.Task(highID)
	if low.Priority != 1 {
		t.Errorf("loss 0.10 priority = %d, want 1", low.Priority)
	}
	if high.Priority != 2 {
		t.Errorf("loss 0.40 priority = %d, want 2", high.Priority)
	}
	if low.StoryLoss() != 0.10 {
		t.Errorf("trigger data loss = %v", low.StoryLoss())
	}
}

func TestHighPriorityDequeuedFirst(t *testing.T) {
	stub := &stubMinion{}
	c := NewCoordinator(config.DefaultMinionConfig(), stub)

	// Low-priority task enqueued first; the high-priority one must still
	// run first.
	lowID, _ := c.TriggerSelfReflection("agent-low", 0.10, nil)
	highID, _ := c.TriggerSelfReflection("agent-high", 0.40, nil)

	ctx := context.Background()
	for c.RunOne(ctx) {
	}

	order := stub.order()
	if len(order) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(order))
	}
	if order[0] != highID || order[1] != lowID {
		t.Errorf("wrong execution order: %v", order)
	}
}

func TestRetryBound(t *testing.T) {
	stub := &stubMinion{body: func(*types.MinionTask) (map[string]any, error) {
		return nil, fmt.Errorf("analysis backend down")
	}}
	cfg := config.DefaultMinionConfig()
	cfg.MaxRetries = 1
	c := NewCoordinator(cfg, stub)

	id, _ := c.TriggerSelfReflection("agent-1", 0.5, nil)
	ctx := context.Background()

	if !c.RunOne(ctx) {
		t.Fatal("first run found no task")
	}
	task, _ := c.Task(id)
	if task.Status != types.TaskRetrying || task.CurrentRetry != 1 {
		t.Fatalf("after first failure: status=%s retry=%d", task.Status, task.CurrentRetry)
	}

	if !c.RunOne(ctx) {
		t.Fatal("retry was not requeued")
	}
	task, _ = c.Task(id)
	if task.Status != types.TaskFailed {
		t.Errorf("exhausted task status = %s, want failed", task.Status)
	}
	if task.CurrentRetry > task.MaxRetries {
		t.Errorf("current_retry %d exceeds max_retries %d", task.CurrentRetry, task.MaxRetries)
	}
	if task.ErrorMessage == "" {
		t.Error("failure must be captured in error_message")
	}
	if c.RunOne(ctx) {
		t.Error("terminally failed task must never re-enter the queue")
	}
}

func TestRetryRecommendedRequeues(t *testing.T) {
	stub := &stubMinion{body: func(*types.MinionTask) (map[string]any, error) {
		return map[string]any{"action": "repair_attempted", "retry_recommended": true}, nil
	}}
	cfg := config.DefaultMinionConfig()
	cfg.MaxRetries = 1
	c := NewCoordinator(cfg, stub)

	id, _ := c.TriggerSelfReflection("agent-1", 0.5, nil)
	ctx := context.Background()
	for c.RunOne(ctx) {
	}

	task, _ := c.Task(id)
	if task.Status != types.TaskCompleted {
		t.Errorf("status = %s, want completed after retry budget spent", task.Status)
	}
	if task.CurrentRetry != 1 {
		t.Errorf("current_retry = %d, want 1", task.CurrentRetry)
	}
	if len(stub.order()) != 2 {
		t.Errorf("expected 2 executions, got %d", len(stub.order()))
	}
}

func TestPanicIsolation(t *testing.T) {
	stub := &stubMinion{body: func(*types.MinionTask) (map[string]any, error) {
		panic("unexpected state")
	}}
	cfg := config.DefaultMinionConfig()
	cfg.MaxRetries = 0
	c := NewCoordinator(cfg, stub)

	id, _ := c.TriggerSelfReflection("agent-1", 0.5, nil)
	c.RunOne(context.Background())

	task, _ := c.Task(id)
	if task.Status != types.TaskFailed {
		t.Errorf("panicking task status = %s, want failed", task.Status)
	}
}

func TestCoordinatorLoopShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := &stubMinion{}
	cfg := config.DefaultMinionConfig()
	cfg.IdleSleep = "10ms"
	c := NewCoordinator(cfg, stub)

	id, _ := c.TriggerSelfReflection("agent-1", 0.5, nil)
	c.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for {
		task, _ := c.Task(id)
		if task.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.Stop()

	task, _ := c.Task(id)
	if task.Status != types.TaskCompleted {
		t.Errorf("status = %s, want completed", task.Status)
	}
}
