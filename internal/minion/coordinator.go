// Package minion runs the background repair system: a prioritized task queue
// drained by a worker loop, and the self-reflection minion that re-analyzes
// an agent's story graph when story-loss crosses a threshold.
package minion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"storyloom/internal/config"
	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// Minion executes one specialized kind of background task.
type Minion interface {
	Type() types.MinionType
	Execute(ctx context.Context, task *types.MinionTask) (map[string]any, error)
}

// Coordinator owns the MinionTask lifecycle: scheduling, the worker loop,
// retry bookkeeping, and terminal status transitions. One coordinator serves
// all agents; tasks for the same agent never run concurrently.
type Coordinator struct {
	cfg     config.MinionConfig
	queue   *taskQueue
	minions map[types.MinionType]Minion

	mu       sync.Mutex
	tasks    map[string]*types.MinionTask
	inFlight map[string]bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewCoordinator wires a coordinator with the given minions.
func NewCoordinator(cfg config.MinionConfig, minions ...Minion) *Coordinator {
	byType := make(map[types.MinionType]Minion, len(minions))
	for _, m := range minions {
		byType[m.Type()] = m
	}
	return &Coordinator{
		cfg:      cfg,
		queue:    newTaskQueue(),
		minions:  byType,
		tasks:    make(map[string]*types.MinionTask),
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// TriggerSelfReflection schedules a self-reflection task for the agent.
// story_loss above the high-priority threshold schedules at priority 2,
// everything else at priority 1.
func (c *Coordinator) TriggerSelfReflection(agentID string, storyLoss float64, metadata map[string]any) (string, error) {
	if agentID == "" {
		return "", types.ErrMissingAgentID
	}

	priority := 1
	if storyLoss > c.cfg.HighPriorityLoss {
		priority = 2
	}

	triggerData := map[string]any{types.TriggerDataStoryLoss: storyLoss}
	for k, v := range metadata {
		triggerData[k] = v
	}

	task := &types.MinionTask{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		MinionType:   types.MinionSelfReflection,
		TriggerEvent: "story_loss_threshold",
		TriggerData:  triggerData,
		Priority:     priority,
		MaxRetries:   c.cfg.MaxRetries,
		Status:       types.TaskIdle,
		CreatedAt:    time.Now().UTC(),
	}

	c.mu.Lock()
	c.tasks[task.ID] = task
	c.mu.Unlock()
	c.queue.Push(task)

	logging.Minion("scheduled self-reflection %s for agent %s (loss %.3f, priority %d)",
		task.ID, agentID, storyLoss, priority)
	return task.ID, nil
}

// Task returns a snapshot of a scheduled task.
func (c *Coordinator) Task(id string) (*types.MinionTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

// QueueDepth reports how many tasks are waiting.
func (c *Coordinator) QueueDepth() int { return c.queue.Len() }

// Start launches the worker loop(s). The loop drains the queue until Stop
// is called or ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.doneCh)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < c.cfg.Workers; i++ {
			g.Go(func() error {
				c.workerLoop(gctx)
				return nil
			})
		}
		g.Wait()
	}()
}

// Stop signals the worker loop(s) and waits for them to drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}

func (c *Coordinator) workerLoop(ctx context.Context) {
	idle := c.cfg.IdleSleepDuration()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		task := c.popEligible()
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-time.After(idle):
			}
			continue
		}

		c.runTask(ctx, task)

		c.mu.Lock()
		delete(c.inFlight, task.AgentID)
		c.mu.Unlock()
	}
}

// popEligible takes the next task whose agent has no task in flight and
// marks the agent busy. With a single worker this is trivially serial; wider
// pools still never run two tasks for one agent concurrently.
func (c *Coordinator) popEligible() *types.MinionTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	skip := make(map[string]bool, len(c.inFlight))
	for agent := range c.inFlight {
		skip[agent] = true
	}
	task := c.queue.PopEligible(skip)
	if task != nil {
		c.inFlight[task.AgentID] = true
	}
	return task
}

// RunOne synchronously pops and executes a single eligible task. Used by
// hosts that want one reflection pass without a background loop. Returns
// false when the queue held no eligible task.
func (c *Coordinator) RunOne(ctx context.Context) bool {
	task := c.popEligible()
	if task == nil {
		return false
	}
	c.runTask(ctx, task)

	c.mu.Lock()
	delete(c.inFlight, task.AgentID)
	c.mu.Unlock()
	return true
}

// runTask executes one task under the cooperative timeout and applies the
// retry policy. A task's failure never escapes the loop.
func (c *Coordinator) runTask(ctx context.Context, task *types.MinionTask) {
	minion, ok := c.minions[task.MinionType]
	if !ok {
		c.finishTask(task, nil, fmt.Errorf("no minion registered for type %q", task.MinionType))
		return
	}

	c.mu.Lock()
	task.Status = types.TaskActive
	task.StartedAt = time.Now().UTC()
	c.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(ctx, c.cfg.TaskTimeoutDuration())
	defer cancel()

	result, err := func() (res map[string]any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("minion panic: %v", r)
			}
		}()
		return minion.Execute(taskCtx, task)
	}()

	if err == nil && taskCtx.Err() != nil {
		err = fmt.Errorf("task timed out: %w", taskCtx.Err())
	}
	c.finishTask(task, result, err)
}

// finishTask applies the terminal/retry transition. A failed or
// retry-recommended task re-enters the queue while the retry budget lasts;
// current_retry never exceeds max_retries.
func (c *Coordinator) finishTask(task *types.MinionTask, result map[string]any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task.Result = result
	task.CompletedAt = time.Now().UTC()

	if err != nil {
		task.ErrorMessage = err.Error()
		if task.CurrentRetry < task.MaxRetries {
			task.CurrentRetry++
			task.Status = types.TaskRetrying
			c.queue.Push(task)
			logging.Minion("task %s failed, retry %d/%d: %v", task.ID, task.CurrentRetry, task.MaxRetries, err)
			return
		}
		task.Status = types.TaskFailed
		logging.Minion("task %s terminally failed: %v", task.ID, err)
		return
	}

	if retry, ok := result["retry_recommended"].(bool); ok && retry && task.CurrentRetry < task.MaxRetries {
		task.CurrentRetry++
		task.Status = types.TaskRetrying
		c.queue.Push(task)
		logging.MinionDebug("task %s recommends retry %d/%d", task.ID, task.CurrentRetry, task.MaxRetries)
		return
	}

	task.Status = types.TaskCompleted
	logging.MinionDebug("task %s completed", task.ID)
}
