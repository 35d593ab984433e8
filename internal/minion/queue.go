package minion

import (
	"sort"
	"sync"

	"storyloom/internal/types"
)

// taskQueue is the in-process priority queue the coordinator drains. Higher
// priority values are popped first; within one priority level tasks keep
// arrival order.
type taskQueue struct {
	mu    sync.Mutex
	tasks []*types.MinionTask
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

func (q *taskQueue) Push(task *types.MinionTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

// PopEligible removes and returns the highest-priority task whose agent is
// not in the skip set. Returns nil when no eligible task exists.
func (q *taskQueue) PopEligible(skipAgents map[string]bool) *types.MinionTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})

	for i, task := range q.tasks {
		if skipAgents[task.AgentID] {
			continue
		}
		q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
		return task
	}
	return nil
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
