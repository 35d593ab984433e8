package minion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/coherence"
	"storyloom/internal/config"
	"storyloom/internal/logic"
	"storyloom/internal/store"
	"storyloom/internal/types"
)

func newReflectionFixture(t *testing.T) (*SelfReflectionMinion, *store.GraphStore, *coherence.Engine) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	engine := coherence.NewEngine(s, config.DefaultCoherenceConfig(), coherence.NopServices())
	m := NewSelfReflectionMinion(s, engine, logic.NewKernel(), config.DefaultMinionConfig())
	return m, s, engine
}

func reflectionTask(agentID string, loss float64) *types.MinionTask {
	return &types.MinionTask{
		ID:          uuid.NewString(),
		AgentID:     agentID,
		MinionType:  types.MinionSelfReflection,
		TriggerData: map[string]any{types.TriggerDataStoryLoss: loss},
		MaxRetries:  1,
		Status:      types.TaskActive,
	}
}

func TestReflectionBelowThresholdIsNoop(t *testing.T) {
	m, s, _ := newReflectionFixture(t)
	ctx := context.Background()
	if err := s.CreateStory(ctx, &types.AgentStory{AgentID: "agent-1"}); err != nil {
		t.Fatal(err)
	}

	result, err := m.Execute(ctx, reflectionTask("agent-1", 0.10))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result["action"] != "no_action_needed" {
		t.Errorf("action = %v, want no_action_needed", result["action"])
	}
	if result["story_loss"] != 0.10 {
		t.Errorf("story loss must pass through unchanged, got %v", result["story_loss"])
	}

	// A no-op pass must not touch the graph.
	events, _ := s.AllEvents(ctx, "agent-1")
	if len(events) != 0 {
		t.Errorf("no-op reflection appended %d events", len(events))
	}
}

func TestReflectionRepairsLogicalConflict(t *testing.T) {
	m, s, engine := newReflectionFixture(t)
	ctx := context.Background()
	if _, err := engine.InitializeStory(ctx, "agent-1", "story", "ship features"); err != nil {
		t.Fatal(err)
	}

	// Two beliefs with opposed absolute quantifiers derive a logical
	// conflict above the repair cutoff.
	a := &types.StoryEvent{
		ID: uuid.NewString(), AgentID: "agent-1",
		EventType: types.EventBeliefFormed, Timestamp: time.Now().UTC().Add(-20 * time.Minute),
		Content: "deploys always succeed on the staging cluster", Confidence: 0.6,
		NarrativeImportance: 0.5, AlignmentScore: 0.5,
	}
	b := &types.StoryEvent{
		ID: uuid.NewString(), AgentID: "agent-1",
		EventType: types.EventBeliefFormed, Timestamp: time.Now().UTC().Add(-10 * time.Minute),
		Content: "deploys never succeed on the staging cluster", Confidence: 0.6,
		NarrativeImportance: 0.5, AlignmentScore: 0.5,
	}
	for _, ev := range []*types.StoryEvent{a, b} {
		if err := s.AppendEvent(ctx, ev, nil, ""); err != nil {
			t.Fatal(err)
		}
	}

	result, err := m.Execute(ctx, reflectionTask("agent-1", 0.5))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result["action"] != "repair_attempted" {
		t.Fatalf("action = %v", result["action"])
	}
	if repairs := result["repairs_added"].(int); repairs < 1 {
		t.Fatalf("expected at least one clarifying edge, got %d", repairs)
	}

	connected, err := s.HasRelationBetween(ctx, "agent-1", a.ID, b.ID)
	if err != nil || !connected {
		t.Errorf("conflicting events should be linked by a clarifying edge (err=%v)", err)
	}

	// Connecting previously isolated events raises coherence, so loss drops.
	if improved := result["improved"].(bool); !improved {
		t.Errorf("repair should improve story loss, result=%v", result)
	}

	// A second pass finds the pair already connected and adds nothing.
	again, err := m.Execute(ctx, reflectionTask("agent-1", 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if repairs := again["repairs_added"]; repairs != 0 {
		t.Errorf("repair must be idempotent, second pass added %v edges", repairs)
	}
}

func TestReflectionThroughCoordinator(t *testing.T) {
	m, s, _ := newReflectionFixture(t)
	ctx := context.Background()
	if err := s.CreateStory(ctx, &types.AgentStory{AgentID: "agent-1"}); err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(config.DefaultMinionConfig(), m)
	id, err := c.TriggerSelfReflection("agent-1", 0.10, map[string]any{"source": "test"})
	if err != nil {
		t.Fatal(err)
	}
	if !c.RunOne(ctx) {
		t.Fatal("coordinator found no task")
	}

	task, ok := c.Task(id)
	if !ok {
		t.Fatal("task vanished")
	}
	if task.Status != types.TaskCompleted {
		t.Errorf("status = %s, want completed", task.Status)
	}
	if task.Result["action"] != "no_action_needed" {
		t.Errorf("result = %v", task.Result)
	}
}
