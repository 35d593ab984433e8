package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"storyloom/internal/types"
)

func newTestStore(t *testing.T) *GraphStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStory(t *testing.T, s *GraphStore, agentID string) {
	t.Helper()
	err := s.CreateStory(context.Background(), &types.AgentStory{
		AgentID:          agentID,
		StoryTitle:       "The Story of " + agentID,
		CoreObjective:    "maintain reliable service",
		OverallCoherence: 1.0,
		StoryStartedAt:   time.Now(),
		LastUpdatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("seed story failed: %v", err)
	}
}

func seedThread(t *testing.T, s *GraphStore, agentID string) string {
	t.Helper()
	id := uuid.NewString()
	err := s.CreateThread(context.Background(), &types.NarrativeThread{
		ID:       id,
		AgentID:  agentID,
		Title:    types.PrimaryThreadTitle,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed thread failed: %v", err)
	}
	return id
}

func makeEvent(agentID string, et types.EventType, content string, ts time.Time) *types.StoryEvent {
	return &types.StoryEvent{
		ID:                  uuid.NewString(),
		AgentID:             agentID,
		EventType:           et,
		Timestamp:           ts,
		Content:             content,
		Confidence:          0.8,
		NarrativeImportance: 0.5,
		AlignmentScore:      0.5,
	}
}

func TestEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")

	event := &types.StoryEvent{
		ID:        uuid.NewString(),
		AgentID:   "agent-1",
		EventType: types.EventBeliefFormed,
		Timestamp: time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
		Content:   "the rollout finished cleanly",
		Context: map[string]any{
			"goal_directed": true,
			"batch":         "nightly",
		},
		Confidence:          0.85,
		EvidenceSource:      "deploy-log",
		NarrativeImportance: 0.5,
		IsCoreBelief:        true,
		AlignmentScore:      0.6,
	}
	if err := s.AppendEvent(ctx, event, nil, ""); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	got, err := s.GetEvent(ctx, "agent-1", event.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if diff := cmp.Diff(event, got); diff != "" {
		t.Errorf("event round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateStorySingleton(t *testing.T) {
	s := newTestStore(t)
	seedStory(t, s, "agent-1")

	err := s.CreateStory(context.Background(), &types.AgentStory{AgentID: "agent-1"})
	if !errors.Is(err, types.ErrStoryExists) {
		t.Fatalf("duplicate story should return ErrStoryExists, got %v", err)
	}

	story, err := s.GetStory(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("GetStory failed: %v", err)
	}
	if story.CoreObjective != "maintain reliable service" {
		t.Errorf("objective = %q", story.CoreObjective)
	}

	if _, err := s.GetStory(context.Background(), "ghost"); !errors.Is(err, types.ErrAgentNotFound) {
		t.Errorf("unknown agent should return ErrAgentNotFound, got %v", err)
	}
}

func TestAppendEventTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")
	threadID := seedThread(t, s, "agent-1")

	parent := makeEvent("agent-1", types.EventBirth, "born", time.Now().Add(-time.Hour))
	if err := s.AppendEvent(ctx, parent, nil, threadID); err != nil {
		t.Fatalf("append parent failed: %v", err)
	}

	child := makeEvent("agent-1", types.EventBeliefFormed, "the sky is blue", time.Now())
	rel := types.CausalRelation{
		ID:            uuid.NewString(),
		AgentID:       "agent-1",
		CauseEventID:  parent.ID,
		EffectEventID: child.ID,
		RelationType:  types.RelationCausal,
		Strength:      0.8,
		Confidence:    0.8,
	}
	if err := s.AppendEvent(ctx, child, []types.CausalRelation{rel}, threadID); err != nil {
		t.Fatalf("append child failed: %v", err)
	}

	story, _ := s.GetStory(ctx, "agent-1")
	if story.TotalEvents != 2 {
		t.Errorf("total events = %d, want 2", story.TotalEvents)
	}

	connected, err := s.CountConnectedEvents(ctx, "agent-1")
	if err != nil {
		t.Fatalf("CountConnectedEvents failed: %v", err)
	}
	if connected != 2 {
		t.Errorf("connected events = %d, want 2", connected)
	}

	thread, err := s.GetThreadByTitle(ctx, "agent-1", types.PrimaryThreadTitle)
	if err != nil {
		t.Fatalf("GetThreadByTitle failed: %v", err)
	}
	if len(thread.EventIDs) != 2 || thread.EventIDs[0] != parent.ID || thread.EventIDs[1] != child.ID {
		t.Errorf("thread order wrong: %v", thread.EventIDs)
	}
}

func TestAppendEventRollsBackOnBadRelation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")
	threadID := seedThread(t, s, "agent-1")

	event := makeEvent("agent-1", types.EventBeliefFormed, "belief", time.Now())
	badRel := types.CausalRelation{
		ID:            uuid.NewString(),
		AgentID:       "agent-1",
		CauseEventID:  "no-such-event",
		EffectEventID: event.ID,
		RelationType:  types.RelationCausal,
	}
	err := s.AppendEvent(ctx, event, []types.CausalRelation{badRel}, threadID)
	if !errors.Is(err, types.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	// Nothing from the failed transaction may be visible.
	if _, err := s.GetEvent(ctx, "agent-1", event.ID); !errors.Is(err, types.ErrEventNotFound) {
		t.Error("event from rolled-back transaction should not exist")
	}
	story, _ := s.GetStory(ctx, "agent-1")
	if story.TotalEvents != 0 {
		t.Errorf("counters must not move on rollback, got %d", story.TotalEvents)
	}
}

func TestAppendEventRejectsCrossAgentRelation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")
	seedStory(t, s, "agent-2")
	thread1 := seedThread(t, s, "agent-1")

	other := makeEvent("agent-2", types.EventBirth, "other born", time.Now())
	thread2 := seedThread(t, s, "agent-2")
	if err := s.AppendEvent(ctx, other, nil, thread2); err != nil {
		t.Fatalf("append for agent-2 failed: %v", err)
	}

	event := makeEvent("agent-1", types.EventBeliefFormed, "belief", time.Now())
	rel := types.CausalRelation{
		ID:            uuid.NewString(),
		AgentID:       "agent-1",
		CauseEventID:  other.ID, // belongs to agent-2
		EffectEventID: event.ID,
		RelationType:  types.RelationCausal,
	}
	err := s.AppendEvent(ctx, event, []types.CausalRelation{rel}, thread1)
	if !errors.Is(err, types.ErrCrossAgentRef) {
		t.Fatalf("expected ErrCrossAgentRef, got %v", err)
	}
}

func TestAppendEventValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")

	noAgent := makeEvent("", types.EventBirth, "x", time.Now())
	if err := s.AppendEvent(ctx, noAgent, nil, ""); !errors.Is(err, types.ErrMissingAgentID) {
		t.Errorf("expected ErrMissingAgentID, got %v", err)
	}

	badType := makeEvent("agent-1", types.EventType("teleport"), "x", time.Now())
	if err := s.AppendEvent(ctx, badType, nil, ""); !errors.Is(err, types.ErrInvalidEventType) {
		t.Errorf("expected ErrInvalidEventType, got %v", err)
	}

	orphan := makeEvent("agent-ghost", types.EventBirth, "x", time.Now())
	if err := s.AppendEvent(ctx, orphan, nil, ""); !errors.Is(err, types.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestRecentEventsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")

	now := time.Now()
	old := makeEvent("agent-1", types.EventBeliefFormed, "old belief", now.Add(-48*time.Hour))
	recent := makeEvent("agent-1", types.EventBeliefFormed, "recent belief", now.Add(-time.Hour))
	action := makeEvent("agent-1", types.EventActionTaken, "recent action", now.Add(-30*time.Minute))
	reflection := makeEvent("agent-1", types.EventReflectionPerformed, "reflected", now.Add(-10*time.Minute))

	for _, ev := range []*types.StoryEvent{old, recent, action, reflection} {
		if err := s.AppendEvent(ctx, ev, nil, ""); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := s.RecentEvents(ctx, "agent-1", now.Add(-24*time.Hour),
		[]types.EventType{types.EventBeliefFormed, types.EventActionTaken, types.EventGoalSet}, 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	// Ordered timestamp descending.
	if got[0].ID != action.ID || got[1].ID != recent.ID {
		t.Errorf("wrong order: %s, %s", got[0].Content, got[1].Content)
	}

	limited, _ := s.RecentEvents(ctx, "agent-1", now.Add(-24*time.Hour), nil, 1)
	if len(limited) != 1 {
		t.Errorf("limit not applied, got %d", len(limited))
	}
}

func TestPerAgentIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")
	seedStory(t, s, "agent-2")

	e1 := makeEvent("agent-1", types.EventBeliefFormed, "belief one", time.Now())
	e2 := makeEvent("agent-2", types.EventBeliefFormed, "belief two", time.Now())
	if err := s.AppendEvent(ctx, e1, nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEvent(ctx, e2, nil, ""); err != nil {
		t.Fatal(err)
	}

	all1, _ := s.AllEvents(ctx, "agent-1")
	if len(all1) != 1 || all1[0].ID != e1.ID {
		t.Errorf("agent-1 must only see its own events: %v", all1)
	}
	if _, err := s.GetEvent(ctx, "agent-1", e2.ID); !errors.Is(err, types.ErrEventNotFound) {
		t.Error("point lookup must not cross agent partitions")
	}
}

func TestBeliefRevisionAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")

	original := makeEvent("agent-1", types.EventBeliefFormed, "old belief", time.Now().Add(-time.Hour))
	if err := s.AppendEvent(ctx, original, nil, ""); err != nil {
		t.Fatal(err)
	}

	revised := makeEvent("agent-1", types.EventBeliefRevised, "new belief", time.Now())
	if err := s.AppendEvent(ctx, revised, nil, ""); err != nil {
		t.Fatalf("append revised event failed: %v", err)
	}
	rev := &types.BeliefRevision{
		ID:                   uuid.NewString(),
		AgentID:              "agent-1",
		OriginalEventID:      original.ID,
		RevisedEventID:       revised.ID,
		TriggerEvidence:      "new belief",
		RevisionReason:       "evidence_override",
		ConfidenceChange:     0.4,
		CoherenceImprovement: 0.12,
		Timestamp:            time.Now(),
	}
	if err := s.AddRevision(ctx, rev); err != nil {
		t.Fatalf("AddRevision failed: %v", err)
	}

	story, _ := s.GetStory(ctx, "agent-1")
	if story.TotalRevisions != 1 {
		t.Errorf("total revisions = %d, want 1", story.TotalRevisions)
	}

	revs, err := s.ListRevisions(ctx, "agent-1")
	if err != nil {
		t.Fatalf("ListRevisions failed: %v", err)
	}
	if len(revs) != 1 || revs[0].ConfidenceChange != 0.4 {
		t.Errorf("unexpected revision log: %+v", revs)
	}
	if revs[0].CoherenceImprovement != 0.12 {
		t.Errorf("coherence improvement = %v, want 0.12", revs[0].CoherenceImprovement)
	}

	orphan := &types.BeliefRevision{ID: uuid.NewString(), AgentID: "agent-ghost", Timestamp: time.Now()}
	if err := s.AddRevision(ctx, orphan); !errors.Is(err, types.ErrAgentNotFound) {
		t.Errorf("revision for unknown agent should return ErrAgentNotFound, got %v", err)
	}
}

func TestUpdateEventBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")

	event := makeEvent("agent-1", types.EventBeliefFormed, "belief", time.Now())
	if err := s.AppendEvent(ctx, event, nil, ""); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateEventBookkeeping(ctx, "agent-1", event.ID, 2, 0.9); err != nil {
		t.Fatalf("UpdateEventBookkeeping failed: %v", err)
	}
	got, _ := s.GetEvent(ctx, "agent-1", event.ID)
	if got.RevisionCount != 2 || got.AlignmentScore != 0.9 {
		t.Errorf("bookkeeping not applied: %+v", got)
	}
	// Content stays immutable through the bookkeeping path.
	if got.Content != "belief" {
		t.Errorf("content must not change, got %q", got.Content)
	}
}

func TestAddRelationAndDeactivateThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStory(t, s, "agent-1")
	threadID := seedThread(t, s, "agent-1")

	a := makeEvent("agent-1", types.EventBeliefFormed, "a", time.Now().Add(-time.Minute))
	b := makeEvent("agent-1", types.EventBeliefFormed, "b", time.Now())
	for _, ev := range []*types.StoryEvent{a, b} {
		if err := s.AppendEvent(ctx, ev, nil, ""); err != nil {
			t.Fatal(err)
		}
	}

	rel := types.CausalRelation{
		ID: uuid.NewString(), AgentID: "agent-1",
		CauseEventID: a.ID, EffectEventID: b.ID,
		RelationType: types.RelationLogical, Strength: 0.3, Confidence: 0.6,
	}
	if err := s.AddRelation(ctx, rel); err != nil {
		t.Fatalf("AddRelation failed: %v", err)
	}

	has, err := s.HasRelationBetween(ctx, "agent-1", b.ID, a.ID)
	if err != nil || !has {
		t.Errorf("HasRelationBetween should find the edge in either direction (err=%v)", err)
	}

	if err := s.DeactivateThread(ctx, "agent-1", threadID); err != nil {
		t.Fatalf("DeactivateThread failed: %v", err)
	}
	thread, _ := s.GetThreadByTitle(ctx, "agent-1", types.PrimaryThreadTitle)
	if thread.IsActive {
		t.Error("thread should be inactive")
	}
}
