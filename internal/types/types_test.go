package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestEventTypeValid(t *testing.T) {
	valid := []EventType{
		EventBirth, EventGoalSet, EventBeliefFormed, EventActionTaken,
		EventEvidenceReceived, EventBeliefRevised, EventContradictionResolved,
		EventMilestoneReached, EventReflectionPerformed, EventAlignmentCheck,
	}
	for _, et := range valid {
		if !et.Valid() {
			t.Errorf("expected %q to be valid", et)
		}
	}
	if EventType("teleport").Valid() {
		t.Error("unknown event type should be invalid")
	}
	if EventType("").Valid() {
		t.Error("empty event type should be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskCompleted.Terminal() || !TaskFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
	for _, s := range []TaskStatus{TaskIdle, TaskActive, TaskThinking, TaskActing, TaskRetrying} {
		if s.Terminal() {
			t.Errorf("%q must not be terminal", s)
		}
	}
}

func TestMinionTaskStoryLoss(t *testing.T) {
	task := &MinionTask{TriggerData: map[string]any{TriggerDataStoryLoss: 0.42}}
	if got := task.StoryLoss(); got != 0.42 {
		t.Errorf("StoryLoss = %v, want 0.42", got)
	}
	empty := &MinionTask{}
	if got := empty.StoryLoss(); got != 0 {
		t.Errorf("StoryLoss on empty trigger data = %v, want 0", got)
	}
}

func TestFactOrigin(t *testing.T) {
	f := Fact{OriginID: "evt-1", OriginKey: "response_time"}
	if f.Origin() != "evt-1" {
		t.Errorf("Origin should prefer the event id, got %q", f.Origin())
	}
	f = Fact{OriginKey: "response_time"}
	if f.Origin() != "response_time" {
		t.Errorf("Origin should fall back to the observation key, got %q", f.Origin())
	}
}

func TestIsValidation(t *testing.T) {
	wrapped := fmt.Errorf("add event: %w", ErrInvalidEventType)
	if !IsValidation(wrapped) {
		t.Error("wrapped validation sentinel should be recognized")
	}
	if IsValidation(errors.New("disk on fire")) {
		t.Error("infrastructure error must not be classified as validation")
	}
}
