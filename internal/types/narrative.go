// Package types provides shared domain types used across storyloom packages.
// This package exists to break import cycles between store, coherence, and
// minion. Types in this package should be foundational data structures with
// no complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// STORY EVENTS
// =============================================================================

// EventType classifies a node in an agent's life-story.
type EventType string

const (
	EventBirth                  EventType = "birth"
	EventGoalSet                EventType = "goal_set"
	EventBeliefFormed           EventType = "belief_formed"
	EventActionTaken            EventType = "action_taken"
	EventEvidenceReceived       EventType = "evidence_received"
	EventBeliefRevised          EventType = "belief_revised"
	EventContradictionResolved  EventType = "contradiction_resolved"
	EventMilestoneReached       EventType = "milestone_reached"
	EventReflectionPerformed    EventType = "reflection_performed"
	EventAlignmentCheck         EventType = "alignment_check"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventBirth, EventGoalSet, EventBeliefFormed, EventActionTaken,
		EventEvidenceReceived, EventBeliefRevised, EventContradictionResolved,
		EventMilestoneReached, EventReflectionPerformed, EventAlignmentCheck:
		return true
	}
	return false
}

// StoryEvent is a node in an agent's life-story graph.
// An event's ID and content are immutable once persisted; superseding content
// requires a new belief_revised event that references this one through a
// causal relation. Only RevisionCount and AlignmentScore are bookkeeping
// fields the engine may update in place.
type StoryEvent struct {
	ID                  string         `json:"id"`
	AgentID             string         `json:"agent_id"`
	EventType           EventType      `json:"event_type"`
	Timestamp           time.Time      `json:"timestamp"`
	Content             string         `json:"content"`
	Context             map[string]any `json:"context,omitempty"`
	Confidence          float64        `json:"confidence"`
	EvidenceSource      string         `json:"evidence_source,omitempty"`
	NarrativeImportance float64        `json:"narrative_importance"`
	RevisionCount       int            `json:"revision_count"`
	IsCoreBelief        bool           `json:"is_core_belief"`
	AlignmentScore      float64        `json:"alignment_score"`
}

// =============================================================================
// CAUSAL RELATIONS
// =============================================================================

// RelationType classifies a directed edge between two story events.
type RelationType string

const (
	RelationCausal        RelationType = "causal"
	RelationTemporal      RelationType = "temporal"
	RelationLogical       RelationType = "logical"
	RelationContradictory RelationType = "contradictory"
)

// Valid reports whether r is a known relation type.
func (r RelationType) Valid() bool {
	switch r {
	case RelationCausal, RelationTemporal, RelationLogical, RelationContradictory:
		return true
	}
	return false
}

// CausalRelation is a directed edge between two story events of one agent.
// A relation is never retargeted after creation.
type CausalRelation struct {
	ID            string       `json:"id"`
	AgentID       string       `json:"agent_id"`
	CauseEventID  string       `json:"cause_event_id"`
	EffectEventID string       `json:"effect_event_id"`
	RelationType  RelationType `json:"relation_type"`
	Strength      float64      `json:"strength"`
	Confidence    float64      `json:"confidence"`
}

// =============================================================================
// NARRATIVE THREADS
// =============================================================================

// PrimaryThreadTitle is the title of the thread created at story birth.
const PrimaryThreadTitle = "Primary Journey"

// NarrativeThread groups an ordered sequence of events into one storyline.
// Threads are never hard-deleted, only deactivated.
type NarrativeThread struct {
	ID             string   `json:"id"`
	AgentID        string   `json:"agent_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	EventIDs       []string `json:"event_ids"`
	CoherenceScore float64  `json:"coherence_score"`
	Importance     float64  `json:"importance"`
	IsActive       bool     `json:"is_active"`
}

// =============================================================================
// BELIEF REVISIONS
// =============================================================================

// BeliefRevision is an append-only audit record of one belief-revision
// action. Both referenced events must belong to the same agent.
type BeliefRevision struct {
	ID                   string    `json:"id"`
	AgentID              string    `json:"agent_id"`
	OriginalEventID      string    `json:"original_event_id"`
	RevisedEventID       string    `json:"revised_event_id"`
	TriggerEvidence      string    `json:"trigger_evidence"`
	RevisionReason       string    `json:"revision_reason"`
	ConfidenceChange     float64   `json:"confidence_change"`
	CoherenceImprovement float64   `json:"coherence_improvement"`
	Timestamp            time.Time `json:"timestamp"`
}

// =============================================================================
// AGENT STORY
// =============================================================================

// AgentStory is the per-agent aggregate singleton. CoreObjective is set at
// creation and referenced for all subsequent alignment scoring.
type AgentStory struct {
	AgentID          string    `json:"agent_id"`
	StoryTitle       string    `json:"story_title"`
	CoreObjective    string    `json:"core_objective"`
	OverallCoherence float64   `json:"overall_coherence"`
	TotalEvents      int       `json:"total_events"`
	TotalRevisions   int       `json:"total_revisions"`
	StoryStartedAt   time.Time `json:"story_started_at"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// =============================================================================
// OBSERVATIONS
// =============================================================================

// ObservationEntry is an incoming sensor/observation delta that has not yet
// been accepted into the story graph. Key identifies the observed quantity
// and Value carries its raw textual form.
type ObservationEntry struct {
	AgentID    string    `json:"agent_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}
