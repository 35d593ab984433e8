// Package coherence implements the narrative coherence engine: per-event
// importance and alignment scoring, contradiction detection against the
// existing story graph, belief revision, and the overall coherence score.
//
// The engine owns creation of story events, causal relations, and belief
// revision records. All heuristic layers (fact extraction, conflict
// analysis) sit behind strategy interfaces and can be substituted without
// touching the engine's control flow.
package coherence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/config"
	"storyloom/internal/conflict"
	"storyloom/internal/facts"
	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// GraphStore is the persistence surface the engine and revision processor
// require. *store.GraphStore satisfies it.
type GraphStore interface {
	CreateStory(ctx context.Context, story *types.AgentStory) error
	GetStory(ctx context.Context, agentID string) (*types.AgentStory, error)
	UpdateOverallCoherence(ctx context.Context, agentID string, coherence float64) error

	AppendEvent(ctx context.Context, event *types.StoryEvent, relations []types.CausalRelation, threadID string) error
	GetEvent(ctx context.Context, agentID, eventID string) (*types.StoryEvent, error)
	RecentEvents(ctx context.Context, agentID string, since time.Time, eventTypes []types.EventType, limit int) ([]*types.StoryEvent, error)
	AllEvents(ctx context.Context, agentID string) ([]*types.StoryEvent, error)
	UpdateEventBookkeeping(ctx context.Context, agentID, eventID string, revisionCount int, alignmentScore float64) error
	CountConnectedEvents(ctx context.Context, agentID string) (int, error)

	CreateThread(ctx context.Context, thread *types.NarrativeThread) error
	GetThreadByTitle(ctx context.Context, agentID, title string) (*types.NarrativeThread, error)

	AddRevision(ctx context.Context, rev *types.BeliefRevision) error
	ListRevisions(ctx context.Context, agentID string) ([]types.BeliefRevision, error)
}

// Engine scores, validates, and persists story events for all agents.
// The add-event path is synchronous; callers provide the context.
type Engine struct {
	store     GraphStore
	extractor facts.Extractor
	analyzer  conflict.Analyzer
	services  Services
	cfg       config.CoherenceConfig

	revisions *BeliefRevisionProcessor
}

// NewEngine wires an engine with the default lexical extractor and analyzer.
func NewEngine(store GraphStore, cfg config.CoherenceConfig, services Services) *Engine {
	e := &Engine{
		store:     store,
		extractor: facts.NewLexicalExtractor(),
		analyzer:  conflict.NewLexicalAnalyzer(),
		services:  services.normalized(),
		cfg:       cfg,
	}
	e.revisions = newBeliefRevisionProcessor(e)
	return e
}

// SetExtractor substitutes the fact-extraction strategy.
func (e *Engine) SetExtractor(x facts.Extractor) { e.extractor = x }

// SetAnalyzer substitutes the conflict-analysis strategy.
func (e *Engine) SetAnalyzer(a conflict.Analyzer) { e.analyzer = a }

// Revisions exposes the belief-revision processor.
func (e *Engine) Revisions() *BeliefRevisionProcessor { return e.revisions }

// InitializeStory creates the per-agent story singleton, its birth event,
// and the primary narrative thread.
func (e *Engine) InitializeStory(ctx context.Context, agentID, title, objective string) (*types.AgentStory, error) {
	if agentID == "" {
		return nil, types.ErrMissingAgentID
	}

	now := time.Now().UTC()
	story := &types.AgentStory{
		AgentID:          agentID,
		StoryTitle:       title,
		CoreObjective:    objective,
		OverallCoherence: 1.0,
		StoryStartedAt:   now,
		LastUpdatedAt:    now,
	}
	if err := e.store.CreateStory(ctx, story); err != nil {
		return nil, err
	}

	thread := &types.NarrativeThread{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Title:      types.PrimaryThreadTitle,
		Importance: 1.0,
		IsActive:   true,
	}
	if err := e.store.CreateThread(ctx, thread); err != nil {
		return nil, err
	}

	content := fmt.Sprintf("My story begins. Core objective: %s", objective)
	birth := &types.StoryEvent{
		ID:                  uuid.NewString(),
		AgentID:             agentID,
		EventType:           types.EventBirth,
		Timestamp:           now,
		Content:             content,
		Confidence:          1.0,
		NarrativeImportance: 1.0,
		IsCoreBelief:        true,
		AlignmentScore:      1.0,
	}
	if err := e.store.AppendEvent(ctx, birth, nil, thread.ID); err != nil {
		return nil, err
	}

	logging.Story("initialized story for agent %s (%q)", agentID, title)
	return story, nil
}

// AddEventRequest is the caller contract for accepting an external event
// into an agent's story.
type AddEventRequest struct {
	AgentID        string
	EventType      types.EventType
	Content        string
	Context        map[string]any
	EvidenceSource string
	Confidence     float64
	CausalParents  []string
}

// AddEvent scores the event, scans the recent graph for contradictions,
// persists the event (possibly revised), and reports whether overall
// coherence stayed above the configured threshold.
//
// coherence_maintained = false is a normal outcome, not an error: the story
// was revised but remains below threshold. Only validation and persistence
// failures return a non-nil error.
func (e *Engine) AddEvent(ctx context.Context, req AddEventRequest) (string, bool, error) {
	if req.AgentID == "" {
		return "", false, types.ErrMissingAgentID
	}
	if !req.EventType.Valid() {
		return "", false, fmt.Errorf("%w: %q", types.ErrInvalidEventType, req.EventType)
	}

	story, err := e.store.GetStory(ctx, req.AgentID)
	if err != nil {
		return "", false, err
	}

	timer := logging.StartTimer(logging.CategoryStory, "AddEvent")
	defer timer.Stop()

	event := &types.StoryEvent{
		ID:                  uuid.NewString(),
		AgentID:             req.AgentID,
		EventType:           req.EventType,
		Timestamp:           time.Now().UTC(),
		Content:             req.Content,
		Context:             req.Context,
		Confidence:          clamp01(req.Confidence),
		EvidenceSource:      req.EvidenceSource,
		NarrativeImportance: narrativeImportance(req.EventType, req.Content),
		IsCoreBelief:        req.EventType == types.EventBirth || req.EventType == types.EventGoalSet,
		AlignmentScore:      alignmentScore(req.Content, story.CoreObjective, req.Context),
	}

	relations := make([]types.CausalRelation, 0, len(req.CausalParents))
	for _, parentID := range req.CausalParents {
		relations = append(relations, types.CausalRelation{
			ID:            uuid.NewString(),
			AgentID:       req.AgentID,
			CauseEventID:  parentID,
			EffectEventID: event.ID,
			RelationType:  types.RelationCausal,
			Strength:      0.8,
			Confidence:    event.Confidence,
		})
	}

	contradictions, err := e.scanForContradictions(ctx, event)
	if err != nil {
		return "", false, err
	}

	var coherence float64
	if len(contradictions) == 0 {
		if err := e.persistEvent(ctx, event, relations); err != nil {
			return "", false, err
		}
		coherence, err = e.CalculateNarrativeCoherence(ctx, req.AgentID)
		if err != nil {
			return "", false, err
		}
	} else {
		logging.Story("agent %s: %d contradictions for incoming %s event, entering revision",
			req.AgentID, len(contradictions), req.EventType)
		coherence, err = e.revisions.Revise(ctx, req.AgentID, event, relations, contradictions)
		if err != nil {
			return "", false, err
		}
	}

	if err := e.store.UpdateOverallCoherence(ctx, req.AgentID, coherence); err != nil {
		return "", false, err
	}

	e.services.publish(ctx, publishTopic(req.EventType), map[string]any{
		"agent_id":   req.AgentID,
		"event_id":   event.ID,
		"event_type": string(req.EventType),
		"coherence":  coherence,
	})

	maintained := len(contradictions) == 0 || coherence > e.cfg.CoherenceThreshold
	return event.ID, maintained, nil
}

// CalculateNarrativeCoherence computes the overall coherence score:
// 0.7 x mean(confidence x alignment) over all events plus 0.3 x the
// fraction of events with at least one causal connection. An agent with
// zero events is perfectly coherent by definition.
func (e *Engine) CalculateNarrativeCoherence(ctx context.Context, agentID string) (float64, error) {
	events, err := e.store.AllEvents(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 1.0, nil
	}

	var sum float64
	for _, ev := range events {
		sum += ev.Confidence * ev.AlignmentScore
	}
	mean := sum / float64(len(events))

	connected, err := e.store.CountConnectedEvents(ctx, agentID)
	if err != nil {
		return 0, err
	}
	connectedFrac := float64(connected) / float64(len(events))

	return clamp01(0.7*mean + 0.3*connectedFrac), nil
}

// StoryLoss is the scalar the minion system schedules on; lower is better.
func (e *Engine) StoryLoss(ctx context.Context, agentID string) (float64, error) {
	coherence, err := e.CalculateNarrativeCoherence(ctx, agentID)
	if err != nil {
		return 0, err
	}
	return 1 - coherence, nil
}

// Contradiction pairs a detected conflict with the existing event it was
// detected against.
type Contradiction struct {
	Result   types.ConflictResult
	Existing *types.StoryEvent
}

// scanForContradictions extracts facts from the incoming event and compares
// them against recent belief-bearing events within the lookback window.
func (e *Engine) scanForContradictions(ctx context.Context, event *types.StoryEvent) ([]Contradiction, error) {
	newFacts := e.extractor.FromEvent(event)
	if len(newFacts) == 0 {
		return nil, nil
	}

	since := time.Now().Add(-e.cfg.LookbackDuration())
	recent, err := e.store.RecentEvents(ctx, event.AgentID, since,
		[]types.EventType{types.EventBeliefFormed, types.EventActionTaken, types.EventGoalSet},
		e.cfg.LookbackLimit)
	if err != nil {
		return nil, fmt.Errorf("contradiction scan failed: %w", err)
	}

	var found []Contradiction
	for _, existing := range recent {
		existingFacts := e.extractor.FromEvent(existing)
		if len(existingFacts) == 0 {
			continue
		}
		for _, r := range e.analyzer.DetectConflicts(newFacts, existingFacts) {
			if !r.HasConflict {
				continue
			}
			found = append(found, Contradiction{Result: r, Existing: existing})
		}
	}
	return found, nil
}

// persistEvent writes the event, its relations, and its thread membership
// in one transaction, appending to the primary thread when it exists.
func (e *Engine) persistEvent(ctx context.Context, event *types.StoryEvent, relations []types.CausalRelation) error {
	threadID := ""
	thread, err := e.store.GetThreadByTitle(ctx, event.AgentID, types.PrimaryThreadTitle)
	if err == nil {
		threadID = thread.ID
	} else if !errors.Is(err, types.ErrThreadNotFound) {
		return err
	}
	return e.store.AppendEvent(ctx, event, relations, threadID)
}

// narrativeImportance applies the importance rule. Birth, goal setting, and
// belief revision are always maximally important; actions and evidence scale
// with content length; everything else sits at the midpoint.
func narrativeImportance(eventType types.EventType, content string) float64 {
	switch eventType {
	case types.EventBirth, types.EventGoalSet, types.EventBeliefRevised:
		return 1.0
	case types.EventActionTaken, types.EventEvidenceReceived:
		return math.Min(1.0, float64(len(content))/500.0+0.3)
	default:
		return 0.5
	}
}

// alignmentScore measures token overlap between the event content and the
// agent's core objective, with a bonus for explicitly goal-directed context.
func alignmentScore(content, objective string, eventContext map[string]any) float64 {
	objTokens := tokenize(objective)
	if len(objTokens) == 0 {
		return 0.5
	}

	contentSet := make(map[string]bool)
	for _, tok := range tokenize(content) {
		contentSet[tok] = true
	}

	overlap := 0
	for _, tok := range objTokens {
		if contentSet[tok] {
			overlap++
		}
	}
	score := float64(overlap) / float64(len(objTokens))

	if goalDirected, ok := eventContext["goal_directed"].(bool); ok && goalDirected {
		score += 0.2
	}
	return clamp01(score)
}

func publishTopic(eventType types.EventType) string {
	switch eventType {
	case types.EventActionTaken:
		return "action"
	case types.EventBeliefFormed, types.EventBeliefRevised, types.EventEvidenceReceived:
		return "knowledge"
	default:
		return "conversation"
	}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
