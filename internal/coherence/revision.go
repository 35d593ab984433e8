package coherence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// Revision reason tags recorded in audit records and event context.
const (
	ReasonEvidenceOverride     = "evidence_override"
	ReasonBeliefReconciliation = "belief_reconciliation"
	ReasonBeliefSynthesis      = "belief_synthesis"
)

// BeliefRevisionProcessor resolves contradictions between an incoming event
// and existing beliefs. Every contradiction is resolved one of three ways
// based on relative evidence weight: override the existing belief, reconcile
// the incoming event to it, or synthesize a merged belief. The processor
// never fails for business-logic reasons; only store errors propagate.
type BeliefRevisionProcessor struct {
	engine *Engine
}

func newBeliefRevisionProcessor(e *Engine) *BeliefRevisionProcessor {
	return &BeliefRevisionProcessor{engine: e}
}

// workItem is one pending event on the synthesis work list. Synthesized
// events re-enter the pipeline through this list rather than true recursion
// so the depth bound is explicit.
type workItem struct {
	event     *types.StoryEvent
	relations []types.CausalRelation
	depth     int
}

// pendingOverride defers the revision artifacts of an override until the
// triggering event has been persisted.
type pendingOverride struct {
	existing       *types.StoryEvent
	newWeight      float64
	existingWeight float64
}

// Revise resolves the contradictions, persists the (possibly rewritten)
// incoming event plus all revision artifacts, and returns the recomputed
// overall coherence score. The score may still be below threshold; that is
// a normal outcome for the caller to judge.
func (p *BeliefRevisionProcessor) Revise(ctx context.Context, agentID string, event *types.StoryEvent, relations []types.CausalRelation, contradictions []Contradiction) (float64, error) {
	timer := logging.StartTimer(logging.CategoryRevision, "Revise")
	defer timer.Stop()

	queue := []workItem{{event: event, relations: relations, depth: 0}}
	pending := contradictions

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		// The initial item arrives with its contradictions already found;
		// synthesized items are scanned when popped, until the depth cap.
		itemContradictions := pending
		pending = nil
		if itemContradictions == nil && item.depth < p.engine.cfg.MaxSynthesisDepth {
			found, err := p.engine.scanForContradictions(ctx, item.event)
			if err != nil {
				return 0, err
			}
			itemContradictions = found
		}

		followups, synthesized, err := p.resolveItem(ctx, &item, itemContradictions)
		if err != nil {
			return 0, err
		}

		if err := p.engine.persistEvent(ctx, item.event, item.relations); err != nil {
			return 0, err
		}

		for _, ov := range followups {
			if err := p.applyOverride(ctx, agentID, item.event, ov); err != nil {
				return 0, err
			}
		}
		queue = append(queue, synthesized...)
	}

	return p.engine.CalculateNarrativeCoherence(ctx, agentID)
}

// resolveItem classifies each contradiction and rewrites the item in place.
// It returns override follow-ups to apply after persist and synthesized
// events to enqueue.
func (p *BeliefRevisionProcessor) resolveItem(ctx context.Context, item *workItem, contradictions []Contradiction) ([]pendingOverride, []workItem, error) {
	var overrides []pendingOverride
	var synthesized []workItem

	for _, c := range contradictions {
		newWeight := item.event.Confidence * item.event.NarrativeImportance
		existingWeight := c.Existing.Confidence
		ratio := p.engine.cfg.OverrideRatio

		// Record the conflict as an edge regardless of how it resolves.
		item.relations = append(item.relations, types.CausalRelation{
			ID:            uuid.NewString(),
			AgentID:       item.event.AgentID,
			CauseEventID:  c.Existing.ID,
			EffectEventID: item.event.ID,
			RelationType:  types.RelationContradictory,
			Strength:      c.Result.Confidence,
			Confidence:    c.Result.Confidence,
		})

		switch {
		case newWeight > ratio*existingWeight:
			logging.RevisionDebug("override: new weight %.2f beats existing %.2f (event %s)",
				newWeight, existingWeight, c.Existing.ID)
			overrides = append(overrides, pendingOverride{
				existing:       c.Existing,
				newWeight:      newWeight,
				existingWeight: existingWeight,
			})

		case existingWeight > ratio*newWeight:
			logging.RevisionDebug("reconcile: existing weight %.2f beats new %.2f (event %s)",
				existingWeight, newWeight, c.Existing.ID)
			item.event.Content = reconciledContent(item.event.Content, c.Existing.Content)
			item.event.RevisionCount++
			setContextValue(item.event, "revision_reason", ReasonBeliefReconciliation)
			setContextValue(item.event, "reconciled_with", c.Existing.ID)

		default:
			logging.RevisionDebug("synthesize: comparable weights %.2f vs %.2f (event %s)",
				newWeight, existingWeight, c.Existing.ID)
			synthesized = append(synthesized, p.buildSynthesis(ctx, *item, c))
		}
	}

	return overrides, synthesized, nil
}

// applyOverride persists the belief_revised event superseding the weaker
// existing belief together with its append-only audit record, then bumps
// the original's revision count. The original's content is never touched.
// The audit record carries the overall coherence delta measured across the
// revised event's persist.
func (p *BeliefRevisionProcessor) applyOverride(ctx context.Context, agentID string, trigger *types.StoryEvent, ov pendingOverride) error {
	coherenceBefore, err := p.engine.CalculateNarrativeCoherence(ctx, agentID)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("stronger evidence (%q) supersedes my earlier belief (%q)",
		trigger.Content, ov.existing.Content)
	revised := &types.StoryEvent{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		EventType: types.EventBeliefRevised,
		Timestamp: time.Now().UTC(),
		Content:   p.engine.services.reflect(ctx, summary),
		Context: map[string]any{
			"revision_reason": ReasonEvidenceOverride,
			"supersedes":      ov.existing.ID,
		},
		Confidence:          trigger.Confidence,
		EvidenceSource:      trigger.EvidenceSource,
		NarrativeImportance: 1.0,
		AlignmentScore:      trigger.AlignmentScore,
	}

	relations := []types.CausalRelation{
		{
			ID:            uuid.NewString(),
			AgentID:       agentID,
			CauseEventID:  trigger.ID,
			EffectEventID: revised.ID,
			RelationType:  types.RelationCausal,
			Strength:      0.9,
			Confidence:    trigger.Confidence,
		},
		{
			ID:            uuid.NewString(),
			AgentID:       agentID,
			CauseEventID:  ov.existing.ID,
			EffectEventID: revised.ID,
			RelationType:  types.RelationContradictory,
			Strength:      0.9,
			Confidence:    trigger.Confidence,
		},
	}

	if err := p.engine.persistEvent(ctx, revised, relations); err != nil {
		return err
	}

	coherenceAfter, err := p.engine.CalculateNarrativeCoherence(ctx, agentID)
	if err != nil {
		return err
	}

	record := &types.BeliefRevision{
		ID:                   uuid.NewString(),
		AgentID:              agentID,
		OriginalEventID:      ov.existing.ID,
		RevisedEventID:       revised.ID,
		TriggerEvidence:      trigger.Content,
		RevisionReason:       ReasonEvidenceOverride,
		ConfidenceChange:     ov.newWeight - ov.existingWeight,
		CoherenceImprovement: coherenceAfter - coherenceBefore,
		Timestamp:            time.Now().UTC(),
	}
	if err := p.engine.store.AddRevision(ctx, record); err != nil {
		return err
	}

	return p.engine.store.UpdateEventBookkeeping(ctx, agentID,
		ov.existing.ID, ov.existing.RevisionCount+1, ov.existing.AlignmentScore)
}

// buildSynthesis creates the merged belief_revised event for two beliefs of
// comparable weight. It re-enters the pipeline through the work list.
func (p *BeliefRevisionProcessor) buildSynthesis(ctx context.Context, item workItem, c Contradiction) workItem {
	summary := fmt.Sprintf("two of my beliefs hold comparable weight: %q and %q; both aspects may be true in different contexts",
		c.Existing.Content, item.event.Content)
	synth := &types.StoryEvent{
		ID:        uuid.NewString(),
		AgentID:   item.event.AgentID,
		EventType: types.EventBeliefRevised,
		Timestamp: time.Now().UTC(),
		Content:   p.engine.services.reflect(ctx, summary),
		Context: map[string]any{
			"revision_reason": ReasonBeliefSynthesis,
			"synthesis_of":    []string{c.Existing.ID, item.event.ID},
		},
		Confidence:          (item.event.Confidence + c.Existing.Confidence) / 2,
		NarrativeImportance: 1.0,
		AlignmentScore:      item.event.AlignmentScore,
	}

	relations := []types.CausalRelation{
		{
			ID:            uuid.NewString(),
			AgentID:       item.event.AgentID,
			CauseEventID:  c.Existing.ID,
			EffectEventID: synth.ID,
			RelationType:  types.RelationLogical,
			Strength:      0.7,
			Confidence:    synth.Confidence,
		},
		{
			ID:            uuid.NewString(),
			AgentID:       item.event.AgentID,
			CauseEventID:  item.event.ID,
			EffectEventID: synth.ID,
			RelationType:  types.RelationLogical,
			Strength:      0.7,
			Confidence:    synth.Confidence,
		},
	}

	return workItem{event: synth, relations: relations, depth: item.depth + 1}
}

func reconciledContent(incoming, established string) string {
	return fmt.Sprintf("%s (holding to my established belief: %s)", incoming, established)
}

func setContextValue(event *types.StoryEvent, key string, value any) {
	if event.Context == nil {
		event.Context = make(map[string]any)
	}
	event.Context[key] = value
}
