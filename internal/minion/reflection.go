package minion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/config"
	"storyloom/internal/logging"
	"storyloom/internal/logic"
	"storyloom/internal/types"
)

// Repair confidence cutoffs per pattern family. A finding below its family
// cutoff is reported but not acted on.
const (
	negationRepairCutoff = 0.6
	temporalRepairCutoff = 0.5
	logicalRepairCutoff  = 0.7
)

// minImprovement is the story-loss reduction required for verification to
// count a repair pass as successful.
const minImprovement = 0.01

// GraphRepairer is the store surface the reflection minion needs: reading a
// recent window of the graph and adding clarifying edges.
type GraphRepairer interface {
	RecentEvents(ctx context.Context, agentID string, since time.Time, eventTypes []types.EventType, limit int) ([]*types.StoryEvent, error)
	HasRelationBetween(ctx context.Context, agentID, eventA, eventB string) (bool, error)
	AddRelation(ctx context.Context, rel types.CausalRelation) error
}

// LossScorer recomputes an agent's live story-loss.
type LossScorer interface {
	StoryLoss(ctx context.Context, agentID string) (float64, error)
}

// SelfReflectionMinion re-analyzes an agent's recent story graph for
// negation, temporal, and logical inconsistency patterns and attempts
// conservative repair: it adds clarifying edges flagging the ambiguity
// rather than asserting a winner.
type SelfReflectionMinion struct {
	store  GraphRepairer
	scorer LossScorer
	kernel *logic.Kernel
	cfg    config.MinionConfig
}

// NewSelfReflectionMinion wires the reflection minion.
func NewSelfReflectionMinion(store GraphRepairer, scorer LossScorer, kernel *logic.Kernel, cfg config.MinionConfig) *SelfReflectionMinion {
	return &SelfReflectionMinion{store: store, scorer: scorer, kernel: kernel, cfg: cfg}
}

// Type implements Minion.
func (m *SelfReflectionMinion) Type() types.MinionType { return types.MinionSelfReflection }

// Execute runs one analyze, repair, verify pass. Below-threshold story loss
// is a successful no-op. Only store and kernel failures return an error.
func (m *SelfReflectionMinion) Execute(ctx context.Context, task *types.MinionTask) (map[string]any, error) {
	loss := task.StoryLoss()
	if loss <= m.cfg.ReflectionThreshold {
		logging.MinionDebug("agent %s loss %.3f below threshold, no action", task.AgentID, loss)
		return map[string]any{
			"action":     "no_action_needed",
			"reason":     "below threshold",
			"story_loss": loss,
		}, nil
	}

	timer := logging.StartTimer(logging.CategoryMinion, "SelfReflection")
	defer timer.Stop()

	// Loss may have moved since the trigger; verify against the live value.
	lossBefore, err := m.scorer.StoryLoss(ctx, task.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to score pre-repair loss: %w", err)
	}

	findings, err := m.analyze(ctx, task.AgentID)
	if err != nil {
		return nil, err
	}

	repairs, err := m.repair(ctx, task.AgentID, findings)
	if err != nil {
		return nil, err
	}

	lossAfter, err := m.scorer.StoryLoss(ctx, task.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to score post-repair loss: %w", err)
	}
	improvement := lossBefore - lossAfter

	logging.Minion("agent %s reflection: %d findings, %d repairs, loss %.3f -> %.3f",
		task.AgentID, len(findings), repairs, lossBefore, lossAfter)

	return map[string]any{
		"action":            "repair_attempted",
		"findings":          len(findings),
		"repairs_added":     repairs,
		"story_loss_before": lossBefore,
		"story_loss_after":  lossAfter,
		"improved":          improvement > minImprovement,
		"retry_recommended": lossAfter > m.cfg.ReflectionThreshold,
	}, nil
}

// analyze pulls the recent analysis window from the graph and derives the
// three inconsistency pattern families through the logic kernel.
func (m *SelfReflectionMinion) analyze(ctx context.Context, agentID string) ([]logic.Inconsistency, error) {
	since := time.Now().Add(-m.cfg.AnalysisWindowDuration())
	events, err := m.store.RecentEvents(ctx, agentID, since, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis window: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return logic.AnalyzeEvents(m.kernel, events)
}

// repair adds one clarifying edge per finding above its family cutoff,
// skipping pairs that are already connected and internal (self-pair)
// findings. Returns the number of edges added.
func (m *SelfReflectionMinion) repair(ctx context.Context, agentID string, findings []logic.Inconsistency) (int, error) {
	repairs := 0
	for _, f := range findings {
		if f.Confidence < repairCutoff(f.Kind) {
			continue
		}
		if f.EventA == f.EventB {
			continue
		}

		connected, err := m.store.HasRelationBetween(ctx, agentID, f.EventA, f.EventB)
		if err != nil {
			return repairs, err
		}
		if connected {
			continue
		}

		err = m.store.AddRelation(ctx, types.CausalRelation{
			ID:            uuid.NewString(),
			AgentID:       agentID,
			CauseEventID:  f.EventA,
			EffectEventID: f.EventB,
			RelationType:  types.RelationLogical,
			Strength:      0.5,
			Confidence:    f.Confidence,
		})
		if err != nil {
			return repairs, fmt.Errorf("failed to add clarifying edge: %w", err)
		}
		repairs++
	}
	return repairs, nil
}

func repairCutoff(kind logic.InconsistencyKind) float64 {
	switch kind {
	case logic.InconsistencyTemporal:
		return temporalRepairCutoff
	case logic.InconsistencyLogical:
		return logicalRepairCutoff
	default:
		return negationRepairCutoff
	}
}
