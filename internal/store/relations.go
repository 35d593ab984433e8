package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storyloom/internal/types"
)

// AddRelation inserts a standalone causal relation between two existing
// events of the same agent. Used by the self-reflection minion's repair pass
// to add clarifying edges outside the append-event path.
func (s *GraphStore) AddRelation(ctx context.Context, rel types.CausalRelation) error {
	if rel.AgentID == "" {
		return types.ErrMissingAgentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRelationTx(ctx, tx, rel, ""); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit relation: %w", err)
	}
	return nil
}

// RelationsForAgent returns all relations for the agent.
func (s *GraphStore) RelationsForAgent(ctx context.Context, agentID string) ([]types.CausalRelation, error) {
	if agentID == "" {
		return nil, types.ErrMissingAgentID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, cause_event_id, effect_event_id, relation_type, strength, confidence
		 FROM causal_relations WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// RelationsBetween returns relations touching any of the given event ids.
func (s *GraphStore) RelationsBetween(ctx context.Context, agentID string, eventIDs []string) ([]types.CausalRelation, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idSet := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		idSet[id] = true
	}

	// The id list is small (one analysis window); filter in Go rather than
	// building a dynamic IN clause for both endpoint columns.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, cause_event_id, effect_event_id, relation_type, strength, confidence
		 FROM causal_relations WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	all, err := scanRelations(rows)
	if err != nil {
		return nil, err
	}
	var out []types.CausalRelation
	for _, rel := range all {
		if idSet[rel.CauseEventID] || idSet[rel.EffectEventID] {
			out = append(out, rel)
		}
	}
	return out, nil
}

// HasRelationBetween reports whether any relation already links the two
// events in either direction.
func (s *GraphStore) HasRelationBetween(ctx context.Context, agentID, eventA, eventB string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM causal_relations
		 WHERE agent_id = ?
		   AND ((cause_event_id = ? AND effect_event_id = ?) OR (cause_event_id = ? AND effect_event_id = ?))`,
		agentID, eventA, eventB, eventB, eventA).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check relation: %w", err)
	}
	return count > 0, nil
}

func scanRelations(rows *sql.Rows) ([]types.CausalRelation, error) {
	var out []types.CausalRelation
	for rows.Next() {
		var rel types.CausalRelation
		var relType string
		if err := rows.Scan(&rel.ID, &rel.AgentID, &rel.CauseEventID, &rel.EffectEventID,
			&relType, &rel.Strength, &rel.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan relation row: %w", err)
		}
		rel.RelationType = types.RelationType(relType)
		out = append(out, rel)
	}
	return out, rows.Err()
}

// AddRevision appends one belief-revision audit record and bumps the story's
// revision counter. Records are immutable once written; the coherence
// improvement is measured by the caller after the revised event lands, which
// is why the record is not part of the event transaction.
func (s *GraphStore) AddRevision(ctx context.Context, rev *types.BeliefRevision) error {
	if rev.AgentID == "" {
		return types.ErrMissingAgentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO belief_revisions
		 (id, agent_id, original_event_id, revised_event_id, trigger_evidence, revision_reason, confidence_change, coherence_improvement, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.AgentID, rev.OriginalEventID, rev.RevisedEventID,
		rev.TriggerEvidence, rev.RevisionReason, rev.ConfidenceChange,
		rev.CoherenceImprovement, rev.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert belief revision: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx,
		`UPDATE agent_stories SET total_revisions = total_revisions + 1, last_updated_at = ? WHERE agent_id = ?`,
		now, rev.AgentID)
	if err != nil {
		return fmt.Errorf("failed to update revision counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrAgentNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}
	return nil
}

// ListRevisions returns the agent's belief-revision audit log ordered by
// timestamp ascending. The log is append-only; there is no update or delete.
func (s *GraphStore) ListRevisions(ctx context.Context, agentID string) ([]types.BeliefRevision, error) {
	if agentID == "" {
		return nil, types.ErrMissingAgentID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, original_event_id, revised_event_id, trigger_evidence, revision_reason, confidence_change, coherence_improvement, timestamp
		 FROM belief_revisions WHERE agent_id = ? ORDER BY timestamp ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var out []types.BeliefRevision
	for rows.Next() {
		var rev types.BeliefRevision
		var ts string
		if err := rows.Scan(&rev.ID, &rev.AgentID, &rev.OriginalEventID, &rev.RevisedEventID,
			&rev.TriggerEvidence, &rev.RevisionReason, &rev.ConfidenceChange,
			&rev.CoherenceImprovement, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan revision row: %w", err)
		}
		rev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rev)
	}
	return out, rows.Err()
}
