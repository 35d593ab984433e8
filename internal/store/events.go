package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// AppendEvent persists a story event, its causal relations, its thread
// membership, and the story counters as one transaction. Partial application
// (an event without its causal edge) is a correctness violation, so any
// failure rolls the whole write back. Belief-revision audit records go
// through AddRevision.
//
// Every causal parent must already exist and belong to the same agent.
func (s *GraphStore) AppendEvent(ctx context.Context, event *types.StoryEvent, relations []types.CausalRelation, threadID string) error {
	if event.AgentID == "" {
		return types.ErrMissingAgentID
	}
	if !event.EventType.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidEventType, event.EventType)
	}
	for _, rel := range relations {
		if rel.AgentID != event.AgentID {
			return types.ErrCrossAgentRef
		}
	}

	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal event context: %w", err)
	}

	timer := logging.StartTimer(logging.CategoryStore, "AppendEvent")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The agent story must exist before events can be appended.
	var storyCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_stories WHERE agent_id = ?`, event.AgentID).Scan(&storyCount); err != nil {
		return fmt.Errorf("failed to check agent story: %w", err)
	}
	if storyCount == 0 {
		return types.ErrAgentNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO story_events
		 (id, agent_id, event_type, timestamp, content, context, confidence, evidence_source, narrative_importance, revision_count, is_core_belief, alignment_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.AgentID, string(event.EventType),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.Content, string(contextJSON), event.Confidence, event.EvidenceSource,
		event.NarrativeImportance, event.RevisionCount, boolToInt(event.IsCoreBelief), event.AlignmentScore,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	for _, rel := range relations {
		if err := insertRelationTx(ctx, tx, rel, event.ID); err != nil {
			return err
		}
	}

	if threadID != "" {
		if err := appendToThreadTx(ctx, tx, event.AgentID, threadID, event.ID); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`UPDATE agent_stories SET total_events = total_events + 1, last_updated_at = ? WHERE agent_id = ?`,
		now, event.AgentID)
	if err != nil {
		return fmt.Errorf("failed to update story counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}

	logging.StoreDebug("appended event %s (%s) for agent %s with %d relations",
		event.ID, event.EventType, event.AgentID, len(relations))
	return nil
}

// insertRelationTx validates both endpoints inside the transaction and
// inserts the relation. newEventID is the event being appended in the same
// transaction, which the existence check must treat as present.
func insertRelationTx(ctx context.Context, tx *sql.Tx, rel types.CausalRelation, newEventID string) error {
	if !rel.RelationType.Valid() {
		return fmt.Errorf("invalid relation type %q", rel.RelationType)
	}
	for _, endpoint := range []string{rel.CauseEventID, rel.EffectEventID} {
		if endpoint == newEventID {
			continue
		}
		var agentID string
		err := tx.QueryRowContext(ctx,
			`SELECT agent_id FROM story_events WHERE id = ?`, endpoint).Scan(&agentID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: relation endpoint %s", types.ErrEventNotFound, endpoint)
		}
		if err != nil {
			return fmt.Errorf("failed to validate relation endpoint: %w", err)
		}
		if agentID != rel.AgentID {
			return types.ErrCrossAgentRef
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO causal_relations (id, agent_id, cause_event_id, effect_event_id, relation_type, strength, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.AgentID, rel.CauseEventID, rel.EffectEventID,
		string(rel.RelationType), rel.Strength, rel.Confidence)
	if err != nil {
		return fmt.Errorf("failed to insert relation: %w", err)
	}
	return nil
}

// GetEvent loads one event by (agent_id, id).
func (s *GraphStore) GetEvent(ctx context.Context, agentID, eventID string) (*types.StoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM story_events WHERE agent_id = ? AND id = ?`,
		agentID, eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrEventNotFound
	}
	return event, err
}

// RecentEvents returns events for the agent newer than since, optionally
// filtered by event types, ordered by timestamp descending, capped at limit.
func (s *GraphStore) RecentEvents(ctx context.Context, agentID string, since time.Time, eventTypes []types.EventType, limit int) ([]*types.StoryEvent, error) {
	if agentID == "" {
		return nil, types.ErrMissingAgentID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + eventColumns + ` FROM story_events WHERE agent_id = ? AND timestamp > ?`
	args := []interface{}{agentID, since.UTC().Format(time.RFC3339Nano)}

	if len(eventTypes) > 0 {
		placeholders := make([]string, len(eventTypes))
		for i, et := range eventTypes {
			placeholders[i] = "?"
			args = append(args, string(et))
		}
		query += ` AND event_type IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// AllEvents returns every event for the agent in timestamp order.
func (s *GraphStore) AllEvents(ctx context.Context, agentID string) ([]*types.StoryEvent, error) {
	if agentID == "" {
		return nil, types.ErrMissingAgentID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM story_events WHERE agent_id = ? ORDER BY timestamp ASC`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// UpdateEventBookkeeping updates the only mutable fields of a persisted
// event: revision_count and alignment_score. Content is immutable.
func (s *GraphStore) UpdateEventBookkeeping(ctx context.Context, agentID, eventID string, revisionCount int, alignmentScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE story_events SET revision_count = ?, alignment_score = ? WHERE agent_id = ? AND id = ?`,
		revisionCount, alignmentScore, agentID, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event bookkeeping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrEventNotFound
	}
	return nil
}

// CountConnectedEvents returns how many of the agent's events participate in
// at least one causal relation.
func (s *GraphStore) CountConnectedEvents(ctx context.Context, agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT e.id) FROM story_events e
		 JOIN causal_relations r ON r.agent_id = e.agent_id
		   AND (r.cause_event_id = e.id OR r.effect_event_id = e.id)
		 WHERE e.agent_id = ?`, agentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count connected events: %w", err)
	}
	return count, nil
}

const eventColumns = `id, agent_id, event_type, timestamp, content, context, confidence, evidence_source, narrative_importance, revision_count, is_core_belief, alignment_score`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*types.StoryEvent, error) {
	var event types.StoryEvent
	var eventType, timestamp, contextJSON string
	var isCore int
	err := row.Scan(&event.ID, &event.AgentID, &eventType, &timestamp, &event.Content,
		&contextJSON, &event.Confidence, &event.EvidenceSource, &event.NarrativeImportance,
		&event.RevisionCount, &isCore, &event.AlignmentScore)
	if err != nil {
		return nil, err
	}
	event.EventType = types.EventType(eventType)
	event.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	event.IsCoreBelief = isCore != 0
	if contextJSON != "" && contextJSON != "null" {
		if err := json.Unmarshal([]byte(contextJSON), &event.Context); err != nil {
			logging.Get(logging.CategoryStore).Warn("event %s context unmarshal failed: %v", event.ID, err)
		}
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]*types.StoryEvent, error) {
	var events []*types.StoryEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
