package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storyloom/internal/types"
)

// CreateThread inserts a narrative thread for an agent.
func (s *GraphStore) CreateThread(ctx context.Context, thread *types.NarrativeThread) error {
	if thread.AgentID == "" {
		return types.ErrMissingAgentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narrative_threads (id, agent_id, title, description, coherence_score, importance, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		thread.ID, thread.AgentID, thread.Title, thread.Description,
		thread.CoherenceScore, thread.Importance, boolToInt(thread.IsActive))
	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}
	return nil
}

// GetThreadByTitle loads a thread and its ordered event ids.
func (s *GraphStore) GetThreadByTitle(ctx context.Context, agentID, title string) (*types.NarrativeThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var thread types.NarrativeThread
	var isActive int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, title, description, coherence_score, importance, is_active
		 FROM narrative_threads WHERE agent_id = ? AND title = ?`, agentID, title).
		Scan(&thread.ID, &thread.AgentID, &thread.Title, &thread.Description,
			&thread.CoherenceScore, &thread.Importance, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	thread.IsActive = isActive != 0

	thread.EventIDs, err = s.threadEventIDsLocked(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// threadEventIDsLocked returns a thread's event ids in sequence order.
// Caller must hold at least s.mu.RLock().
func (s *GraphStore) threadEventIDsLocked(ctx context.Context, threadID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id FROM thread_events WHERE thread_id = ? ORDER BY sequence_order ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread event: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// appendToThreadTx appends an event to a thread with the next sequence
// order inside an open transaction. The thread must belong to the agent.
func appendToThreadTx(ctx context.Context, tx *sql.Tx, agentID, threadID, eventID string) error {
	var ownerID string
	err := tx.QueryRowContext(ctx,
		`SELECT agent_id FROM narrative_threads WHERE id = ?`, threadID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrThreadNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to validate thread: %w", err)
	}
	if ownerID != agentID {
		return types.ErrCrossAgentRef
	}

	// sequence_order = max existing + 1, starting at 1 for an empty thread.
	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_order), 0) + 1 FROM thread_events WHERE thread_id = ?`, threadID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to compute sequence order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO thread_events (thread_id, event_id, sequence_order) VALUES (?, ?, ?)`,
		threadID, eventID, next)
	if err != nil {
		return fmt.Errorf("failed to append to thread: %w", err)
	}
	return nil
}

// DeactivateThread marks a thread inactive. Threads are never hard-deleted.
func (s *GraphStore) DeactivateThread(ctx context.Context, agentID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE narrative_threads SET is_active = 0 WHERE agent_id = ? AND id = ?`, agentID, threadID)
	if err != nil {
		return fmt.Errorf("failed to deactivate thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrThreadNotFound
	}
	return nil
}
