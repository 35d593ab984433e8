package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storyloom/internal/types"
)

// CreateStory inserts the per-agent story aggregate. Exactly one story may
// exist per agent; a second create returns ErrStoryExists.
func (s *GraphStore) CreateStory(ctx context.Context, story *types.AgentStory) error {
	if story.AgentID == "" {
		return types.ErrMissingAgentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_stories WHERE agent_id = ?`, story.AgentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check story existence: %w", err)
	}
	if exists > 0 {
		return types.ErrStoryExists
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_stories
		 (agent_id, story_title, core_objective, overall_coherence, total_events, total_revisions, story_started_at, last_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		story.AgentID, story.StoryTitle, story.CoreObjective, story.OverallCoherence,
		story.TotalEvents, story.TotalRevisions,
		story.StoryStartedAt.UTC().Format(time.RFC3339Nano),
		story.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent story: %w", err)
	}
	return nil
}

// GetStory loads the story aggregate for an agent.
func (s *GraphStore) GetStory(ctx context.Context, agentID string) (*types.AgentStory, error) {
	if agentID == "" {
		return nil, types.ErrMissingAgentID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStoryLocked(ctx, agentID)
}

func (s *GraphStore) getStoryLocked(ctx context.Context, agentID string) (*types.AgentStory, error) {
	var story types.AgentStory
	var startedAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, story_title, core_objective, overall_coherence, total_events, total_revisions, story_started_at, last_updated_at
		 FROM agent_stories WHERE agent_id = ?`, agentID).
		Scan(&story.AgentID, &story.StoryTitle, &story.CoreObjective, &story.OverallCoherence,
			&story.TotalEvents, &story.TotalRevisions, &startedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent story: %w", err)
	}

	story.StoryStartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	story.LastUpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &story, nil
}

// ListAgents returns every agent id with a story, in creation order.
func (s *GraphStore) ListAgents(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id FROM agent_stories ORDER BY story_started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		agents = append(agents, id)
	}
	return agents, rows.Err()
}

// UpdateOverallCoherence records the latest computed coherence score.
func (s *GraphStore) UpdateOverallCoherence(ctx context.Context, agentID string, coherence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_stories SET overall_coherence = ?, last_updated_at = ? WHERE agent_id = ?`,
		coherence, time.Now().UTC().Format(time.RFC3339Nano), agentID)
	if err != nil {
		return fmt.Errorf("failed to update coherence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrAgentNotFound
	}
	return nil
}
