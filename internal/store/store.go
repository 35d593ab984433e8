// Package store implements the story graph store on SQLite.
//
// It is the durable state of the narrative-coherence core: story events,
// causal relations, narrative threads, belief revisions, and the per-agent
// story aggregate. Every table is keyed by agent_id and every query filters
// on it; cross-agent references are rejected before any write.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"storyloom/internal/logging"
)

// GraphStore is the SQLite-backed story graph store.
type GraphStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// defaultBusyTimeoutMS matches the store config default.
const defaultBusyTimeoutMS = 5000

// New initializes the SQLite database at the given path.
// Use ":memory:" for an ephemeral store in tests.
func New(path string) (*GraphStore, error) {
	return NewWithBusyTimeout(path, defaultBusyTimeoutMS)
}

// NewWithBusyTimeout initializes the database with an explicit SQLite busy
// timeout.
func NewWithBusyTimeout(path string, busyTimeoutMS int) (*GraphStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if busyTimeoutMS > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	s := &GraphStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *GraphStore) initialize() error {
	storiesTable := `
	CREATE TABLE IF NOT EXISTS agent_stories (
		agent_id TEXT PRIMARY KEY,
		story_title TEXT NOT NULL,
		core_objective TEXT NOT NULL,
		overall_coherence REAL DEFAULT 1.0,
		total_events INTEGER DEFAULT 0,
		total_revisions INTEGER DEFAULT 0,
		story_started_at TEXT NOT NULL,
		last_updated_at TEXT NOT NULL
	);
	`

	eventsTable := `
	CREATE TABLE IF NOT EXISTS story_events (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		content TEXT NOT NULL,
		context TEXT,
		confidence REAL NOT NULL,
		evidence_source TEXT,
		narrative_importance REAL NOT NULL,
		revision_count INTEGER DEFAULT 0,
		is_core_belief INTEGER DEFAULT 0,
		alignment_score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_agent ON story_events(agent_id);
	CREATE INDEX IF NOT EXISTS idx_events_agent_time ON story_events(agent_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_agent_type ON story_events(agent_id, event_type);
	`

	relationsTable := `
	CREATE TABLE IF NOT EXISTS causal_relations (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		cause_event_id TEXT NOT NULL,
		effect_event_id TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		strength REAL NOT NULL,
		confidence REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relations_agent ON causal_relations(agent_id);
	CREATE INDEX IF NOT EXISTS idx_relations_cause ON causal_relations(agent_id, cause_event_id);
	CREATE INDEX IF NOT EXISTS idx_relations_effect ON causal_relations(agent_id, effect_event_id);
	`

	threadsTable := `
	CREATE TABLE IF NOT EXISTS narrative_threads (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		coherence_score REAL DEFAULT 1.0,
		importance REAL DEFAULT 0.5,
		is_active INTEGER DEFAULT 1,
		UNIQUE(agent_id, title)
	);
	CREATE TABLE IF NOT EXISTS thread_events (
		thread_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		sequence_order INTEGER NOT NULL,
		UNIQUE(thread_id, event_id),
		UNIQUE(thread_id, sequence_order)
	);
	CREATE INDEX IF NOT EXISTS idx_thread_events ON thread_events(thread_id, sequence_order);
	`

	revisionsTable := `
	CREATE TABLE IF NOT EXISTS belief_revisions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		original_event_id TEXT NOT NULL,
		revised_event_id TEXT NOT NULL,
		trigger_evidence TEXT,
		revision_reason TEXT,
		confidence_change REAL NOT NULL,
		coherence_improvement REAL NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_revisions_agent ON belief_revisions(agent_id, timestamp);
	`

	for _, table := range []string{storiesTable, eventsTable, relationsTable, threadsTable, revisionsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	logging.StoreDebug("story graph store initialized at %s", s.dbPath)
	return nil
}

// Close closes the database connection.
func (s *GraphStore) Close() error {
	return s.db.Close()
}
