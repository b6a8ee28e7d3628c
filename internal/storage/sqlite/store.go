// Package sqlite provides the embedded, zero-dependency backend for the
// Continuum storage interfaces. It mirrors the PostgreSQL backend's
// behavior; similarity search is a brute-force cosine scan in Go since
// SQLite has no vector index.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/continuum/internal/storage"
)

// Schema is the DDL for the Continuum tables. Idempotent, applied on
// every open.
const Schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMP NOT NULL,
	action_type TEXT NOT NULL,
	action_details TEXT NOT NULL DEFAULT '{}',
	context_state TEXT NOT NULL DEFAULT '{}',
	outcome TEXT NOT NULL DEFAULT '{}',
	emotional_state TEXT,
	importance REAL NOT NULL DEFAULT 0.5,
	tags TEXT NOT NULL DEFAULT '[]',
	consolidated INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_unconsolidated
	ON episodes (agent_id, consolidated, importance DESC, timestamp DESC);

CREATE INDEX IF NOT EXISTS idx_episodes_timestamp
	ON episodes (agent_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS knowledge_items (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	knowledge_type TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0.5,
	source_episode_ids TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_knowledge_type
	ON knowledge_items (agent_id, knowledge_type);

CREATE TABLE IF NOT EXISTS consciousness_states (
	state_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMP NOT NULL,
	state_data TEXT NOT NULL,
	confidence_score REAL NOT NULL DEFAULT 0.0,
	memory_integrity REAL NOT NULL DEFAULT 0.0,
	context_completeness REAL NOT NULL DEFAULT 0.0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_states_latest
	ON consciousness_states (agent_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS consolidation_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	run_type TEXT NOT NULL,
	episodes_processed INTEGER NOT NULL DEFAULT 0,
	patterns_extracted INTEGER NOT NULL DEFAULT 0,
	knowledge_created INTEGER NOT NULL DEFAULT 0,
	duration_seconds REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'completed',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store implements storage.EpisodicStore, storage.SemanticStore and
// storage.StateStore on SQLite. All queries are scoped to one agent.
type Store struct {
	db      *sql.DB
	agentID string

	// embedder generates vectors for knowledge content. May be nil;
	// search then falls back to lexical matching.
	embedder storage.Embedder
}

var (
	_ storage.EpisodicStore = (*Store)(nil)
	_ storage.SemanticStore = (*Store)(nil)
	_ storage.StateStore    = (*Store)(nil)
)

// New opens a SQLite-backed store for the given agent. The dsn is a file
// path or ":memory:". embedder may be nil; semantic search then uses
// lexical matching only.
func New(dsn, agentID string, embedder storage.Embedder) (*Store, error) {
	if agentID == "" {
		return nil, fmt.Errorf("sqlite: agent ID is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load; WAL mode lets readers proceed without blocking
	// the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db, agentID: agentID, embedder: embedder}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
