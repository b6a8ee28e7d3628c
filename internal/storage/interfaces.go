// Package storage provides composable storage interfaces for the Continuum
// system.
//
// The storage layer is split into small, focused interfaces that can be
// implemented independently and composed as needed: episodic memory,
// semantic memory, the short-lived working context and consciousness-state
// persistence each get their own contract, so backends can mix engines
// (Postgres for durable stores, Redis for the working context).
package storage

import (
	"context"
	"time"

	"github.com/scrypster/continuum/pkg/types"
)

// EpisodicStore persists discrete experience units and supports the
// queries the consolidation engine and continuity manager need.
type EpisodicStore interface {
	// StoreEpisode creates or updates an episode (upsert semantics) and
	// returns its ID. Input is normalized before writing; a missing ID is
	// assigned.
	StoreEpisode(ctx context.Context, ep *types.Episode) (string, error)

	// GetEpisode retrieves an episode by ID.
	// Returns ErrNotFound if the episode doesn't exist.
	GetEpisode(ctx context.Context, id string) (*types.Episode, error)

	// GetUnconsolidated returns up to limit unconsolidated episodes,
	// ordered by importance descending then timestamp descending.
	GetUnconsolidated(ctx context.Context, limit int) ([]*types.Episode, error)

	// MarkConsolidated flags the given episodes as consolidated and
	// returns the number of rows updated. Unknown IDs are skipped.
	MarkConsolidated(ctx context.Context, ids []string) (int, error)

	// UpdateEpisode applies the non-nil fields of upd to an episode.
	// Returns ErrNotFound if the episode doesn't exist.
	UpdateEpisode(ctx context.Context, id string, upd EpisodeUpdate) error

	// GetRecent returns episodes matching q, newest first.
	GetRecent(ctx context.Context, q RecentQuery) ([]*types.Episode, error)

	// GetRange returns episodes with timestamps in [start, end),
	// oldest first.
	GetRange(ctx context.Context, start, end time.Time) ([]*types.Episode, error)

	// PruneCandidates returns consolidated episodes older than before
	// with importance strictly below maxImportance, up to limit rows.
	PruneCandidates(ctx context.Context, before time.Time, maxImportance float64, limit int) ([]*types.Episode, error)

	// DeleteEpisode permanently removes an episode.
	// Returns ErrNotFound if the episode doesn't exist.
	DeleteEpisode(ctx context.Context, id string) error

	// EpisodeStats returns aggregate counts used by the auto-consolidation
	// trigger. Named apart from SemanticStore.KnowledgeStats so one
	// backend type can implement both contracts.
	EpisodeStats(ctx context.Context) (*EpisodeStats, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// SemanticStore persists consolidated knowledge and supports similarity
// search over it.
type SemanticStore interface {
	// StoreKnowledge creates or updates a knowledge item (upsert
	// semantics keyed on ID) and returns its ID.
	StoreKnowledge(ctx context.Context, item *types.KnowledgeItem) (string, error)

	// GetKnowledge retrieves a knowledge item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetKnowledge(ctx context.Context, id string) (*types.KnowledgeItem, error)

	// Search returns up to limit items most similar to the query text,
	// best match first. Hits carry the stored confidence, tags and
	// metadata so callers can reconcile without a second read.
	Search(ctx context.Context, query string, limit int) ([]SemanticHit, error)

	// DeleteKnowledge permanently removes a knowledge item.
	// Returns ErrNotFound if the item doesn't exist.
	DeleteKnowledge(ctx context.Context, id string) error

	// TouchKnowledge increments the access count and stamps
	// last_accessed_at. Returns ErrNotFound if the item doesn't exist.
	TouchKnowledge(ctx context.Context, id string) error

	// KnowledgeStats returns aggregate counts by knowledge type.
	KnowledgeStats(ctx context.Context) (*KnowledgeStats, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// WorkingContext is the short-lived attention window: a bounded, TTL'd
// set of recent context items.
type WorkingContext interface {
	// AddContext stores a context item and returns its key. Items expire
	// after the configured TTL; when the window exceeds its size bound,
	// the oldest items are evicted.
	AddContext(ctx context.Context, data map[string]any, tags []string, sessionID string) (string, error)

	// CurrentContext returns up to limit live items, newest first.
	CurrentContext(ctx context.Context, limit int) ([]ContextItem, error)

	// ContextByTags returns live items carrying at least one of the given
	// tags, newest first.
	ContextByTags(ctx context.Context, tags []string, limit int) ([]ContextItem, error)

	// Stats summarizes the live window.
	Stats(ctx context.Context) (*ContextStats, error)

	// ClearSession removes all items recorded under sessionID and
	// returns the number removed.
	ClearSession(ctx context.Context, sessionID string) (int, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// StateStore persists consciousness-state snapshots and the
// consolidation run log.
type StateStore interface {
	// SaveState appends a consciousness-state snapshot.
	SaveState(ctx context.Context, state *types.ConsciousnessState) error

	// LatestState returns the most recent snapshot by timestamp.
	// Returns ErrNotFound when no state has ever been saved.
	LatestState(ctx context.Context) (*types.ConsciousnessState, error)

	// RecordRun appends one consolidation-run log row.
	RecordRun(ctx context.Context, rec RunRecord) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder produces vector embeddings for text. Embedding generation is
// an external collaborator; stores consume this interface and degrade to
// lexical matching when it is absent.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
