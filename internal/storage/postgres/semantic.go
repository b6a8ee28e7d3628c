package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// StoreKnowledge creates or updates a knowledge item (upsert semantics).
// When an embedder is configured, the content vector is computed and
// stored alongside; embedding failures degrade to a lexical-only row.
func (s *Store) StoreKnowledge(ctx context.Context, item *types.KnowledgeItem) (string, error) {
	if item == nil {
		return "", storage.ErrInvalidInput
	}

	item.Normalize()
	if err := item.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	var embedding any
	if s.pgvectorAvailable && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, item.Content)
		if err != nil {
			log.Printf("WARNING: postgres: embedding failed for knowledge item (stored without vector): %v", err)
		} else if len(vec) > 0 {
			embedding = pgvector.NewVector(vec)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_items (id, agent_id, knowledge_type, content,
			confidence, source_episode_ids, tags, metadata, access_count,
			created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			knowledge_type = EXCLUDED.knowledge_type,
			content = EXCLUDED.content,
			confidence = EXCLUDED.confidence,
			source_episode_ids = EXCLUDED.source_episode_ids,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, item.ID, s.agentID, string(item.Type), item.Content, item.Confidence,
		storage.EncodeJSON(item.SourceEpisodeIDs), storage.EncodeJSON(item.Tags),
		storage.EncodeJSON(item.Metadata), item.AccessCount, item.CreatedAt, embedding)
	if err != nil {
		return "", fmt.Errorf("postgres: failed to store knowledge item: %w", err)
	}

	return item.ID, nil
}

// GetKnowledge retrieves a knowledge item by ID.
func (s *Store) GetKnowledge(ctx context.Context, id string) (*types.KnowledgeItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, knowledge_type, content, confidence, source_episode_ids,
			tags, metadata, access_count, created_at, last_accessed_at
		FROM knowledge_items
		WHERE id = $1 AND agent_id = $2
	`, id, s.agentID)

	item, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get knowledge item: %w", err)
	}
	return item, nil
}

// Search returns the knowledge items most similar to query. With pgvector
// and an embedder available it is a cosine nearest-neighbor search;
// otherwise it falls back to token-overlap lexical matching.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	if s.pgvectorAvailable && s.embedder != nil {
		hits, err := s.vectorSearch(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		log.Printf("WARNING: postgres: vector search failed, falling back to lexical: %v", err)
	}

	return s.lexicalSearch(ctx, query, limit)
}

func (s *Store) vectorSearch(ctx context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, confidence, tags, metadata,
			1 - (embedding <=> $1) AS similarity
		FROM knowledge_items
		WHERE agent_id = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vec), s.agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search query failed: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

// lexicalSearch ranks items by token overlap between query and content.
// It is the degraded path when no embedder or pgvector is available.
func (s *Store) lexicalSearch(ctx context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	// Pull candidates matching any token, rank in Go by overlap ratio.
	patterns := make([]string, 0, len(tokens))
	args := []any{s.agentID}
	for _, tok := range tokens {
		args = append(args, "%"+tok+"%")
		patterns = append(patterns, fmt.Sprintf("content ILIKE $%d", len(args)))
	}

	q := fmt.Sprintf(`
		SELECT id, content, confidence, tags, metadata, 0 AS similarity
		FROM knowledge_items
		WHERE agent_id = $1 AND (%s)
		LIMIT 200
	`, strings.Join(patterns, " OR "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: lexical search query failed: %w", err)
	}
	defer rows.Close()

	hits, err := scanHits(rows)
	if err != nil {
		return nil, err
	}

	for i := range hits {
		hits[i].Similarity = tokenOverlap(tokens, hits[i].Content)
	}
	sortHitsBySimilarity(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// tokenOverlap returns the fraction of query tokens present in content.
func tokenOverlap(tokens []string, content string) float64 {
	lc := strings.ToLower(content)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(lc, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func sortHitsBySimilarity(hits []storage.SemanticHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// DeleteKnowledge permanently removes a knowledge item.
func (s *Store) DeleteKnowledge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM knowledge_items WHERE id = $1 AND agent_id = $2
	`, id, s.agentID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete knowledge item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TouchKnowledge increments the access count and stamps last_accessed_at.
func (s *Store) TouchKnowledge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_items
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id = $1 AND agent_id = $2
	`, id, s.agentID)
	if err != nil {
		return fmt.Errorf("postgres: failed to touch knowledge item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// KnowledgeStats returns aggregate knowledge counts by type.
func (s *Store) KnowledgeStats(ctx context.Context) (*storage.KnowledgeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT knowledge_type, COUNT(*)
		FROM knowledge_items
		WHERE agent_id = $1
		GROUP BY knowledge_type
	`, s.agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query knowledge stats: %w", err)
	}
	defer rows.Close()

	st := &storage.KnowledgeStats{ByType: map[string]int{}}
	for rows.Next() {
		var kt string
		var n int
		if err := rows.Scan(&kt, &n); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan knowledge stats: %w", err)
		}
		st.ByType[kt] = n
		st.TotalItems += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: knowledge stats iteration failed: %w", err)
	}
	return st, nil
}

func scanKnowledge(r rowScanner) (*types.KnowledgeItem, error) {
	var (
		item              types.KnowledgeItem
		kt                string
		sources, tags, md []byte
		lastAccessed      sql.NullTime
	)

	err := r.Scan(&item.ID, &kt, &item.Content, &item.Confidence,
		&sources, &tags, &md, &item.AccessCount, &item.CreatedAt, &lastAccessed)
	if err != nil {
		return nil, err
	}

	item.Type = types.KnowledgeType(kt)
	item.SourceEpisodeIDs = storage.DecodeStringSlice(sources)
	item.Tags = storage.DecodeStringSlice(tags)
	item.Metadata = storage.DecodeJSONMap(md)
	item.Confidence = types.Clamp01(item.Confidence)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		item.LastAccessedAt = &t
	}

	return &item, nil
}

func scanHits(rows *sql.Rows) ([]storage.SemanticHit, error) {
	var out []storage.SemanticHit
	for rows.Next() {
		var (
			hit      storage.SemanticHit
			tags, md []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Content, &hit.Confidence, &tags, &md, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan search hit: %w", err)
		}
		hit.Tags = storage.DecodeStringSlice(tags)
		hit.Metadata = storage.DecodeJSONMap(md)
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search hit iteration failed: %w", err)
	}
	return out, nil
}
