package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// StoreKnowledge creates or updates a knowledge item (upsert semantics).
// When an embedder is configured, the content vector is stored as a JSON
// array; embedding failures degrade to a lexical-only row.
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
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, item.Content)
		if err != nil {
			log.Printf("WARNING: sqlite: embedding failed for knowledge item (stored without vector): %v", err)
		} else if len(vec) > 0 {
			b, merr := json.Marshal(vec)
			if merr == nil {
				embedding = string(b)
			}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_items (id, agent_id, knowledge_type, content,
			confidence, source_episode_ids, tags, metadata, access_count,
			created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			knowledge_type = excluded.knowledge_type,
			content = excluded.content,
			confidence = excluded.confidence,
			source_episode_ids = excluded.source_episode_ids,
			tags = excluded.tags,
			metadata = excluded.metadata,
			embedding = excluded.embedding
	`, item.ID, s.agentID, string(item.Type), item.Content, item.Confidence,
		string(storage.EncodeJSON(item.SourceEpisodeIDs)), string(storage.EncodeJSON(item.Tags)),
		string(storage.EncodeJSON(item.Metadata)), item.AccessCount, item.CreatedAt, embedding)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to store knowledge item: %w", err)
	}

	return item.ID, nil
}

// GetKnowledge retrieves a knowledge item by ID.
func (s *Store) GetKnowledge(ctx context.Context, id string) (*types.KnowledgeItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, knowledge_type, content, confidence, source_episode_ids,
			tags, metadata, access_count, created_at, last_accessed_at
		FROM knowledge_items
		WHERE id = ? AND agent_id = ?
	`, id, s.agentID)

	item, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get knowledge item: %w", err)
	}
	return item, nil
}

// Search returns the knowledge items most similar to query. With an
// embedder available it is a brute-force cosine scan over the stored
// vectors; otherwise it falls back to token-overlap lexical matching.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	if s.embedder != nil {
		hits, err := s.vectorSearch(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		log.Printf("WARNING: sqlite: vector search failed, falling back to lexical: %v", err)
	}

	return s.lexicalSearch(ctx, query, limit)
}

// candidateRow is one knowledge row loaded for in-process ranking.
type candidateRow struct {
	hit       storage.SemanticHit
	embedding []float32
}

func (s *Store) loadCandidates(ctx context.Context, withEmbedding bool) ([]candidateRow, error) {
	cond := ""
	if withEmbedding {
		cond = "AND embedding IS NOT NULL"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content, confidence, tags, metadata, embedding
		FROM knowledge_items
		WHERE agent_id = ? %s
	`, cond), s.agentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query knowledge candidates: %w", err)
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var (
			c              candidateRow
			tags, md, embd sql.NullString
		)
		if err := rows.Scan(&c.hit.ID, &c.hit.Content, &c.hit.Confidence, &tags, &md, &embd); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan knowledge candidate: %w", err)
		}
		c.hit.Tags = storage.DecodeStringSlice([]byte(tags.String))
		c.hit.Metadata = storage.DecodeJSONMap([]byte(md.String))
		if embd.Valid {
			// Malformed vectors are skipped, not fatal.
			if err := json.Unmarshal([]byte(embd.String), &c.embedding); err != nil {
				c.embedding = nil
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: knowledge candidate iteration failed: %w", err)
	}
	return out, nil
}

func (s *Store) vectorSearch(ctx context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to embed query: %w", err)
	}

	cands, err := s.loadCandidates(ctx, true)
	if err != nil {
		return nil, err
	}

	hits := make([]storage.SemanticHit, 0, len(cands))
	for _, c := range cands {
		if len(c.embedding) != len(qvec) || len(c.embedding) == 0 {
			continue
		}
		c.hit.Similarity = cosineSimilarity(qvec, c.embedding)
		hits = append(hits, c.hit)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) lexicalSearch(ctx context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	cands, err := s.loadCandidates(ctx, false)
	if err != nil {
		return nil, err
	}

	var hits []storage.SemanticHit
	for _, c := range cands {
		lc := strings.ToLower(c.hit.Content)
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(lc, tok) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		c.hit.Similarity = float64(matched) / float64(len(tokens))
		hits = append(hits, c.hit)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors. Zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DeleteKnowledge permanently removes a knowledge item.
func (s *Store) DeleteKnowledge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM knowledge_items WHERE id = ? AND agent_id = ?
	`, id, s.agentID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete knowledge item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
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
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ? AND agent_id = ?
	`, time.Now().UTC(), id, s.agentID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch knowledge item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
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
		WHERE agent_id = ?
		GROUP BY knowledge_type
	`, s.agentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query knowledge stats: %w", err)
	}
	defer rows.Close()

	st := &storage.KnowledgeStats{ByType: map[string]int{}}
	for rows.Next() {
		var kt string
		var n int
		if err := rows.Scan(&kt, &n); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan knowledge stats: %w", err)
		}
		st.ByType[kt] = n
		st.TotalItems += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: knowledge stats iteration failed: %w", err)
	}
	return st, nil
}

func scanKnowledge(r rowScanner) (*types.KnowledgeItem, error) {
	var (
		item              types.KnowledgeItem
		kt                string
		sources, tags, md sql.NullString
		lastAccessed      sql.NullTime
	)

	err := r.Scan(&item.ID, &kt, &item.Content, &item.Confidence,
		&sources, &tags, &md, &item.AccessCount, &item.CreatedAt, &lastAccessed)
	if err != nil {
		return nil, err
	}

	item.Type = types.KnowledgeType(kt)
	item.SourceEpisodeIDs = storage.DecodeStringSlice([]byte(sources.String))
	item.Tags = storage.DecodeStringSlice([]byte(tags.String))
	item.Metadata = storage.DecodeJSONMap([]byte(md.String))
	item.Confidence = types.Clamp01(item.Confidence)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		item.LastAccessedAt = &t
	}

	return &item, nil
}
