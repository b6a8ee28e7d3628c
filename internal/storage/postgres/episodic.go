package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

const episodeColumns = `id, session_id, timestamp, action_type, action_details,
	context_state, outcome, emotional_state, importance, tags, consolidated,
	created_at, updated_at`

// StoreEpisode creates or updates an episode (upsert semantics).
func (s *Store) StoreEpisode(ctx context.Context, ep *types.Episode) (string, error) {
	if ep == nil {
		return "", storage.ErrInvalidInput
	}

	now := time.Now().UTC()
	ep.Normalize(now)
	if err := ep.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	ep.UpdatedAt = now

	var emotionalJSON any
	if ep.Emotional != nil {
		emotionalJSON = storage.EncodeJSON(ep.Emotional)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, agent_id, session_id, timestamp, action_type,
			action_details, context_state, outcome, emotional_state,
			importance, tags, consolidated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			timestamp = EXCLUDED.timestamp,
			action_type = EXCLUDED.action_type,
			action_details = EXCLUDED.action_details,
			context_state = EXCLUDED.context_state,
			outcome = EXCLUDED.outcome,
			emotional_state = EXCLUDED.emotional_state,
			importance = EXCLUDED.importance,
			tags = EXCLUDED.tags,
			consolidated = EXCLUDED.consolidated,
			updated_at = EXCLUDED.updated_at
	`, ep.ID, s.agentID, ep.SessionID, ep.Timestamp, ep.ActionType,
		storage.EncodeJSON(ep.ActionDetails), storage.EncodeJSON(ep.ContextState),
		storage.EncodeJSON(ep.Outcome), emotionalJSON,
		ep.Importance, storage.EncodeJSON(ep.Tags), ep.Consolidated,
		ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("postgres: failed to store episode: %w", err)
	}

	return ep.ID, nil
}

// GetEpisode retrieves an episode by ID.
func (s *Store) GetEpisode(ctx context.Context, id string) (*types.Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE id = $1 AND agent_id = $2
	`, id, s.agentID)

	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get episode: %w", err)
	}
	return ep, nil
}

// GetUnconsolidated returns up to limit unconsolidated episodes ordered
// by importance descending then recency descending.
func (s *Store) GetUnconsolidated(ctx context.Context, limit int) ([]*types.Episode, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE agent_id = $1 AND consolidated = FALSE
		ORDER BY importance DESC, timestamp DESC
		LIMIT $2
	`, s.agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query unconsolidated episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// MarkConsolidated flags the given episodes as consolidated.
func (s *Store) MarkConsolidated(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes
		SET consolidated = TRUE, updated_at = NOW()
		WHERE agent_id = $1 AND id = ANY($2)
	`, s.agentID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to mark episodes consolidated: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// UpdateEpisode applies the non-nil fields of upd.
func (s *Store) UpdateEpisode(ctx context.Context, id string, upd storage.EpisodeUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id, s.agentID}

	if upd.Importance != nil {
		args = append(args, types.Clamp01(*upd.Importance))
		sets = append(sets, fmt.Sprintf("importance = $%d", len(args)))
	}
	if upd.Consolidated != nil {
		args = append(args, *upd.Consolidated)
		sets = append(sets, fmt.Sprintf("consolidated = $%d", len(args)))
	}
	if upd.Tags != nil {
		args = append(args, storage.EncodeJSON(upd.Tags))
		sets = append(sets, fmt.Sprintf("tags = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		UPDATE episodes SET %s
		WHERE id = $1 AND agent_id = $2
	`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: failed to update episode: %w", err)
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

// GetRecent returns episodes matching q, newest first.
func (s *Store) GetRecent(ctx context.Context, q storage.RecentQuery) ([]*types.Episode, error) {
	q.Normalize()

	conds := []string{"agent_id = $1"}
	args := []any{s.agentID}

	if q.SessionID != "" {
		args = append(args, q.SessionID)
		conds = append(conds, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if q.HoursBack > 0 {
		args = append(args, time.Now().UTC().Add(-time.Duration(q.HoursBack)*time.Hour))
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM episodes
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT $%d
	`, episodeColumns, strings.Join(conds, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query recent episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// GetRange returns episodes with timestamps in [start, end), oldest first.
func (s *Store) GetRange(ctx context.Context, start, end time.Time) ([]*types.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE agent_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`, s.agentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query episode range: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// PruneCandidates returns consolidated, low-importance episodes older
// than before.
func (s *Store) PruneCandidates(ctx context.Context, before time.Time, maxImportance float64, limit int) ([]*types.Episode, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE agent_id = $1 AND consolidated = TRUE
			AND timestamp < $2 AND importance < $3
		ORDER BY importance ASC, timestamp ASC
		LIMIT $4
	`, s.agentID, before, maxImportance, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query prune candidates: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// DeleteEpisode permanently removes an episode.
func (s *Store) DeleteEpisode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM episodes WHERE id = $1 AND agent_id = $2
	`, id, s.agentID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete episode: %w", err)
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

// EpisodeStats returns aggregate episode counts for the trigger.
func (s *Store) EpisodeStats(ctx context.Context) (*storage.EpisodeStats, error) {
	var st storage.EpisodeStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT consolidated),
			COUNT(*) FILTER (WHERE NOT consolidated AND importance > 0.8),
			COALESCE(AVG(importance), 0)
		FROM episodes
		WHERE agent_id = $1
	`, s.agentID).Scan(&st.Total, &st.Unconsolidated, &st.HighImportanceUnconsolidated, &st.AvgImportance)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query episode stats: %w", err)
	}
	return &st, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEpisode reads one episode row, normalizing JSONB payloads at the
// boundary. Malformed optional fields degrade to empty defaults.
func scanEpisode(r rowScanner) (*types.Episode, error) {
	var (
		ep              types.Episode
		details, cstate []byte
		outcome, tags   []byte
		emotional       []byte
	)

	err := r.Scan(&ep.ID, &ep.SessionID, &ep.Timestamp, &ep.ActionType,
		&details, &cstate, &outcome, &emotional,
		&ep.Importance, &tags, &ep.Consolidated,
		&ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ep.ActionDetails = storage.DecodeJSONMap(details)
	ep.ContextState = storage.DecodeJSONMap(cstate)
	ep.Outcome = storage.DecodeJSONMap(outcome)
	ep.Emotional = storage.DecodeEmotionalState(emotional)
	ep.Tags = storage.DecodeStringSlice(tags)
	ep.Importance = types.Clamp01(ep.Importance)

	return &ep, nil
}

func scanEpisodes(rows *sql.Rows) ([]*types.Episode, error) {
	var out []*types.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan episode: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: episode row iteration failed: %w", err)
	}
	return out, nil
}
