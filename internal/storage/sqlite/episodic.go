package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

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
		emotionalJSON = string(storage.EncodeJSON(ep.Emotional))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, agent_id, session_id, timestamp, action_type,
			action_details, context_state, outcome, emotional_state,
			importance, tags, consolidated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			timestamp = excluded.timestamp,
			action_type = excluded.action_type,
			action_details = excluded.action_details,
			context_state = excluded.context_state,
			outcome = excluded.outcome,
			emotional_state = excluded.emotional_state,
			importance = excluded.importance,
			tags = excluded.tags,
			consolidated = excluded.consolidated,
			updated_at = excluded.updated_at
	`, ep.ID, s.agentID, ep.SessionID, ep.Timestamp, ep.ActionType,
		string(storage.EncodeJSON(ep.ActionDetails)), string(storage.EncodeJSON(ep.ContextState)),
		string(storage.EncodeJSON(ep.Outcome)), emotionalJSON,
		ep.Importance, string(storage.EncodeJSON(ep.Tags)), ep.Consolidated,
		ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to store episode: %w", err)
	}

	return ep.ID, nil
}

// GetEpisode retrieves an episode by ID.
func (s *Store) GetEpisode(ctx context.Context, id string) (*types.Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE id = ? AND agent_id = ?
	`, id, s.agentID)

	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get episode: %w", err)
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
		WHERE agent_id = ? AND consolidated = 0
		ORDER BY importance DESC, timestamp DESC
		LIMIT ?
	`, s.agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query unconsolidated episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// MarkConsolidated flags the given episodes as consolidated.
func (s *Store) MarkConsolidated(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+2)
	args = append(args, time.Now().UTC(), s.agentID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE episodes
		SET consolidated = 1, updated_at = ?
		WHERE agent_id = ? AND id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to mark episodes consolidated: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// UpdateEpisode applies the non-nil fields of upd.
func (s *Store) UpdateEpisode(ctx context.Context, id string, upd storage.EpisodeUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if upd.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, types.Clamp01(*upd.Importance))
	}
	if upd.Consolidated != nil {
		sets = append(sets, "consolidated = ?")
		args = append(args, *upd.Consolidated)
	}
	if upd.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, string(storage.EncodeJSON(upd.Tags)))
	}

	args = append(args, id, s.agentID)
	query := fmt.Sprintf(`UPDATE episodes SET %s WHERE id = ? AND agent_id = ?`,
		strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update episode: %w", err)
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

// GetRecent returns episodes matching q, newest first.
func (s *Store) GetRecent(ctx context.Context, q storage.RecentQuery) ([]*types.Episode, error) {
	q.Normalize()

	conds := []string{"agent_id = ?"}
	args := []any{s.agentID}

	if q.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.HoursBack > 0 {
		conds = append(conds, "timestamp >= ?")
		args = append(args, time.Now().UTC().Add(-time.Duration(q.HoursBack)*time.Hour))
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM episodes
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT ?
	`, episodeColumns, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query recent episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// GetRange returns episodes with timestamps in [start, end), oldest first.
func (s *Store) GetRange(ctx context.Context, start, end time.Time) ([]*types.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE agent_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, s.agentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query episode range: %w", err)
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
		WHERE agent_id = ? AND consolidated = 1
			AND timestamp < ? AND importance < ?
		ORDER BY importance ASC, timestamp ASC
		LIMIT ?
	`, s.agentID, before, maxImportance, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query prune candidates: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// DeleteEpisode permanently removes an episode.
func (s *Store) DeleteEpisode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM episodes WHERE id = ? AND agent_id = ?
	`, id, s.agentID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete episode: %w", err)
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

// EpisodeStats returns aggregate episode counts for the trigger.
func (s *Store) EpisodeStats(ctx context.Context) (*storage.EpisodeStats, error) {
	var st storage.EpisodeStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN consolidated = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN consolidated = 0 AND importance > 0.8 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(importance), 0)
		FROM episodes
		WHERE agent_id = ?
	`, s.agentID).Scan(&st.Total, &st.Unconsolidated, &st.HighImportanceUnconsolidated, &st.AvgImportance)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query episode stats: %w", err)
	}
	return &st, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEpisode reads one episode row, normalizing JSON payloads at the
// boundary. Malformed optional fields degrade to empty defaults.
func scanEpisode(r rowScanner) (*types.Episode, error) {
	var (
		ep              types.Episode
		details, cstate sql.NullString
		outcome, tags   sql.NullString
		emotional       sql.NullString
	)

	err := r.Scan(&ep.ID, &ep.SessionID, &ep.Timestamp, &ep.ActionType,
		&details, &cstate, &outcome, &emotional,
		&ep.Importance, &tags, &ep.Consolidated,
		&ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ep.ActionDetails = storage.DecodeJSONMap([]byte(details.String))
	ep.ContextState = storage.DecodeJSONMap([]byte(cstate.String))
	ep.Outcome = storage.DecodeJSONMap([]byte(outcome.String))
	if emotional.Valid {
		ep.Emotional = storage.DecodeEmotionalState([]byte(emotional.String))
	}
	ep.Tags = storage.DecodeStringSlice([]byte(tags.String))
	ep.Importance = types.Clamp01(ep.Importance)

	return &ep, nil
}

func scanEpisodes(rows *sql.Rows) ([]*types.Episode, error) {
	var out []*types.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan episode: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: episode row iteration failed: %w", err)
	}
	return out, nil
}
