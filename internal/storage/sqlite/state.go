package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// SaveState appends a consciousness-state snapshot.
func (s *Store) SaveState(ctx context.Context, state *types.ConsciousnessState) error {
	if state == nil {
		return storage.ErrInvalidInput
	}

	if state.StateID == "" {
		state.StateID = uuid.NewString()
	}
	if state.Timestamp.IsZero() {
		state.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal consciousness state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consciousness_states (state_id, agent_id, session_id,
			timestamp, state_data, confidence_score, memory_integrity,
			context_completeness)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, state.StateID, s.agentID, state.SessionID, state.Timestamp, string(data),
		state.ConfidenceScore, state.MemoryIntegrity, state.ContextCompleteness)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save consciousness state: %w", err)
	}
	return nil
}

// LatestState returns the most recent snapshot by timestamp.
func (s *Store) LatestState(ctx context.Context) (*types.ConsciousnessState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT state_data
		FROM consciousness_states
		WHERE agent_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, s.agentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query latest state: %w", err)
	}

	var state types.ConsciousnessState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("sqlite: failed to unmarshal consciousness state: %w", err)
	}
	return &state, nil
}

// RecordRun appends one consolidation-run log row.
func (s *Store) RecordRun(ctx context.Context, rec storage.RunRecord) error {
	if rec.RunType == "" {
		rec.RunType = "manual"
	}
	if rec.Status == "" {
		rec.Status = "completed"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consolidation_log (agent_id, run_type, episodes_processed,
			patterns_extracted, knowledge_created, duration_seconds, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.agentID, rec.RunType, rec.EpisodesProcessed, rec.PatternsExtracted,
		rec.KnowledgeCreated, rec.Duration.Seconds(), rec.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to record consolidation run: %w", err)
	}
	return nil
}
