package types

import "time"

// ConsciousnessState is a point-in-time snapshot of the agent's working
// context, taken before shutdown so that a later process can restore
// continuity. States are append-only; restoration reads the latest by
// timestamp.
type ConsciousnessState struct {
	StateID   string    `json:"state_id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	// ActiveContext summarizes the working-context items live at capture.
	ActiveContext ActiveContextSummary `json:"active_context"`

	// WorkingMemory summarizes the working-context store itself.
	WorkingMemory WorkingMemorySummary `json:"working_memory"`

	// CurrentFocus is the top tags by frequency across active items.
	CurrentFocus []string `json:"current_focus,omitempty"`

	// Emotional aggregates the recent emotional trajectory.
	Emotional EmotionalAggregate `json:"emotional_state"`

	// RecentActions are the most significant recent episodes.
	RecentActions []RecentAction `json:"recent_actions,omitempty"`

	// PendingTasks are unfinished items detected in the active context.
	PendingTasks []PendingTask `json:"pending_tasks,omitempty"`

	// LearnedPatterns are recently consolidated behavioral patterns.
	LearnedPatterns []LearnedPattern `json:"learned_patterns,omitempty"`

	// Derived quality scores, all in [0.0, 1.0].
	ConfidenceScore        float64 `json:"confidence_score"`
	MemoryIntegrity        float64 `json:"memory_integrity"`
	ContextCompleteness    float64 `json:"context_completeness"`
	EmotionalCoherence     float64 `json:"emotional_coherence"`
	ExperientialContinuity float64 `json:"experiential_continuity"`
}

// ActiveContextSummary summarizes the live working-context items.
type ActiveContextSummary struct {
	TotalItems   int                  `json:"total_items"`
	KeyEntities  []string             `json:"key_entities,omitempty"`
	ActiveTopics []string             `json:"active_topics,omitempty"`
	Items        []ContextSummaryItem `json:"items,omitempty"`
}

// ContextSummaryItem is a one-line summary of a single context item.
type ContextSummaryItem struct {
	ActionType string    `json:"action_type"`
	Timestamp  time.Time `json:"timestamp"`
	Importance float64   `json:"importance"`
	Summary    string    `json:"summary,omitempty"`
}

// WorkingMemorySummary holds store-level statistics for working memory.
type WorkingMemorySummary struct {
	TotalItems int        `json:"total_items"`
	Oldest     *time.Time `json:"oldest,omitempty"`
	Newest     *time.Time `json:"newest,omitempty"`
	TopTags    []string   `json:"top_tags,omitempty"`
}

// EmotionalAggregate is the dominant recent emotional state with the
// trajectory that produced it.
type EmotionalAggregate struct {
	DominantEmotion string           `json:"dominant_emotion,omitempty"`
	Valence         string           `json:"valence,omitempty"`
	Intensity       float64          `json:"intensity"`
	Confidence      float64          `json:"confidence"`
	Recent          []EmotionalState `json:"recent,omitempty"`
}

// RecentAction is a compact reference to a recent episode.
type RecentAction struct {
	EpisodeID  string    `json:"episode_id"`
	ActionType string    `json:"action_type"`
	Timestamp  time.Time `json:"timestamp"`
	Importance float64   `json:"importance"`
	Success    bool      `json:"success"`
	Summary    string    `json:"summary,omitempty"`
}

// PendingTask is an unfinished piece of work detected in the active
// context at save time and reactivated on restore.
type PendingTask struct {
	TaskID         string   `json:"task_id"`
	Description    string   `json:"description"`
	Context        string   `json:"context,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	IdentifiedFrom string   `json:"identified_from,omitempty"`
}

// LearnedPattern references a consolidated behavioral pattern relevant
// to the saved state.
type LearnedPattern struct {
	PatternID   string         `json:"pattern_id"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
