package types

import "time"

// GapType classifies how long the agent was offline between sessions.
type GapType string

// Gap classifications.
const (
	GapShort    GapType = "short"    // up to 30 minutes
	GapMedium   GapType = "medium"   // up to 4 hours
	GapLong     GapType = "long"     // up to 24 hours
	GapExtended GapType = "extended" // beyond 24 hours
)

// GapBridge is the transient structure built during restoration that
// spans a downtime gap: what happened around it, which historical
// contexts resemble the saved one, and how the emotional state should
// carry across. It is never persisted.
type GapBridge struct {
	GapType     GapType       `json:"gap_type"`
	GapDuration time.Duration `json:"gap_duration"`

	// TimelineEvents are episodes recorded inside the gap window.
	TimelineEvents []TimelineEvent `json:"timeline_events,omitempty"`

	// ContextItems are historically similar contexts from semantic memory.
	ContextItems []HistoricalContext `json:"context_items,omitempty"`

	// RelevantPatterns are behavioral patterns applicable after this
	// kind of gap.
	RelevantPatterns []AppliedPattern `json:"relevant_patterns,omitempty"`

	// EmotionalTransition models how the saved emotional state should
	// evolve across the gap.
	EmotionalTransition EmotionalTransition `json:"emotional_transition"`

	// Predictions are contextual expectations, produced for medium and
	// longer gaps only.
	Predictions []ContextualPrediction `json:"predictions,omitempty"`

	// QualityScore rates the bridge's completeness in [0.0, 1.0].
	QualityScore float64 `json:"quality_score"`
}

// TimelineEvent is one episode that occurred inside the gap window.
type TimelineEvent struct {
	EpisodeID  string    `json:"episode_id"`
	ActionType string    `json:"action_type"`
	Timestamp  time.Time `json:"timestamp"`
	Importance float64   `json:"importance"`
}

// HistoricalContext is a semantically similar context from the past.
type HistoricalContext struct {
	KnowledgeID string  `json:"knowledge_id"`
	Content     string  `json:"content"`
	Similarity  float64 `json:"similarity"`
	Relevance   float64 `json:"relevance"`
}

// AppliedPattern is a learned pattern selected for application after a gap.
type AppliedPattern struct {
	PatternID          string  `json:"pattern_id"`
	Description        string  `json:"description"`
	Confidence         float64 `json:"confidence"`
	ApplicationContext string  `json:"application_context,omitempty"`
}

// EmotionalTransition describes how the emotional state carries across a
// downtime gap. Confidence decays with gap length.
type EmotionalTransition struct {
	FromEmotion   string  `json:"from_emotion,omitempty"`
	ToEmotion     string  `json:"to_emotion,omitempty"`
	FromValence   string  `json:"from_valence,omitempty"`
	ToValence     string  `json:"to_valence,omitempty"`
	FromIntensity float64 `json:"from_intensity"`
	ToIntensity   float64 `json:"to_intensity"`
	Confidence    float64 `json:"confidence"`
}

// ContextualPrediction is an expectation about what the agent will need
// after restoration.
type ContextualPrediction struct {
	Type            string   `json:"type"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	ExpectedActions []string `json:"expected_actions,omitempty"`
}
