// Package types defines the core domain types for the Continuum memory
// system: episodes, knowledge items, behavioral patterns, consciousness
// states and gap bridges.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Valence labels for emotional states.
const (
	ValencePositive = "positive"
	ValenceNegative = "negative"
	ValenceNeutral  = "neutral"
)

// EmotionalState describes the emotional coloring of an episode.
// All fields are optional; a zero EmotionalState means "no emotional data".
type EmotionalState struct {
	// Emotion is a free-form label such as "curious", "frustrated", "satisfied".
	Emotion string `json:"emotion,omitempty" yaml:"emotion,omitempty"`

	// Valence is one of positive, negative or neutral.
	Valence string `json:"valence,omitempty" yaml:"valence,omitempty"`

	// Intensity is the strength of the emotion in [0.0, 1.0].
	Intensity float64 `json:"intensity,omitempty" yaml:"intensity,omitempty"`
}

// IsZero reports whether the state carries no emotional data at all.
func (e EmotionalState) IsZero() bool {
	return e.Emotion == "" && e.Valence == "" && e.Intensity == 0
}

// Normalize clamps Intensity into [0, 1] and lowercases the labels.
func (e *EmotionalState) Normalize() {
	e.Emotion = strings.ToLower(strings.TrimSpace(e.Emotion))
	e.Valence = strings.ToLower(strings.TrimSpace(e.Valence))
	e.Intensity = Clamp01(e.Intensity)
}

// Episode is a single discrete experience unit: one action taken by the
// agent together with the context it happened in and how it turned out.
type Episode struct {
	// ID is a UUID assigned by the store on first write.
	ID string `json:"id"`

	// Timestamp is when the experience happened (not when it was stored).
	Timestamp time.Time `json:"timestamp"`

	// SessionID groups episodes recorded within one process lifetime.
	SessionID string `json:"session_id"`

	// ActionType categorizes the action, e.g. "deploy", "learning",
	// "error_resolution". Required.
	ActionType string `json:"action_type"`

	// ActionDetails holds structured details about the action itself.
	ActionDetails map[string]any `json:"action_details,omitempty"`

	// ContextState captures the surrounding situation at action time.
	ContextState map[string]any `json:"context_state,omitempty"`

	// Outcome describes the result. The optional "success" boolean key is
	// interpreted by the consolidation engine.
	Outcome map[string]any `json:"outcome,omitempty"`

	// Emotional is the optional emotional coloring of the episode.
	Emotional *EmotionalState `json:"emotional_state,omitempty"`

	// Importance is a significance score in [0.0, 1.0].
	Importance float64 `json:"importance"`

	// Tags are free-form labels used for focus detection and retrieval.
	Tags []string `json:"tags,omitempty"`

	// Consolidated is set once the episode has been through a
	// consolidation run.
	Consolidated bool `json:"consolidated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize fills defaults and clamps out-of-range values in place.
// It never rejects an episode: malformed optional fields degrade to their
// empty defaults.
func (e *Episode) Normalize(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.ActionDetails == nil {
		e.ActionDetails = map[string]any{}
	}
	if e.ContextState == nil {
		e.ContextState = map[string]any{}
	}
	if e.Outcome == nil {
		e.Outcome = map[string]any{}
	}
	if e.Emotional != nil {
		e.Emotional.Normalize()
		if e.Emotional.IsZero() {
			e.Emotional = nil
		}
	}
	e.Importance = Clamp01(e.Importance)
}

// Validate reports whether the episode satisfies the minimal invariants
// required for storage.
func (e *Episode) Validate() error {
	if strings.TrimSpace(e.ActionType) == "" {
		return fmt.Errorf("episode action_type is required")
	}
	if e.Importance < 0 || e.Importance > 1 {
		return fmt.Errorf("episode importance %.3f out of range [0,1]", e.Importance)
	}
	return nil
}

// Succeeded reports whether the episode's outcome carries success=true.
// A missing or non-boolean success key counts as failure.
func (e *Episode) Succeeded() bool {
	v, ok := e.Outcome["success"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// HasTag reports whether tag appears in the episode's tag list.
func (e *Episode) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clamp01 clamps v into [0.0, 1.0].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
