package storage

import (
	"time"
)

// EpisodeUpdate describes a partial episode update. Nil fields are left
// unchanged.
type EpisodeUpdate struct {
	// Importance replaces the importance score when non-nil.
	Importance *float64

	// Consolidated replaces the consolidated flag when non-nil.
	Consolidated *bool

	// Tags replaces the tag list when non-nil.
	Tags []string
}

// RecentQuery filters GetRecent results.
type RecentQuery struct {
	// Limit caps the number of returned episodes. Zero means the
	// implementation default (50).
	Limit int

	// SessionID restricts results to one session when non-empty.
	SessionID string

	// HoursBack restricts results to the last N hours when positive.
	HoursBack int
}

// Normalize fills query defaults.
func (q *RecentQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
}

// EpisodeStats holds aggregate episode counts. The trigger reads the
// unconsolidated counters to decide whether a consolidation run is due.
type EpisodeStats struct {
	Total                        int
	Unconsolidated               int
	HighImportanceUnconsolidated int
	AvgImportance                float64
}

// KnowledgeStats holds aggregate knowledge counts.
type KnowledgeStats struct {
	TotalItems int
	ByType     map[string]int
}

// SemanticHit is one similarity-search result. Confidence, tags and
// metadata are carried along so the consolidation engine can reconcile
// new patterns against the hit without a second read.
type SemanticHit struct {
	ID         string
	Content    string
	Similarity float64
	Confidence float64
	Tags       []string
	Metadata   map[string]any
}

// HasTag reports whether tag appears in the hit's tag list.
func (h SemanticHit) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ContextItem is one entry in the working-context window.
type ContextItem struct {
	Key        string
	Timestamp  time.Time
	SessionID  string
	Data       map[string]any
	Tags       []string
	Importance float64
}

// ContextStats summarizes the live working-context window.
type ContextStats struct {
	TotalItems int
	Oldest     *time.Time
	Newest     *time.Time
	TopTags    []string
}

// RunRecord is one row of the consolidation run log.
type RunRecord struct {
	// RunType distinguishes scheduled, triggered and manual runs.
	RunType string

	EpisodesProcessed int
	PatternsExtracted int
	KnowledgeCreated  int

	// Duration is the wall-clock run time.
	Duration time.Duration

	// Status is "completed" when every step succeeded, "partial" when
	// step-level errors were absorbed.
	Status string
}
