package engine

import (
	"context"
	"fmt"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// resolutionOp is the outcome of reconciling a new pattern against
// existing knowledge.
type resolutionOp int

const (
	// opAdd: nothing similar exists; store as new knowledge.
	opAdd resolutionOp = iota
	// opUpdate: the new pattern supersedes a related item in place.
	opUpdate
	// opDelete: the new pattern contradicts a related item; remove it
	// and store the replacement.
	opDelete
	// opNoop: the related item already covers this pattern.
	opNoop
)

// updateConfidenceMargin is the factor by which new confidence must
// exceed old confidence to justify an in-place update.
const updateConfidenceMargin = 1.1

// contradictionFloor is the confidence both sides need before an
// opposite-valence pair counts as a contradiction rather than noise.
const contradictionFloor = 0.8

// reconcile decides what to do with a freshly extracted pattern given
// what the semantic store already holds. The related item, when any, is
// the nearest neighbor of the same pattern kind at or above the
// similarity threshold.
func (e *Engine) reconcile(ctx context.Context, p types.Pattern) (resolutionOp, *storage.SemanticHit, error) {
	hits, err := e.semantic.Search(ctx, p.Description, 5)
	if err != nil {
		return opNoop, nil, fmt.Errorf("similarity search failed: %w", err)
	}

	related := findRelated(hits, p, e.cfg.SimilarityThreshold)
	if related == nil {
		return opAdd, nil, nil
	}

	if contradicts(p, *related) {
		return opDelete, related, nil
	}

	if p.Confidence > related.Confidence*updateConfidenceMargin {
		return opUpdate, related, nil
	}
	if p.EvidenceCount > evidenceCount(*related) {
		return opUpdate, related, nil
	}

	return opNoop, related, nil
}

// findRelated picks the best hit of the same pattern kind at or above
// the similarity threshold. Hits arrive best-first.
func findRelated(hits []storage.SemanticHit, p types.Pattern, threshold float64) *storage.SemanticHit {
	for i := range hits {
		h := &hits[i]
		if h.Similarity < threshold {
			continue
		}
		if patternKind(*h) != string(p.Kind) {
			continue
		}
		return h
	}
	return nil
}

// contradicts reports whether the new pattern and the existing item make
// opposite high-confidence valence claims. Low-confidence disagreement
// is not contradiction; it resolves through the update margin instead.
func contradicts(p types.Pattern, h storage.SemanticHit) bool {
	if p.Confidence <= contradictionFloor || h.Confidence <= contradictionFloor {
		return false
	}

	newPositive, newNegative := p.HasTag(types.ValencePositive), p.HasTag(types.ValenceNegative)
	oldPositive, oldNegative := h.HasTag(types.ValencePositive), h.HasTag(types.ValenceNegative)

	return (newPositive && oldNegative) || (newNegative && oldPositive)
}

// patternKind reads the pattern kind recorded in a hit's metadata.
func patternKind(h storage.SemanticHit) string {
	if k, ok := h.Metadata["pattern_kind"].(string); ok {
		return k
	}
	return ""
}

// evidenceCount reads the evidence count recorded in a hit's metadata.
// JSON round-trips turn ints into float64.
func evidenceCount(h storage.SemanticHit) int {
	switch v := h.Metadata["evidence_count"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
