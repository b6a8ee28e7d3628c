package continuity

import (
	"time"

	"github.com/scrypster/continuum/internal/config"
	"github.com/scrypster/continuum/pkg/types"
)

// ClassifyGap maps a downtime duration onto a gap type using the
// configured boundaries. Negative durations (clock skew) classify as
// short.
func ClassifyGap(gap time.Duration, cfg config.ContinuityConfig) types.GapType {
	switch {
	case gap <= cfg.ShortGap:
		return types.GapShort
	case gap <= cfg.MediumGap:
		return types.GapMedium
	case gap <= cfg.LongGap:
		return types.GapLong
	default:
		return types.GapExtended
	}
}
