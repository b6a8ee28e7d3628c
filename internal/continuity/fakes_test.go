package continuity

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// fakeEpisodic serves canned episode lists and records writes.
type fakeEpisodic struct {
	recent     []*types.Episode
	inRange    []*types.Episode
	stored     []*types.Episode
	recentErr  error
	rangeErr   error
	storeErr   error
	recentSeen []storage.RecentQuery
}

func (f *fakeEpisodic) StoreEpisode(_ context.Context, ep *types.Episode) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	if ep.ID == "" {
		ep.ID = fmt.Sprintf("ep-%d", len(f.stored)+1)
	}
	f.stored = append(f.stored, ep)
	return ep.ID, nil
}

func (f *fakeEpisodic) GetEpisode(context.Context, string) (*types.Episode, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeEpisodic) GetUnconsolidated(context.Context, int) ([]*types.Episode, error) {
	return nil, nil
}

func (f *fakeEpisodic) MarkConsolidated(context.Context, []string) (int, error) { return 0, nil }

func (f *fakeEpisodic) UpdateEpisode(context.Context, string, storage.EpisodeUpdate) error {
	return nil
}

func (f *fakeEpisodic) GetRecent(_ context.Context, q storage.RecentQuery) ([]*types.Episode, error) {
	f.recentSeen = append(f.recentSeen, q)
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeEpisodic) GetRange(context.Context, time.Time, time.Time) ([]*types.Episode, error) {
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	return f.inRange, nil
}

func (f *fakeEpisodic) PruneCandidates(context.Context, time.Time, float64, int) ([]*types.Episode, error) {
	return nil, nil
}

func (f *fakeEpisodic) DeleteEpisode(context.Context, string) error { return nil }

func (f *fakeEpisodic) EpisodeStats(context.Context) (*storage.EpisodeStats, error) {
	return &storage.EpisodeStats{}, nil
}

func (f *fakeEpisodic) Ping(context.Context) error { return nil }
func (f *fakeEpisodic) Close() error               { return nil }

// fakeSemantic serves scripted hits and knowledge stats. failSearches
// makes the first N Search calls fail before hits are served.
type fakeSemantic struct {
	hits         []storage.SemanticHit
	total        int
	searchErr    error
	failSearches int
	statsErr     error
	queries      []string
}

func (f *fakeSemantic) StoreKnowledge(_ context.Context, item *types.KnowledgeItem) (string, error) {
	return item.ID, nil
}

func (f *fakeSemantic) GetKnowledge(context.Context, string) (*types.KnowledgeItem, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeSemantic) Search(_ context.Context, query string, limit int) ([]storage.SemanticHit, error) {
	f.queries = append(f.queries, query)
	if f.failSearches > 0 {
		f.failSearches--
		return nil, storage.ErrUnavailable
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := f.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeSemantic) DeleteKnowledge(context.Context, string) error { return nil }
func (f *fakeSemantic) TouchKnowledge(context.Context, string) error  { return nil }

func (f *fakeSemantic) KnowledgeStats(context.Context) (*storage.KnowledgeStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &storage.KnowledgeStats{TotalItems: f.total}, nil
}

func (f *fakeSemantic) Ping(context.Context) error { return nil }
func (f *fakeSemantic) Close() error               { return nil }

// addedItem records one AddContext call.
type addedItem struct {
	data      map[string]any
	tags      []string
	sessionID string
}

// fakeWorking serves canned context items and records additions.
type fakeWorking struct {
	items      []storage.ContextItem
	stats      *storage.ContextStats
	added      []addedItem
	currentErr error
	statsErr   error
	addErr     error
}

func (f *fakeWorking) AddContext(_ context.Context, data map[string]any, tags []string, sessionID string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, addedItem{data: data, tags: tags, sessionID: sessionID})
	return fmt.Sprintf("ctx-%d", len(f.added)), nil
}

func (f *fakeWorking) CurrentContext(_ context.Context, limit int) ([]storage.ContextItem, error) {
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	items := f.items
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeWorking) ContextByTags(context.Context, []string, int) ([]storage.ContextItem, error) {
	return nil, nil
}

func (f *fakeWorking) Stats(context.Context) (*storage.ContextStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &storage.ContextStats{TotalItems: len(f.items)}, nil
}

func (f *fakeWorking) ClearSession(context.Context, string) (int, error) { return 0, nil }
func (f *fakeWorking) Ping(context.Context) error                        { return nil }
func (f *fakeWorking) Close() error                                      { return nil }

// fakeStates holds saved snapshots.
type fakeStates struct {
	states    []*types.ConsciousnessState
	saveErr   error
	latestErr error
}

func (f *fakeStates) SaveState(_ context.Context, st *types.ConsciousnessState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.states = append(f.states, st)
	return nil
}

func (f *fakeStates) LatestState(context.Context) (*types.ConsciousnessState, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if len(f.states) == 0 {
		return nil, storage.ErrNotFound
	}
	return f.states[len(f.states)-1], nil
}

func (f *fakeStates) RecordRun(context.Context, storage.RunRecord) error { return nil }
func (f *fakeStates) Ping(context.Context) error                         { return nil }
func (f *fakeStates) Close() error                                       { return nil }
