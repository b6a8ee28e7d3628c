package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// fakeEpisodic is an in-memory EpisodicStore for engine tests.
type fakeEpisodic struct {
	mu       sync.Mutex
	episodes map[string]*types.Episode
	nextID   int

	fetchErr   error
	markErr    error
	updateErr  error
	statsErr   error
	deleteErr  error
	markCalls  [][]string
	statsCalls int
}

func newFakeEpisodic() *fakeEpisodic {
	return &fakeEpisodic{episodes: map[string]*types.Episode{}}
}

func (f *fakeEpisodic) add(ep *types.Episode) *types.Episode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ep.ID == "" {
		f.nextID++
		ep.ID = fmt.Sprintf("ep-%d", f.nextID)
	}
	f.episodes[ep.ID] = ep
	return ep
}

func (f *fakeEpisodic) StoreEpisode(_ context.Context, ep *types.Episode) (string, error) {
	return f.add(ep).ID, nil
}

func (f *fakeEpisodic) GetEpisode(_ context.Context, id string) (*types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return ep, nil
}

func (f *fakeEpisodic) GetUnconsolidated(_ context.Context, limit int) ([]*types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []*types.Episode
	for _, ep := range f.episodes {
		if !ep.Consolidated {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEpisodic) MarkConsolidated(_ context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, ids)
	if f.markErr != nil {
		return 0, f.markErr
	}
	n := 0
	for _, id := range ids {
		if ep, ok := f.episodes[id]; ok && !ep.Consolidated {
			ep.Consolidated = true
			n++
		}
	}
	return n, nil
}

func (f *fakeEpisodic) UpdateEpisode(_ context.Context, id string, upd storage.EpisodeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	ep, ok := f.episodes[id]
	if !ok {
		return storage.ErrNotFound
	}
	if upd.Importance != nil {
		ep.Importance = *upd.Importance
	}
	if upd.Consolidated != nil {
		ep.Consolidated = *upd.Consolidated
	}
	if upd.Tags != nil {
		ep.Tags = upd.Tags
	}
	return nil
}

func (f *fakeEpisodic) GetRecent(_ context.Context, q storage.RecentQuery) ([]*types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q.Normalize()
	cutoff := time.Time{}
	if q.HoursBack > 0 {
		cutoff = time.Now().Add(-time.Duration(q.HoursBack) * time.Hour)
	}
	var out []*types.Episode
	for _, ep := range f.episodes {
		if q.SessionID != "" && ep.SessionID != q.SessionID {
			continue
		}
		if !cutoff.IsZero() && ep.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeEpisodic) GetRange(_ context.Context, start, end time.Time) ([]*types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Episode
	for _, ep := range f.episodes {
		if !ep.Timestamp.Before(start) && ep.Timestamp.Before(end) {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeEpisodic) PruneCandidates(_ context.Context, before time.Time, maxImportance float64, limit int) ([]*types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Episode
	for _, ep := range f.episodes {
		if ep.Consolidated && ep.Timestamp.Before(before) && ep.Importance < maxImportance {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance < out[j].Importance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEpisodic) DeleteEpisode(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.episodes[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.episodes, id)
	return nil
}

func (f *fakeEpisodic) EpisodeStats(_ context.Context) (*storage.EpisodeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	st := &storage.EpisodeStats{}
	for _, ep := range f.episodes {
		st.Total++
		if !ep.Consolidated {
			st.Unconsolidated++
			if ep.Importance > 0.8 {
				st.HighImportanceUnconsolidated++
			}
		}
	}
	return st, nil
}

func (f *fakeEpisodic) Ping(context.Context) error { return nil }
func (f *fakeEpisodic) Close() error               { return nil }

// fakeSemantic is an in-memory SemanticStore with scripted search hits.
type fakeSemantic struct {
	mu      sync.Mutex
	items   map[string]*types.KnowledgeItem
	hits    []storage.SemanticHit
	nextID  int
	stored  []*types.KnowledgeItem
	deleted []string
	touched []string

	searchErr error
	storeErr  error
}

func newFakeSemantic() *fakeSemantic {
	return &fakeSemantic{items: map[string]*types.KnowledgeItem{}}
}

func (f *fakeSemantic) StoreKnowledge(_ context.Context, item *types.KnowledgeItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return "", f.storeErr
	}
	if item.ID == "" {
		f.nextID++
		item.ID = fmt.Sprintf("k-%d", f.nextID)
	}
	f.items[item.ID] = item
	f.stored = append(f.stored, item)
	return item.ID, nil
}

func (f *fakeSemantic) GetKnowledge(_ context.Context, id string) (*types.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return item, nil
}

func (f *fakeSemantic) Search(_ context.Context, _ string, limit int) ([]storage.SemanticHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := f.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeSemantic) DeleteKnowledge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSemantic) TouchKnowledge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeSemantic) KnowledgeStats(context.Context) (*storage.KnowledgeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &storage.KnowledgeStats{ByType: map[string]int{}, TotalItems: len(f.items)}
	for _, item := range f.items {
		st.ByType[string(item.Type)]++
	}
	return st, nil
}

func (f *fakeSemantic) Ping(context.Context) error { return nil }
func (f *fakeSemantic) Close() error               { return nil }

// fakeStates records run-log rows.
type fakeStates struct {
	mu     sync.Mutex
	runs   []storage.RunRecord
	states []*types.ConsciousnessState
}

func (f *fakeStates) SaveState(_ context.Context, st *types.ConsciousnessState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, st)
	return nil
}

func (f *fakeStates) LatestState(context.Context) (*types.ConsciousnessState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return nil, storage.ErrNotFound
	}
	return f.states[len(f.states)-1], nil
}

func (f *fakeStates) RecordRun(_ context.Context, rec storage.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, rec)
	return nil
}

func (f *fakeStates) Ping(context.Context) error { return nil }
func (f *fakeStates) Close() error               { return nil }
