// Package redisctx implements the working-context window on Redis.
//
// Items live under TTL'd string keys with a sorted-set index keyed by
// record time, giving the two semantics the attention window needs for
// free: items age out via TTL, and the window is trimmed to a bounded
// size by cutting the tail of the index.
package redisctx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scrypster/continuum/internal/storage"
)

const (
	defaultTTL      = 2 * time.Hour
	defaultMaxItems = 50
)

// Options configures a WorkingContext.
type Options struct {
	// Namespace prefixes every key. Defaults to "continuum".
	Namespace string

	// TTL is the item lifetime. Defaults to 2 hours.
	TTL time.Duration

	// MaxItems bounds the window size. Defaults to 50.
	MaxItems int
}

// WorkingContext implements storage.WorkingContext on Redis.
type WorkingContext struct {
	client   *redis.Client
	agentID  string
	ns       string
	ttl      time.Duration
	maxItems int
}

var _ storage.WorkingContext = (*WorkingContext)(nil)

// New returns a Redis-backed working context for the given agent.
// The client is owned by the caller until Close is called.
func New(client *redis.Client, agentID string, opts Options) (*WorkingContext, error) {
	if client == nil {
		return nil, fmt.Errorf("redis: client is required")
	}
	if agentID == "" {
		return nil, fmt.Errorf("redis: agent ID is required")
	}

	if opts.Namespace == "" {
		opts.Namespace = "continuum"
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}

	return &WorkingContext{
		client:   client,
		agentID:  agentID,
		ns:       opts.Namespace,
		ttl:      opts.TTL,
		maxItems: opts.MaxItems,
	}, nil
}

func (w *WorkingContext) indexKey() string {
	return fmt.Sprintf("%s:wctx:%s:index", w.ns, w.agentID)
}

func (w *WorkingContext) itemKey(id string) string {
	return fmt.Sprintf("%s:wctx:%s:item:%s", w.ns, w.agentID, id)
}

func (w *WorkingContext) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:wctx:%s:session:%s", w.ns, w.agentID, sessionID)
}

// AddContext stores one context item with TTL, indexes it, and trims the
// window to its size bound.
func (w *WorkingContext) AddContext(ctx context.Context, data map[string]any, tags []string, sessionID string) (string, error) {
	if data == nil {
		data = map[string]any{}
	}

	now := time.Now().UTC()
	item := storage.ContextItem{
		Key:       uuid.NewString(),
		Timestamp: now,
		SessionID: sessionID,
		Data:      data,
		Tags:      tags,
	}
	if imp, ok := data["importance"].(float64); ok {
		item.Importance = imp
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("redis: failed to marshal context item: %w", err)
	}

	key := w.itemKey(item.Key)
	pipe := w.client.TxPipeline()
	pipe.Set(ctx, key, payload, w.ttl)
	pipe.ZAdd(ctx, w.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: key})
	pipe.Expire(ctx, w.indexKey(), w.ttl)
	if sessionID != "" {
		pipe.SAdd(ctx, w.sessionKey(sessionID), key)
		pipe.Expire(ctx, w.sessionKey(sessionID), w.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis: failed to add context item: %w", err)
	}

	if err := w.trim(ctx); err != nil {
		// Trim failure leaves extra items that the TTL will collect.
		log.Printf("WARNING: redis: failed to trim working context: %v", err)
	}

	return item.Key, nil
}

// trim evicts the oldest items beyond the window bound.
func (w *WorkingContext) trim(ctx context.Context) error {
	n, err := w.client.ZCard(ctx, w.indexKey()).Result()
	if err != nil {
		return err
	}
	excess := int(n) - w.maxItems
	if excess <= 0 {
		return nil
	}

	oldest, err := w.client.ZRange(ctx, w.indexKey(), 0, int64(excess-1)).Result()
	if err != nil {
		return err
	}
	if len(oldest) == 0 {
		return nil
	}

	pipe := w.client.TxPipeline()
	pipe.Del(ctx, oldest...)
	pipe.ZRemRangeByRank(ctx, w.indexKey(), 0, int64(excess-1))
	_, err = pipe.Exec(ctx)
	return err
}

// CurrentContext returns up to limit live items, newest first. Index
// entries whose items have expired are dropped from the index on the way.
func (w *WorkingContext) CurrentContext(ctx context.Context, limit int) ([]storage.ContextItem, error) {
	if limit <= 0 {
		limit = w.maxItems
	}

	keys, err := w.client.ZRevRange(ctx, w.indexKey(), 0, int64(w.maxItems-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read context index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := w.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read context items: %w", err)
	}

	var (
		items   []storage.ContextItem
		expired []any
	)
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, keys[i])
			continue
		}
		var item storage.ContextItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			expired = append(expired, keys[i])
			continue
		}
		items = append(items, item)
		if len(items) >= limit {
			break
		}
	}

	if len(expired) > 0 {
		if err := w.client.ZRem(ctx, w.indexKey(), expired...).Err(); err != nil {
			log.Printf("WARNING: redis: failed to drop expired index entries: %v", err)
		}
	}

	return items, nil
}

// ContextByTags returns live items carrying at least one of the given
// tags, newest first.
func (w *WorkingContext) ContextByTags(ctx context.Context, tags []string, limit int) ([]storage.ContextItem, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = w.maxItems
	}

	all, err := w.CurrentContext(ctx, w.maxItems)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}

	var out []storage.ContextItem
	for _, item := range all {
		for _, t := range item.Tags {
			if want[t] {
				out = append(out, item)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Stats summarizes the live window.
func (w *WorkingContext) Stats(ctx context.Context) (*storage.ContextStats, error) {
	items, err := w.CurrentContext(ctx, w.maxItems)
	if err != nil {
		return nil, err
	}

	st := &storage.ContextStats{TotalItems: len(items)}
	if len(items) == 0 {
		return st, nil
	}

	// CurrentContext returns newest first.
	newest := items[0].Timestamp
	oldest := items[len(items)-1].Timestamp
	st.Newest = &newest
	st.Oldest = &oldest

	counts := map[string]int{}
	for _, item := range items {
		for _, t := range item.Tags {
			counts[t]++
		}
	}
	st.TopTags = topTags(counts, 5)

	return st, nil
}

// topTags returns the n most frequent tags, ties broken alphabetically
// for determinism.
func topTags(counts map[string]int, n int) []string {
	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

// ClearSession removes all items recorded under sessionID.
func (w *WorkingContext) ClearSession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	keys, err := w.client.SMembers(ctx, w.sessionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to read session set: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}

	pipe := w.client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, w.indexKey(), members...)
	pipe.Del(ctx, w.sessionKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: failed to clear session: %w", err)
	}

	return int(del.Val()), nil
}

// Ping verifies the Redis connection.
func (w *WorkingContext) Ping(ctx context.Context) error {
	if err := w.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close releases the Redis client.
func (w *WorkingContext) Close() error {
	return w.client.Close()
}
