// Package health tracks reachability of the backing stores. Each store
// gets a circuit breaker around its ping; the monitor converts breaker
// state into the three-level health score the continuity manager folds
// into memory integrity.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Health scores. A reachable store scores Healthy, a store that failed
// its last ping but whose breaker has not opened scores Degraded, and a
// store behind an open breaker scores Unreachable.
const (
	Healthy     = 1.0
	Degraded    = 0.5
	Unreachable = 0.0
)

// Pinger is the slice of the store contracts the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds monitor tuning.
type Config struct {
	// PingTimeout bounds each health probe. Default: 2 seconds.
	PingTimeout time.Duration

	// MaxFailures is the number of consecutive ping failures required to
	// open a store's breaker. Default: 3.
	MaxFailures uint32

	// OpenTimeout is how long an open breaker waits before allowing a
	// probe again. Default: 30 seconds.
	OpenTimeout time.Duration
}

func (c *Config) normalize() {
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

// Monitor probes registered stores and reports per-store and overall
// health scores. Safe for concurrent use.
type Monitor struct {
	cfg Config

	mu       sync.RWMutex
	stores   map[string]Pinger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewMonitor returns an empty monitor.
func NewMonitor(cfg Config) *Monitor {
	cfg.normalize()
	return &Monitor{
		cfg:      cfg,
		stores:   map[string]Pinger{},
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// Register adds a named store to the monitor. Registering the same name
// again replaces the store but keeps its breaker history.
func (m *Monitor) Register(name string, store Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stores[name] = store
	if _, ok := m.breakers[name]; !ok {
		maxFailures := m.cfg.MaxFailures
		m.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: m.cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		})
	}
}

// Check probes one store and returns its health score. Unknown names
// score Unreachable.
func (m *Monitor) Check(ctx context.Context, name string) float64 {
	m.mu.RLock()
	store, ok := m.stores[name]
	cb := m.breakers[name]
	m.mu.RUnlock()
	if !ok {
		return Unreachable
	}

	_, err := cb.Execute(func() (any, error) {
		pingCtx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
		defer cancel()
		return nil, store.Ping(pingCtx)
	})
	if err == nil {
		return Healthy
	}

	if errors.Is(err, gobreaker.ErrOpenState) || cb.State() == gobreaker.StateOpen {
		return Unreachable
	}
	return Degraded
}

// Overall probes every registered store and returns the average score.
// An empty monitor reports Healthy.
func (m *Monitor) Overall(ctx context.Context) float64 {
	m.mu.RLock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	m.mu.RUnlock()

	if len(names) == 0 {
		return Healthy
	}

	var sum float64
	for _, name := range names {
		sum += m.Check(ctx, name)
	}
	return sum / float64(len(names))
}

// Scores probes every registered store and returns the per-store scores.
func (m *Monitor) Scores(ctx context.Context) map[string]float64 {
	m.mu.RLock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name] = m.Check(ctx, name)
	}
	return out
}
