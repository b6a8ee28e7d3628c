// Command continuum-agent runs the memory substrate daemon: it restores
// continuity from the latest saved consciousness state on startup, keeps
// the consolidation engine running (triggered and, optionally, on a
// timer), and saves a fresh state snapshot on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scrypster/continuum/internal/config"
	"github.com/scrypster/continuum/internal/continuity"
	"github.com/scrypster/continuum/internal/engine"
	"github.com/scrypster/continuum/internal/health"
	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/internal/storage/postgres"
	"github.com/scrypster/continuum/internal/storage/redisctx"
	"github.com/scrypster/continuum/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to config file (optional, uses env vars by default)")
	agentID    = flag.String("agent", "", "Agent ID (overrides config)")
	noRestore  = flag.Bool("no-restore", false, "Skip continuity restoration on startup")
)

// durableStore is the slice of one backend the daemon needs.
type durableStore interface {
	storage.EpisodicStore
	storage.SemanticStore
	storage.StateStore
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *agentID != "" {
		cfg.AgentID = *agentID
	}

	store, err := openDurable(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	working, err := redisctx.New(client, cfg.AgentID, redisctx.Options{
		Namespace: cfg.Redis.Namespace,
		TTL:       cfg.Redis.TTL,
		MaxItems:  cfg.Redis.MaxItems,
	})
	if err != nil {
		log.Fatalf("Failed to open working context: %v", err)
	}
	defer working.Close()

	monitor := health.NewMonitor(health.Config{})
	monitor.Register("durable", store)
	monitor.Register("working_context", working)

	sessionID := uuid.NewString()
	manager := continuity.New(store, store, working, store, monitor, cfg.Continuity, cfg.AgentID, sessionID)

	ctx := context.Background()

	if !*noRestore {
		summary := manager.RestoreAfterDowntime(ctx)
		switch {
		case summary.FreshStart:
			log.Printf("No prior consciousness state; starting fresh (session %s)", sessionID)
		case summary.RestorationFailed:
			log.Printf("WARNING: continuity restoration failed; starting without prior context")
		default:
			log.Printf("Restored continuity across %s gap (%.1fh): %d context items, %d tasks, %d patterns, integrity %.2f",
				summary.GapType, summary.GapDuration.Hours(),
				summary.ContextItemsRestored, summary.TasksReactivated,
				summary.PatternsIntegrated, summary.IntegrityScore)
		}
	}

	eng := engine.New(store, store, store, cfg.Consolidation)

	// The trigger fires when episode writes push the backlog over its
	// thresholds. The daemon has no recording surface of its own, so
	// activity-driven consolidation is for embedding callers that pair
	// eng.RecordEpisode with trigger.Notify; standalone the daemon relies
	// on the interval timer below.
	trigger := engine.NewTrigger(eng, store, cfg.Consolidation)

	go func() {
		for res := range trigger.Results {
			if res.Err != nil {
				log.Printf("ERROR: triggered consolidation for %s failed: %v", res.AgentID, res.Err)
				continue
			}
			log.Printf("Triggered consolidation for %s: %d episodes, %d patterns (%s)",
				res.AgentID, res.Stats.EpisodesProcessed, res.Stats.PatternsExtracted, res.Stats.Status())
		}
	}()

	// A nil channel blocks forever, so the timer arm is inert when no
	// interval is configured.
	var tick <-chan time.Time
	if cfg.Consolidation.Interval > 0 {
		ticker := time.NewTicker(cfg.Consolidation.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("continuum-agent running (agent %s, engine %s)", cfg.AgentID, cfg.Storage.Engine)

	for {
		select {
		case <-tick:
			stats, err := eng.Run(ctx)
			if err != nil {
				log.Printf("ERROR: scheduled consolidation failed: %v", err)
				continue
			}
			log.Printf("Scheduled consolidation: %d episodes, %d patterns (%s)",
				stats.EpisodesProcessed, stats.PatternsExtracted, stats.Status())

		case s := <-sig:
			log.Printf("Received %s; saving consciousness state", s)
			shutdown(manager, trigger)
			return
		}
	}
}

// shutdown saves a final state snapshot and drains in-flight runs. The
// snapshot is best-effort: a failed save is logged, not retried.
func shutdown(manager *continuity.Manager, trigger *engine.Trigger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if id, err := manager.SaveState(ctx); err != nil {
		log.Printf("ERROR: failed to save consciousness state: %v", err)
	} else {
		log.Printf("Saved consciousness state %s", id)
	}

	trigger.Close()
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadConfigFromFile(*configPath)
	}
	return config.LoadConfig()
}

// openDurable opens the configured durable backend. Embedding generation
// is an external collaborator; without it the stores fall back to
// lexical matching.
func openDurable(cfg *config.Config) (durableStore, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN, cfg.AgentID, nil)
	case "sqlite":
		return sqlite.New(cfg.Storage.DataPath, cfg.AgentID, nil)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
