// Command continuum-consolidate runs one consolidation pass and exits.
// It is the manual/cron entry point; the agent daemon runs the same
// engine continuously.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/scrypster/continuum/internal/config"
	"github.com/scrypster/continuum/internal/engine"
	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/internal/storage/postgres"
	"github.com/scrypster/continuum/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to config file (optional, uses env vars by default)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	batchSize  = flag.Int("batch", 0, "Batch size (overrides config)")
)

// durableStore is the slice of one backend the consolidation run needs.
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
	if *dbPath != "" {
		cfg.Storage.Engine = "sqlite"
		cfg.Storage.DataPath = *dbPath
	}
	if *batchSize > 0 {
		cfg.Consolidation.BatchSize = *batchSize
	}

	store, err := openDurable(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	eng := engine.New(store, store, store, cfg.Consolidation)

	stats, err := eng.Run(context.Background())
	if err != nil {
		log.Fatalf("Consolidation failed: %v", err)
	}

	log.Printf("Consolidation %s: %d episodes, %d patterns, %d created, %d updated, %d replaced, %d strengthened, %d pruned in %s",
		stats.Status(), stats.EpisodesProcessed, stats.PatternsExtracted,
		stats.KnowledgeCreated, stats.KnowledgeUpdated, stats.KnowledgeReplaced,
		stats.MemoriesStrengthened, stats.EpisodesPruned, stats.Duration().Round(0))

	for _, e := range stats.Errors {
		log.Printf("WARNING: step error: %s", e)
	}
	if len(stats.Errors) > 0 {
		os.Exit(1)
	}
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
