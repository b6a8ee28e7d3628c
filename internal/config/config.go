// Package config provides configuration management for Continuum.
// It loads settings from environment variables with the CONTINUUM_ prefix
// and provides sensible defaults for all configuration options. An
// optional YAML file (CONTINUUM_CONFIG_FILE) is overlaid on top of the
// environment-derived values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Continuum application.
// It is built once at startup and passed by value into constructors.
type Config struct {
	// AgentID identifies the agent whose memory this process manages.
	AgentID string `yaml:"agent_id"`

	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Continuity    ContinuityConfig    `yaml:"continuity"`
}

// StorageConfig selects and configures the durable store backend.
type StorageConfig struct {
	// Engine is the durable backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// PostgresDSN is the connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`

	// DataPath is the SQLite database path for the sqlite engine
	// (default: ./data/continuum.db).
	DataPath string `yaml:"data_path"`

	// StoreTimeout bounds each individual store call (default: 5s).
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// RedisConfig configures the working-context window.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // default: localhost:6379
	Password string `yaml:"password"` //
	DB       int    `yaml:"db"`       //

	// Namespace prefixes every Redis key (default: continuum).
	Namespace string `yaml:"namespace"`

	// TTL is the working-context item lifetime (default: 2h).
	TTL time.Duration `yaml:"ttl"`

	// MaxItems bounds the window size (default: 50).
	MaxItems int `yaml:"max_items"`
}

// ConsolidationConfig tunes the consolidation engine.
type ConsolidationConfig struct {
	// BatchSize is the maximum episodes fetched per run (default: 100).
	BatchSize int `yaml:"batch_size"`

	// ConfidenceThreshold filters extracted patterns (default: 0.7).
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MinEpisodesForPattern is the evidence floor for success, outcome
	// and temporal patterns (default: 2).
	MinEpisodesForPattern int `yaml:"min_episodes_for_pattern"`

	// SimilarityThreshold is the reconciliation match floor (default: 0.8).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// RetentionDays is the minimum age before consolidated episodes
	// become prune candidates (default: 90).
	RetentionDays int `yaml:"retention_days"`

	// LowImportanceThreshold selects prune candidates (default: 0.3);
	// only candidates below HardDeleteThreshold are actually removed
	// (default: 0.2).
	LowImportanceThreshold float64 `yaml:"low_importance_threshold"`
	HardDeleteThreshold    float64 `yaml:"hard_delete_threshold"`

	// EmotionalThreshold is the crystallization floor (default: 0.8).
	EmotionalThreshold float64 `yaml:"emotional_threshold"`

	// Collaborators are agent names recognized by the collaboration
	// extractor.
	Collaborators []string `yaml:"collaborators"`

	// OffPeakHour is the local hour when pruning always runs (default: 2).
	OffPeakHour int `yaml:"off_peak_hour"`

	// Trigger tuning.
	TriggerCount          int     `yaml:"trigger_count"`           // default: 50
	TriggerHighImportance int     `yaml:"trigger_high_importance"` // default: 5
	TriggerRatePerMinute  float64 `yaml:"trigger_rate_per_minute"` // default: 6
	MaxConcurrentRuns     int     `yaml:"max_concurrent_runs"`     // default: 2

	// Interval between periodic runs in the agent daemon; zero disables
	// the timer (triggers still fire).
	Interval time.Duration `yaml:"interval"`
}

// ContinuityConfig tunes state capture and restoration.
type ContinuityConfig struct {
	// Gap classification thresholds.
	ShortGap  time.Duration `yaml:"short_gap"`  // default: 30m
	MediumGap time.Duration `yaml:"medium_gap"` // default: 4h
	LongGap   time.Duration `yaml:"long_gap"`   // default: 24h
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. When CONTINUUM_CONFIG_FILE is set, the YAML file is overlaid
// on the environment-derived values.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()

	if path := os.Getenv("CONTINUUM_CONFIG_FILE"); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.Normalize()
	return cfg, nil
}

// LoadConfigFromFile loads configuration from environment variables and
// overlays the given YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := buildBaseConfig()
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse config file: %w", err)
	}
	return nil
}

// Normalize clamps and defaults values that could otherwise break the
// engine (zero batch sizes, thresholds out of [0,1], inverted gap
// boundaries).
func (c *Config) Normalize() {
	if c.AgentID == "" {
		c.AgentID = "continuum"
	}
	if c.Storage.Engine == "" {
		c.Storage.Engine = "sqlite"
	}
	if c.Storage.DataPath == "" {
		c.Storage.DataPath = "./data/continuum.db"
	}
	if c.Storage.StoreTimeout <= 0 {
		c.Storage.StoreTimeout = 5 * time.Second
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = "continuum"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 2 * time.Hour
	}
	if c.Redis.MaxItems <= 0 {
		c.Redis.MaxItems = 50
	}

	cc := &c.Consolidation
	if cc.BatchSize <= 0 {
		cc.BatchSize = 100
	}
	if cc.ConfidenceThreshold <= 0 || cc.ConfidenceThreshold > 1 {
		cc.ConfidenceThreshold = 0.7
	}
	if cc.MinEpisodesForPattern < 2 {
		cc.MinEpisodesForPattern = 2
	}
	if cc.SimilarityThreshold <= 0 || cc.SimilarityThreshold > 1 {
		cc.SimilarityThreshold = 0.8
	}
	if cc.RetentionDays <= 0 {
		cc.RetentionDays = 90
	}
	if cc.LowImportanceThreshold <= 0 || cc.LowImportanceThreshold > 1 {
		cc.LowImportanceThreshold = 0.3
	}
	if cc.HardDeleteThreshold <= 0 || cc.HardDeleteThreshold > cc.LowImportanceThreshold {
		cc.HardDeleteThreshold = 0.2
	}
	if cc.EmotionalThreshold <= 0 || cc.EmotionalThreshold > 1 {
		cc.EmotionalThreshold = 0.8
	}
	if cc.OffPeakHour < 0 || cc.OffPeakHour > 23 {
		cc.OffPeakHour = 2
	}
	if cc.TriggerCount <= 0 {
		cc.TriggerCount = 50
	}
	if cc.TriggerHighImportance <= 0 {
		cc.TriggerHighImportance = 5
	}
	if cc.TriggerRatePerMinute <= 0 {
		cc.TriggerRatePerMinute = 6
	}
	if cc.MaxConcurrentRuns <= 0 {
		cc.MaxConcurrentRuns = 2
	}

	ct := &c.Continuity
	if ct.ShortGap <= 0 {
		ct.ShortGap = 30 * time.Minute
	}
	if ct.MediumGap <= ct.ShortGap {
		ct.MediumGap = 4 * time.Hour
	}
	if ct.LongGap <= ct.MediumGap {
		ct.LongGap = 24 * time.Hour
	}
}

// buildBaseConfig constructs a Config with values from environment
// variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		AgentID: getEnv("CONTINUUM_AGENT_ID", "continuum"),
		Storage: StorageConfig{
			Engine:       getEnv("CONTINUUM_STORAGE_ENGINE", "sqlite"),
			PostgresDSN:  getEnv("CONTINUUM_POSTGRES_DSN", ""),
			DataPath:     getEnv("CONTINUUM_DATA_PATH", "./data/continuum.db"),
			StoreTimeout: getEnvDuration("CONTINUUM_STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:      getEnv("CONTINUUM_REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("CONTINUUM_REDIS_PASSWORD", ""),
			DB:        getEnvInt("CONTINUUM_REDIS_DB", 0),
			Namespace: getEnv("CONTINUUM_REDIS_NAMESPACE", "continuum"),
			TTL:       getEnvDuration("CONTINUUM_CONTEXT_TTL", 2*time.Hour),
			MaxItems:  getEnvInt("CONTINUUM_CONTEXT_MAX_ITEMS", 50),
		},
		Consolidation: ConsolidationConfig{
			BatchSize:              getEnvInt("CONTINUUM_BATCH_SIZE", 100),
			ConfidenceThreshold:    getEnvFloat("CONTINUUM_CONFIDENCE_THRESHOLD", 0.7),
			MinEpisodesForPattern:  getEnvInt("CONTINUUM_MIN_EPISODES_FOR_PATTERN", 2),
			SimilarityThreshold:    getEnvFloat("CONTINUUM_SIMILARITY_THRESHOLD", 0.8),
			RetentionDays:          getEnvInt("CONTINUUM_RETENTION_DAYS", 90),
			LowImportanceThreshold: getEnvFloat("CONTINUUM_LOW_IMPORTANCE_THRESHOLD", 0.3),
			HardDeleteThreshold:    getEnvFloat("CONTINUUM_HARD_DELETE_THRESHOLD", 0.2),
			EmotionalThreshold:     getEnvFloat("CONTINUUM_EMOTIONAL_THRESHOLD", 0.8),
			OffPeakHour:            getEnvInt("CONTINUUM_OFF_PEAK_HOUR", 2),
			TriggerCount:           getEnvInt("CONTINUUM_TRIGGER_COUNT", 50),
			TriggerHighImportance:  getEnvInt("CONTINUUM_TRIGGER_HIGH_IMPORTANCE", 5),
			TriggerRatePerMinute:   getEnvFloat("CONTINUUM_TRIGGER_RATE_PER_MINUTE", 6),
			MaxConcurrentRuns:      getEnvInt("CONTINUUM_MAX_CONCURRENT_RUNS", 2),
			Interval:               getEnvDuration("CONTINUUM_CONSOLIDATION_INTERVAL", 0),
		},
		Continuity: ContinuityConfig{
			ShortGap:  getEnvDuration("CONTINUUM_SHORT_GAP", 30*time.Minute),
			MediumGap: getEnvDuration("CONTINUUM_MEDIUM_GAP", 4*time.Hour),
			LongGap:   getEnvDuration("CONTINUUM_LONG_GAP", 24*time.Hour),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30m") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
