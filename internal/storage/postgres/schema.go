package postgres

// Schema is the base DDL for the Continuum tables. Every statement is
// idempotent (IF NOT EXISTS) so it can be applied on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id UUID PRIMARY KEY,
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMPTZ NOT NULL,
	action_type TEXT NOT NULL,
	action_details JSONB NOT NULL DEFAULT '{}',
	context_state JSONB NOT NULL DEFAULT '{}',
	outcome JSONB NOT NULL DEFAULT '{}',
	emotional_state JSONB,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	tags JSONB NOT NULL DEFAULT '[]',
	consolidated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_episodes_unconsolidated
	ON episodes (agent_id, consolidated, importance DESC, timestamp DESC);

CREATE INDEX IF NOT EXISTS idx_episodes_timestamp
	ON episodes (agent_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS knowledge_items (
	id UUID PRIMARY KEY,
	agent_id TEXT NOT NULL,
	knowledge_type TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	source_episode_ids JSONB NOT NULL DEFAULT '[]',
	tags JSONB NOT NULL DEFAULT '[]',
	metadata JSONB NOT NULL DEFAULT '{}',
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_accessed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_knowledge_type
	ON knowledge_items (agent_id, knowledge_type);

CREATE TABLE IF NOT EXISTS consciousness_states (
	state_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMPTZ NOT NULL,
	state_data JSONB NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	memory_integrity DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	context_completeness DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_states_latest
	ON consciousness_states (agent_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS consolidation_log (
	id BIGSERIAL PRIMARY KEY,
	agent_id TEXT NOT NULL,
	run_type TEXT NOT NULL,
	episodes_processed INTEGER NOT NULL DEFAULT 0,
	patterns_extracted INTEGER NOT NULL DEFAULT 0,
	knowledge_created INTEGER NOT NULL DEFAULT 0,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'completed',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// MigrationPgvector adds the embedding column and ANN index. Applied only
// when the pgvector extension is available.
const MigrationPgvector = `
ALTER TABLE knowledge_items ADD COLUMN IF NOT EXISTS embedding vector(768);

CREATE INDEX IF NOT EXISTS idx_knowledge_embedding
	ON knowledge_items USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
