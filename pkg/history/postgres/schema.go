package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMessages = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    conversation_id   TEXT     NOT NULL,
    seq               BIGINT   NOT NULL,
    role              TEXT     NOT NULL,
    text              TEXT     NOT NULL,
    sent_at           BIGINT   NOT NULL DEFAULT 0,
    is_summary_marker BOOLEAN  NOT NULL DEFAULT FALSE,
    range_start       INT,
    range_end         INT,
    summary_id        TEXT     NOT NULL DEFAULT '',
    PRIMARY KEY (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON conversation_messages (conversation_id);
`

const ddlSettings = `
CREATE TABLE IF NOT EXISTS conversation_settings (
    conversation_id    TEXT     PRIMARY KEY,
    enabled            BOOLEAN  NOT NULL,
    summary_threshold  INT      NOT NULL,
    summary_length     INT      NOT NULL,
    last_summarized_at BIGINT   NOT NULL DEFAULT 0
);
`

// ddlSummaries returns the summaries DDL with the embedding dimension
// substituted. The dimension is baked into the column type at schema
// creation time.
func ddlSummaries(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS summaries (
    id              TEXT    PRIMARY KEY,
    conversation_id TEXT    NOT NULL,
    text            TEXT    NOT NULL,
    created_at      BIGINT  NOT NULL DEFAULT 0,
    range_start     INT     NOT NULL,
    range_end       INT     NOT NULL,
    embedding       vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_summaries_conversation
    ON summaries (conversation_id);

CREATE INDEX IF NOT EXISTS idx_summaries_embedding
    ON summaries USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g. 1536
// for OpenAI text-embedding-3-small, 768 for nomic-embed-text). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlMessages,
		ddlSettings,
		ddlSummaries(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
