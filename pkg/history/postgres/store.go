// Package postgres provides a PostgreSQL-backed implementation of
// history.Store with pgvector-indexed semantic search over archived
// summaries.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536, embedder)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
	"github.com/MrWong99/reverie/pkg/provider/embeddings"
)

// Compile-time interface assertions.
var (
	_ history.Store           = (*Store)(nil)
	_ history.SummarySearcher = (*Store)(nil)
)

// Store is the PostgreSQL-backed conversation store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
//
// When constructed with an embeddings provider, every summary written via
// AppendSummary is embedded and indexed, enabling SearchSummaries. Without a
// provider the vector column stays NULL and SearchSummaries returns an error.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	defaults chat.Settings
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultSettings sets the settings returned for conversations that have
// never stored any. Without this option, chat.DefaultSettings() is used.
func WithDefaultSettings(settings chat.Settings) Option {
	return func(s *Store) { s.defaults = settings }
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of embedder. When
// embedder is non-nil and embeddingDimensions is zero, the dimension is taken
// from the provider. Changing the dimension after the first migration
// requires a manual schema change.
//
// embedder may be nil, which disables semantic summary search.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int, embedder embeddings.Provider, opts ...Option) (*Store, error) {
	if embedder != nil && embeddingDimensions == 0 {
		embeddingDimensions = embedder.Dimensions()
	}
	if embeddingDimensions == 0 {
		// No embedder and no explicit dimension: the vector column still
		// needs a size for the DDL.
		embeddingDimensions = 1536
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{pool: pool, embedder: embedder, defaults: chat.DefaultSettings()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
