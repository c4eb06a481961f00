package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
	"github.com/MrWong99/reverie/pkg/history/postgres"
	"github.com/MrWong99/reverie/pkg/provider/embeddings"
	embmock "github.com/MrWong99/reverie/pkg/provider/embeddings/mock"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if REVERIE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("REVERIE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REVERIE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] against a clean schema and
// closes it when the test finishes.
func newTestStore(t *testing.T, embedder *embmock.Provider) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cleanPool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	for _, table := range []string{"conversation_messages", "conversation_settings", "summaries"} {
		if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}

	var emb embeddings.Provider
	if embedder != nil {
		emb = embedder
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim, emb)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestHistoryRoundTrip(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	msgs := []chat.Message{
		{Role: chat.RoleUser, Text: "hello", Timestamp: 1},
		{Role: chat.RoleModel, Text: "hi", Timestamp: 2},
	}
	for _, m := range msgs {
		if err := store.AppendMessage(ctx, "conv-1", m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].Text != "hello" || got[1].Text != "hi" {
		t.Fatalf("unexpected history: %+v", got)
	}

	marker := chat.Message{
		Role:            chat.RoleUser,
		Text:            "[Previous events summary]: greetings exchanged.",
		IsSummaryMarker: true,
		OriginalRange:   &chat.Range{Start: 0, End: 2},
		SummaryID:       "s1",
	}
	if err := store.ReplaceHistory(ctx, "conv-1", []chat.Message{marker}); err != nil {
		t.Fatalf("ReplaceHistory: %v", err)
	}

	got, err = store.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History after replace: %v", err)
	}
	if len(got) != 1 || !got[0].IsSummaryMarker || got[0].SummaryID != "s1" {
		t.Fatalf("unexpected history after replace: %+v", got)
	}
	if got[0].OriginalRange == nil || got[0].OriginalRange.End != 2 {
		t.Fatalf("originalRange did not round-trip: %+v", got[0].OriginalRange)
	}
}

func TestSettings_DefaultsAndRoundTrip(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	got, err := store.Settings(ctx, "fresh")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != chat.DefaultSettings() {
		t.Errorf("expected defaults, got %+v", got)
	}

	want := chat.Settings{Enabled: true, SummaryThreshold: 9000, SummaryLength: 700, LastSummarizedAt: 99}
	if err := store.SaveSettings(ctx, "conv-1", want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err = store.Settings(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != want {
		t.Errorf("Settings = %+v, want %+v", got, want)
	}
}

func TestAppendSummary_EmbeddingFailureKeepsSummary(t *testing.T) {
	embedder := &embmock.Provider{
		EmbedErr:        errors.New("embedding service down"),
		DimensionsValue: testEmbeddingDim,
	}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	sum := chat.Summary{
		ID:             "s1",
		ConversationID: "conv-1",
		Text:           "The ship left without them.",
		Timestamp:      10,
		OriginalRange:  chat.Range{Start: 0, End: 4},
	}
	if err := store.AppendSummary(ctx, sum); err != nil {
		t.Fatalf("AppendSummary must tolerate embedding failures: %v", err)
	}

	// The row exists and lists normally; it just has no vector, so semantic
	// search cannot return it.
	got, err := store.Summaries(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("unexpected summaries: %+v", got)
	}
}

func TestSummaries_EmbedAndSearch(t *testing.T) {
	embedder := &embmock.Provider{
		EmbedResult:     []float32{0.1, 0.2, 0.3, 0.4},
		DimensionsValue: testEmbeddingDim,
		ModelIDValue:    "test-embed",
	}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	sum := chat.Summary{
		ID:             "s1",
		ConversationID: "conv-1",
		Text:           "The party entered the harbour town.",
		Timestamp:      10,
		OriginalRange:  chat.Range{Start: 0, End: 14},
	}
	if err := store.AppendSummary(ctx, sum); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}
	if len(embedder.EmbedCalls) != 1 {
		t.Fatalf("expected 1 embed call, got %d", len(embedder.EmbedCalls))
	}

	results, err := store.SearchSummaries(ctx, "conv-1", "harbour", 5)
	if err != nil {
		t.Fatalf("SearchSummaries: %v", err)
	}
	if len(results) != 1 || results[0].Summary.ID != "s1" {
		t.Fatalf("unexpected search results: %+v", results)
	}

	if err := store.DeleteSummary(ctx, "conv-1", "s1"); err != nil {
		t.Fatalf("DeleteSummary: %v", err)
	}
	err = store.DeleteSummary(ctx, "conv-1", "s1")
	if !errors.Is(err, history.ErrSummaryNotFound) {
		t.Errorf("expected ErrSummaryNotFound, got %v", err)
	}
}
