package summary

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
	histmock "github.com/MrWong99/reverie/pkg/history/mock"
)

func TestStoreGuard_DegradedFlag(t *testing.T) {
	store := histmock.NewStore()
	guard := NewStoreGuard(store)
	ctx := context.Background()

	if guard.IsDegraded() {
		t.Fatal("fresh guard must not be degraded")
	}

	store.HistoryErr = errors.New("backend down")
	if _, err := guard.History(ctx, "conv-1"); err == nil {
		t.Fatal("guard must propagate errors")
	}
	if !guard.IsDegraded() {
		t.Error("guard must flag degradation after a failure")
	}

	// A successful operation clears the flag.
	store.HistoryErr = nil
	if _, err := guard.History(ctx, "conv-1"); err != nil {
		t.Fatalf("History: %v", err)
	}
	if guard.IsDegraded() {
		t.Error("guard must clear the flag after a success")
	}
}

func TestStoreGuard_NotFoundDoesNotDegrade(t *testing.T) {
	store := histmock.NewStore()
	guard := NewStoreGuard(store)

	err := guard.DeleteSummary(context.Background(), "conv-1", "missing")
	if !errors.Is(err, history.ErrSummaryNotFound) {
		t.Fatalf("expected ErrSummaryNotFound, got %v", err)
	}
	if guard.IsDegraded() {
		t.Error("a missing summary is a caller error, not degradation")
	}
}

func TestStoreGuard_SearchPassthrough(t *testing.T) {
	store := histmock.NewStore()
	store.SearchResults = []history.SummaryResult{
		{Summary: chat.Summary{ID: "s1"}, Distance: 0.1},
	}
	guard := NewStoreGuard(store)

	results, err := guard.SearchSummaries(context.Background(), "conv-1", "harbour", 5)
	if err != nil {
		t.Fatalf("SearchSummaries: %v", err)
	}
	if len(results) != 1 || results[0].Summary.ID != "s1" {
		t.Errorf("unexpected results: %+v", results)
	}
}

// bareStore is a history.Store without semantic search.
type bareStore struct {
	history.Store
}

func TestStoreGuard_SearchUnsupported(t *testing.T) {
	guard := NewStoreGuard(bareStore{histmock.NewStore()})

	_, err := guard.SearchSummaries(context.Background(), "conv-1", "q", 5)
	if !errors.Is(err, history.ErrSearchUnsupported) {
		t.Errorf("expected ErrSearchUnsupported, got %v", err)
	}
}

// errSearcher is a store whose semantic search always returns err.
type errSearcher struct {
	history.Store
	err error
}

func (s errSearcher) SearchSummaries(context.Context, string, string, int) ([]history.SummaryResult, error) {
	return nil, s.err
}

func TestStoreGuard_SearchUnsupportedDoesNotDegrade(t *testing.T) {
	guard := NewStoreGuard(errSearcher{histmock.NewStore(), history.ErrSearchUnsupported})

	_, err := guard.SearchSummaries(context.Background(), "conv-1", "q", 5)
	if !errors.Is(err, history.ErrSearchUnsupported) {
		t.Fatalf("expected ErrSearchUnsupported, got %v", err)
	}
	if guard.IsDegraded() {
		t.Error("a search-incapable backend is a deployment shape, not degradation")
	}

	// Real search failures still degrade.
	guard = NewStoreGuard(errSearcher{histmock.NewStore(), errors.New("backend down")})
	if _, err := guard.SearchSummaries(context.Background(), "conv-1", "q", 5); err == nil {
		t.Fatal("expected the search error to propagate")
	}
	if !guard.IsDegraded() {
		t.Error("a failing search must flag degradation")
	}
}
