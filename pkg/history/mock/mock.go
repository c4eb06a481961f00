// Package mock provides an in-memory test double for history.Store.
//
// Unlike the provider mocks, this double is functional: data written through
// it can be read back, so summariser tests can exercise full passes without
// a filesystem or database. Per-method Err fields inject failures, and call
// records capture what the code under test wrote.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
)

// Compile-time interface assertions.
var (
	_ history.Store           = (*Store)(nil)
	_ history.SummarySearcher = (*Store)(nil)
)

// ReplaceHistoryCall records a single invocation of ReplaceHistory.
type ReplaceHistoryCall struct {
	ConversationID string
	Messages       []chat.Message
}

// Store is an in-memory implementation of history.Store for tests.
type Store struct {
	mu sync.Mutex

	histories map[string][]chat.Message
	settings  map[string]chat.Settings
	summaries map[string][]chat.Summary

	// --- Error injection ---

	HistoryErr        error
	ReplaceHistoryErr error
	AppendMessageErr  error
	SettingsErr       error
	SaveSettingsErr   error
	SummariesErr      error
	AppendSummaryErr  error
	DeleteSummaryErr  error

	// SearchResults is returned by SearchSummaries.
	SearchResults []history.SummaryResult
	SearchErr     error

	// --- Call records ---

	ReplaceHistoryCalls []ReplaceHistoryCall
	AppendSummaryCalls  []chat.Summary
	SearchCalls         []string
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		histories: map[string][]chat.Message{},
		settings:  map[string]chat.Settings{},
		summaries: map[string][]chat.Summary{},
	}
}

// Seed replaces the history of a conversation without recording a call.
func (s *Store) Seed(conversationID string, messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[conversationID] = append([]chat.Message(nil), messages...)
}

// SeedSettings stores settings for a conversation without recording a call.
func (s *Store) SeedSettings(conversationID string, settings chat.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[conversationID] = settings
}

// History implements history.Store.
func (s *Store) History(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HistoryErr != nil {
		return nil, s.HistoryErr
	}
	return append([]chat.Message{}, s.histories[conversationID]...), nil
}

// ReplaceHistory implements history.Store.
func (s *Store) ReplaceHistory(_ context.Context, conversationID string, messages []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]chat.Message(nil), messages...)
	s.ReplaceHistoryCalls = append(s.ReplaceHistoryCalls, ReplaceHistoryCall{
		ConversationID: conversationID,
		Messages:       cp,
	})
	if s.ReplaceHistoryErr != nil {
		return s.ReplaceHistoryErr
	}
	s.histories[conversationID] = cp
	return nil
}

// AppendMessage implements history.Store.
func (s *Store) AppendMessage(_ context.Context, conversationID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendMessageErr != nil {
		return s.AppendMessageErr
	}
	s.histories[conversationID] = append(s.histories[conversationID], msg)
	return nil
}

// Settings implements history.Store.
func (s *Store) Settings(_ context.Context, conversationID string) (chat.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SettingsErr != nil {
		return chat.Settings{}, s.SettingsErr
	}
	if settings, ok := s.settings[conversationID]; ok {
		return settings, nil
	}
	return chat.DefaultSettings(), nil
}

// SaveSettings implements history.Store.
func (s *Store) SaveSettings(_ context.Context, conversationID string, settings chat.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveSettingsErr != nil {
		return s.SaveSettingsErr
	}
	s.settings[conversationID] = settings
	return nil
}

// Summaries implements history.Store.
func (s *Store) Summaries(_ context.Context, conversationID string) ([]chat.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SummariesErr != nil {
		return nil, s.SummariesErr
	}
	return append([]chat.Summary{}, s.summaries[conversationID]...), nil
}

// AppendSummary implements history.Store.
func (s *Store) AppendSummary(_ context.Context, summary chat.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendSummaryCalls = append(s.AppendSummaryCalls, summary)
	if s.AppendSummaryErr != nil {
		return s.AppendSummaryErr
	}
	s.summaries[summary.ConversationID] = append(s.summaries[summary.ConversationID], summary)
	return nil
}

// DeleteSummary implements history.Store.
func (s *Store) DeleteSummary(_ context.Context, conversationID string, summaryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteSummaryErr != nil {
		return s.DeleteSummaryErr
	}
	sums := s.summaries[conversationID]
	for i, sum := range sums {
		if sum.ID == summaryID {
			s.summaries[conversationID] = append(sums[:i], sums[i+1:]...)
			s.removeMarkerLocked(conversationID, summaryID)
			return nil
		}
	}
	return fmt.Errorf("mock: delete summary %q: %w", summaryID, history.ErrSummaryNotFound)
}

// removeMarkerLocked drops the marker message of a deleted summary from the
// history. Callers must hold s.mu.
func (s *Store) removeMarkerLocked(conversationID, summaryID string) {
	msgs := s.histories[conversationID]
	kept := msgs[:0]
	for _, m := range msgs {
		if m.IsSummaryMarker && m.SummaryID == summaryID {
			continue
		}
		kept = append(kept, m)
	}
	s.histories[conversationID] = kept
}

// ListConversations implements history.Store.
func (s *Store) ListConversations(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for id := range s.histories {
		ids = append(ids, id)
	}
	return ids, nil
}

// SearchSummaries implements history.SummarySearcher by returning the canned
// SearchResults.
func (s *Store) SearchSummaries(_ context.Context, conversationID string, query string, topK int) ([]history.SummaryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls = append(s.SearchCalls, query)
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	if topK < len(s.SearchResults) {
		return s.SearchResults[:topK], nil
	}
	return s.SearchResults, nil
}

// Reset clears all stored data and recorded calls.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = map[string][]chat.Message{}
	s.settings = map[string]chat.Settings{}
	s.summaries = map[string][]chat.Summary{}
	s.ReplaceHistoryCalls = nil
	s.AppendSummaryCalls = nil
	s.SearchCalls = nil
}
