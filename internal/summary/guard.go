package summary

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
)

// StoreGuard wraps a [history.Store] and tracks whether the backend is
// currently failing. Unlike a swallowing decorator, every error still
// propagates — conversation history is primary data and a silently dropped
// message is worse than a failed request — but each failure is logged and
// flips the degraded flag, which the readiness endpoint reports.
//
// The flag clears as soon as any operation succeeds again.
//
// All methods are safe for concurrent use.
type StoreGuard struct {
	store    history.Store
	degraded atomic.Bool
}

// NewStoreGuard creates a new [StoreGuard] wrapping the given store.
func NewStoreGuard(store history.Store) *StoreGuard {
	return &StoreGuard{store: store}
}

// Compile-time check that StoreGuard satisfies history.Store.
var _ history.Store = (*StoreGuard)(nil)

// IsDegraded reports whether the most recent storage operation failed.
func (g *StoreGuard) IsDegraded() bool {
	return g.degraded.Load()
}

// observe updates the degraded flag from an operation outcome.
func (g *StoreGuard) observe(op, conversationID string, err error) {
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("store guard: operation failed",
			"op", op,
			"conversation", conversationID,
			"error", err,
		)
		return
	}
	g.degraded.Store(false)
}

// History implements history.Store.
func (g *StoreGuard) History(ctx context.Context, conversationID string) ([]chat.Message, error) {
	messages, err := g.store.History(ctx, conversationID)
	g.observe("history", conversationID, err)
	return messages, err
}

// ReplaceHistory implements history.Store.
func (g *StoreGuard) ReplaceHistory(ctx context.Context, conversationID string, messages []chat.Message) error {
	err := g.store.ReplaceHistory(ctx, conversationID, messages)
	g.observe("replace-history", conversationID, err)
	return err
}

// AppendMessage implements history.Store.
func (g *StoreGuard) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	err := g.store.AppendMessage(ctx, conversationID, msg)
	g.observe("append-message", conversationID, err)
	return err
}

// Settings implements history.Store.
func (g *StoreGuard) Settings(ctx context.Context, conversationID string) (chat.Settings, error) {
	settings, err := g.store.Settings(ctx, conversationID)
	g.observe("settings", conversationID, err)
	return settings, err
}

// SaveSettings implements history.Store.
func (g *StoreGuard) SaveSettings(ctx context.Context, conversationID string, settings chat.Settings) error {
	err := g.store.SaveSettings(ctx, conversationID, settings)
	g.observe("save-settings", conversationID, err)
	return err
}

// Summaries implements history.Store.
func (g *StoreGuard) Summaries(ctx context.Context, conversationID string) ([]chat.Summary, error) {
	summaries, err := g.store.Summaries(ctx, conversationID)
	g.observe("summaries", conversationID, err)
	return summaries, err
}

// AppendSummary implements history.Store.
func (g *StoreGuard) AppendSummary(ctx context.Context, summary chat.Summary) error {
	err := g.store.AppendSummary(ctx, summary)
	g.observe("append-summary", summary.ConversationID, err)
	return err
}

// DeleteSummary implements history.Store. A missing summary is a caller
// error, not a backend failure, and does not mark the store degraded.
func (g *StoreGuard) DeleteSummary(ctx context.Context, conversationID string, summaryID string) error {
	err := g.store.DeleteSummary(ctx, conversationID, summaryID)
	if errors.Is(err, history.ErrSummaryNotFound) {
		return err
	}
	g.observe("delete-summary", conversationID, err)
	return err
}

// ListConversations implements history.Store.
func (g *StoreGuard) ListConversations(ctx context.Context) ([]string, error) {
	ids, err := g.store.ListConversations(ctx)
	g.observe("list-conversations", "", err)
	return ids, err
}

// SearchSummaries forwards to the wrapped store when it supports semantic
// search; otherwise it returns history.ErrSearchUnsupported. A backend that
// cannot search is a deployment shape, not a failure, and does not mark the
// store degraded.
func (g *StoreGuard) SearchSummaries(ctx context.Context, conversationID string, query string, topK int) ([]history.SummaryResult, error) {
	searcher, ok := g.store.(history.SummarySearcher)
	if !ok {
		return nil, history.ErrSearchUnsupported
	}
	results, err := searcher.SearchSummaries(ctx, conversationID, query, topK)
	if errors.Is(err, history.ErrSearchUnsupported) {
		return results, err
	}
	g.observe("search-summaries", conversationID, err)
	return results, err
}
