// Package history defines the storage abstraction for conversation data:
// message histories, per-conversation summarisation settings, and the
// archive of generated summaries.
//
// Two implementations exist: a file-backed store (package kvjson) for
// single-node deployments, and a PostgreSQL store (package postgres) that
// additionally indexes summaries with pgvector for semantic retrieval.
//
// Implementations must be safe for concurrent use.
package history

import (
	"context"
	"errors"

	"github.com/MrWong99/reverie/pkg/chat"
)

// ErrSummaryNotFound is returned when a summary ID does not exist for the
// given conversation.
var ErrSummaryNotFound = errors.New("summary not found")

// ErrSearchUnsupported is returned when semantic summary search is requested
// from a store without embedding support.
var ErrSearchUnsupported = errors.New("summary search not supported by this store")

// Store is the persistence abstraction for conversations.
//
// Read methods return empty non-nil slices when a conversation exists but
// holds no data, and also when the conversation is entirely unknown; an
// unknown conversation is indistinguishable from an empty one.
type Store interface {
	// History returns the full message history of a conversation in order.
	History(ctx context.Context, conversationID string) ([]chat.Message, error)

	// ReplaceHistory atomically replaces the entire message history of a
	// conversation. Used by the summariser to splice a summary marker over
	// the compressed range.
	ReplaceHistory(ctx context.Context, conversationID string, messages []chat.Message) error

	// AppendMessage appends a single message to the end of a conversation,
	// creating the conversation if it does not exist.
	AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error

	// Settings returns the summarisation settings for a conversation.
	// Conversations that never stored settings get chat.DefaultSettings().
	Settings(ctx context.Context, conversationID string) (chat.Settings, error)

	// SaveSettings stores the summarisation settings for a conversation.
	SaveSettings(ctx context.Context, conversationID string, s chat.Settings) error

	// Summaries returns all stored summaries of a conversation, oldest first.
	Summaries(ctx context.Context, conversationID string) ([]chat.Summary, error)

	// AppendSummary stores a generated summary.
	AppendSummary(ctx context.Context, summary chat.Summary) error

	// DeleteSummary removes a summary from the archive and drops its marker
	// message from the history, if still present. Returns ErrSummaryNotFound
	// when no summary with that ID exists. The compressed messages are not
	// restored; deletion is one-way.
	DeleteSummary(ctx context.Context, conversationID string, summaryID string) error

	// ListConversations returns the IDs of all known conversations.
	ListConversations(ctx context.Context) ([]string, error)
}

// SummaryResult is a single hit from a semantic summary search.
type SummaryResult struct {
	Summary chat.Summary
	// Distance is the cosine distance between the query and the summary
	// embedding. Smaller is more similar.
	Distance float64
}

// SummarySearcher is the optional semantic-search capability of a Store.
// Only embedding-backed stores implement it; callers discover it with a
// type assertion.
type SummarySearcher interface {
	// SearchSummaries returns the topK summaries of a conversation closest
	// in meaning to the query, most similar first.
	SearchSummaries(ctx context.Context, conversationID string, query string, topK int) ([]SummaryResult, error)
}
