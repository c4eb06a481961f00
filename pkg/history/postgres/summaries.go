package postgres

import (
	"context"
	"fmt"
	"log/slog"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
)

// Summaries implements history.Store. Summaries come back oldest first.
func (s *Store) Summaries(ctx context.Context, conversationID string) ([]chat.Summary, error) {
	const q = `
		SELECT id, conversation_id, text, created_at, range_start, range_end
		FROM   summaries
		WHERE  conversation_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("postgres summaries: query: %w", err)
	}
	defer rows.Close()

	summaries := []chat.Summary{}
	for rows.Next() {
		var sum chat.Summary
		if err := rows.Scan(&sum.ID, &sum.ConversationID, &sum.Text, &sum.Timestamp,
			&sum.OriginalRange.Start, &sum.OriginalRange.End); err != nil {
			return nil, fmt.Errorf("postgres summaries: scan: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres summaries: rows: %w", err)
	}
	return summaries, nil
}

// AppendSummary implements history.Store. When the store was constructed
// with an embeddings provider, the summary text is embedded and stored
// alongside the row; embedding failures do not lose the summary, the vector
// is simply left NULL and the summary stays reachable by listing.
func (s *Store) AppendSummary(ctx context.Context, sum chat.Summary) error {
	var vec *pgvector.Vector
	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, sum.Text)
		if err != nil {
			slog.Warn("postgres append summary: embedding failed, storing without vector",
				"conversation", sum.ConversationID,
				"summary", sum.ID,
				"err", err)
		} else {
			v := pgvector.NewVector(embedding)
			vec = &v
		}
	}

	const q = `
		INSERT INTO summaries
		    (id, conversation_id, text, created_at, range_start, range_end, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    text      = EXCLUDED.text,
		    embedding = EXCLUDED.embedding`

	if _, err := s.pool.Exec(ctx, q,
		sum.ID, sum.ConversationID, sum.Text, sum.Timestamp,
		sum.OriginalRange.Start, sum.OriginalRange.End, vec,
	); err != nil {
		return fmt.Errorf("postgres append summary: %w", err)
	}
	return nil
}

// DeleteSummary implements history.Store.
func (s *Store) DeleteSummary(ctx context.Context, conversationID string, summaryID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM summaries WHERE conversation_id = $1 AND id = $2`,
		conversationID, summaryID,
	)
	if err != nil {
		return fmt.Errorf("postgres delete summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres delete summary %q: %w", summaryID, history.ErrSummaryNotFound)
	}

	// Drop the marker message too, when the history still carries it.
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_messages
		 WHERE conversation_id = $1 AND is_summary_marker AND summary_id = $2`,
		conversationID, summaryID,
	); err != nil {
		return fmt.Errorf("postgres delete summary marker: %w", err)
	}
	return nil
}

// SearchSummaries implements history.SummarySearcher. It embeds the query
// and returns the topK summaries of the conversation ordered by ascending
// cosine distance. Summaries without an embedding are never returned.
//
// Without an embeddings provider the store cannot answer semantic queries
// and reports [history.ErrSearchUnsupported], same as a backend that has no
// search at all.
func (s *Store) SearchSummaries(ctx context.Context, conversationID string, query string, topK int) ([]history.SummaryResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("postgres search summaries: %w", history.ErrSearchUnsupported)
	}
	if topK <= 0 {
		topK = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres search summaries: embed query: %w", err)
	}

	const q = `
		SELECT id, conversation_id, text, created_at, range_start, range_end,
		       embedding <=> $1 AS distance
		FROM   summaries
		WHERE  conversation_id = $2
		  AND  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), conversationID, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres search summaries: query: %w", err)
	}
	defer rows.Close()

	results := []history.SummaryResult{}
	for rows.Next() {
		var r history.SummaryResult
		if err := rows.Scan(&r.Summary.ID, &r.Summary.ConversationID, &r.Summary.Text,
			&r.Summary.Timestamp, &r.Summary.OriginalRange.Start, &r.Summary.OriginalRange.End,
			&r.Distance); err != nil {
			return nil, fmt.Errorf("postgres search summaries: scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres search summaries: rows: %w", err)
	}
	return results, nil
}
