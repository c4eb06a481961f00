package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/reverie/pkg/chat"
)

// History implements history.Store. Messages come back ordered by their
// sequence number.
func (s *Store) History(ctx context.Context, conversationID string) ([]chat.Message, error) {
	const q = `
		SELECT role, text, sent_at, is_summary_marker, range_start, range_end, summary_id
		FROM   conversation_messages
		WHERE  conversation_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("postgres history: query: %w", err)
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			m          chat.Message
			rangeStart *int
			rangeEnd   *int
		)
		if err := rows.Scan(&m.Role, &m.Text, &m.Timestamp, &m.IsSummaryMarker, &rangeStart, &rangeEnd, &m.SummaryID); err != nil {
			return nil, fmt.Errorf("postgres history: scan: %w", err)
		}
		if rangeStart != nil && rangeEnd != nil {
			m.OriginalRange = &chat.Range{Start: *rangeStart, End: *rangeEnd}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres history: rows: %w", err)
	}
	return messages, nil
}

// ReplaceHistory implements history.Store. The delete and re-insert happen
// in one transaction so readers never observe a partially rewritten history.
func (s *Store) ReplaceHistory(ctx context.Context, conversationID string, messages []chat.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres replace history: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM conversation_messages WHERE conversation_id = $1`,
		conversationID,
	); err != nil {
		return fmt.Errorf("postgres replace history: delete: %w", err)
	}

	batch := &pgx.Batch{}
	for seq, m := range messages {
		var rangeStart, rangeEnd *int
		if m.OriginalRange != nil {
			rangeStart, rangeEnd = &m.OriginalRange.Start, &m.OriginalRange.End
		}
		batch.Queue(
			`INSERT INTO conversation_messages
			     (conversation_id, seq, role, text, sent_at, is_summary_marker, range_start, range_end, summary_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			conversationID, seq, m.Role, m.Text, m.Timestamp, m.IsSummaryMarker, rangeStart, rangeEnd, m.SummaryID,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres replace history: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres replace history: commit: %w", err)
	}
	return nil
}

// AppendMessage implements history.Store.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, m chat.Message) error {
	var rangeStart, rangeEnd *int
	if m.OriginalRange != nil {
		rangeStart, rangeEnd = &m.OriginalRange.Start, &m.OriginalRange.End
	}

	// Next seq is computed in the insert itself so concurrent appends to the
	// same conversation cannot race on a read-modify-write.
	const q = `
		INSERT INTO conversation_messages
		    (conversation_id, seq, role, text, sent_at, is_summary_marker, range_start, range_end, summary_id)
		SELECT $1, COALESCE(MAX(seq), -1) + 1, $2, $3, $4, $5, $6, $7, $8
		FROM   conversation_messages
		WHERE  conversation_id = $1`

	if _, err := s.pool.Exec(ctx, q,
		conversationID, m.Role, m.Text, m.Timestamp, m.IsSummaryMarker, rangeStart, rangeEnd, m.SummaryID,
	); err != nil {
		return fmt.Errorf("postgres append message: %w", err)
	}
	return nil
}

// Settings implements history.Store. Conversations without a stored row get
// the store defaults.
func (s *Store) Settings(ctx context.Context, conversationID string) (chat.Settings, error) {
	const q = `
		SELECT enabled, summary_threshold, summary_length, last_summarized_at
		FROM   conversation_settings
		WHERE  conversation_id = $1`

	var settings chat.Settings
	err := s.pool.QueryRow(ctx, q, conversationID).Scan(
		&settings.Enabled,
		&settings.SummaryThreshold,
		&settings.SummaryLength,
		&settings.LastSummarizedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return chat.Settings{}, fmt.Errorf("postgres settings: %w", err)
	}
	return settings, nil
}

// SaveSettings implements history.Store.
func (s *Store) SaveSettings(ctx context.Context, conversationID string, settings chat.Settings) error {
	const q = `
		INSERT INTO conversation_settings
		    (conversation_id, enabled, summary_threshold, summary_length, last_summarized_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO UPDATE SET
		    enabled            = EXCLUDED.enabled,
		    summary_threshold  = EXCLUDED.summary_threshold,
		    summary_length     = EXCLUDED.summary_length,
		    last_summarized_at = EXCLUDED.last_summarized_at`

	if _, err := s.pool.Exec(ctx, q,
		conversationID,
		settings.Enabled,
		settings.SummaryThreshold,
		settings.SummaryLength,
		settings.LastSummarizedAt,
	); err != nil {
		return fmt.Errorf("postgres save settings: %w", err)
	}
	return nil
}

// ListConversations implements history.Store.
func (s *Store) ListConversations(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT conversation_id FROM conversation_messages`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres list conversations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres list conversations: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list conversations: rows: %w", err)
	}
	return ids, nil
}
