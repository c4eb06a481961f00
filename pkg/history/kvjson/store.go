// Package kvjson provides a file-backed implementation of history.Store.
//
// Each conversation lives in its own directory under the store root, named
// by the URL-escaped conversation ID, and holds three JSON documents:
//
//	<root>/<id>/history.json   — the full message list
//	<root>/<id>/settings.json  — summarisation settings
//	<root>/<id>/summaries.json — archived summaries
//
// Documents are written whole via a temp file and an atomic rename, so a
// crash mid-write never leaves a torn document behind. The layout mirrors
// the key-value storage of roleplay chat frontends, which keep one JSON
// document per conversation.
package kvjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
)

// Compile-time interface assertion.
var _ history.Store = (*Store)(nil)

const (
	historyFile   = "history.json"
	settingsFile  = "settings.json"
	summariesFile = "summaries.json"
)

// Store implements history.Store on top of a directory of JSON documents.
// All methods are safe for concurrent use; a single lock serialises file
// access, which is adequate for the write rates of a chat backend.
type Store struct {
	root     string
	defaults chat.Settings
	mu       sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultSettings sets the settings returned for conversations that have
// never stored any. Without this option, chat.DefaultSettings() is used.
func WithDefaultSettings(settings chat.Settings) Option {
	return func(s *Store) { s.defaults = settings }
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("kvjson: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvjson: create root: %w", err)
	}
	s := &Store{root: dir, defaults: chat.DefaultSettings()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// convDir returns the directory for a conversation. IDs are URL-escaped so
// arbitrary external IDs cannot traverse outside the root.
func (s *Store) convDir(conversationID string) string {
	return filepath.Join(s.root, url.PathEscape(conversationID))
}

// History implements history.Store.
func (s *Store) History(ctx context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []chat.Message
	if err := s.readDoc(ctx, conversationID, historyFile, &messages); err != nil {
		return nil, fmt.Errorf("kvjson: read history: %w", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

// ReplaceHistory implements history.Store.
func (s *Store) ReplaceHistory(ctx context.Context, conversationID string, messages []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeDoc(ctx, conversationID, historyFile, messages); err != nil {
		return fmt.Errorf("kvjson: replace history: %w", err)
	}
	return nil
}

// AppendMessage implements history.Store.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []chat.Message
	if err := s.readDoc(ctx, conversationID, historyFile, &messages); err != nil {
		return fmt.Errorf("kvjson: append message: %w", err)
	}
	messages = append(messages, msg)
	if err := s.writeDoc(ctx, conversationID, historyFile, messages); err != nil {
		return fmt.Errorf("kvjson: append message: %w", err)
	}
	return nil
}

// Settings implements history.Store. Missing settings documents yield the
// store defaults.
func (s *Store) Settings(ctx context.Context, conversationID string) (chat.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.defaults
	found, err := s.readDocExists(ctx, conversationID, settingsFile, &settings)
	if err != nil {
		return chat.Settings{}, fmt.Errorf("kvjson: read settings: %w", err)
	}
	if !found {
		return s.defaults, nil
	}
	return settings, nil
}

// SaveSettings implements history.Store.
func (s *Store) SaveSettings(ctx context.Context, conversationID string, settings chat.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeDoc(ctx, conversationID, settingsFile, settings); err != nil {
		return fmt.Errorf("kvjson: save settings: %w", err)
	}
	return nil
}

// Summaries implements history.Store.
func (s *Store) Summaries(ctx context.Context, conversationID string) ([]chat.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []chat.Summary
	if err := s.readDoc(ctx, conversationID, summariesFile, &summaries); err != nil {
		return nil, fmt.Errorf("kvjson: read summaries: %w", err)
	}
	if summaries == nil {
		summaries = []chat.Summary{}
	}
	return summaries, nil
}

// AppendSummary implements history.Store.
func (s *Store) AppendSummary(ctx context.Context, summary chat.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []chat.Summary
	if err := s.readDoc(ctx, summary.ConversationID, summariesFile, &summaries); err != nil {
		return fmt.Errorf("kvjson: append summary: %w", err)
	}
	summaries = append(summaries, summary)
	if err := s.writeDoc(ctx, summary.ConversationID, summariesFile, summaries); err != nil {
		return fmt.Errorf("kvjson: append summary: %w", err)
	}
	return nil
}

// DeleteSummary implements history.Store.
func (s *Store) DeleteSummary(ctx context.Context, conversationID string, summaryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []chat.Summary
	if err := s.readDoc(ctx, conversationID, summariesFile, &summaries); err != nil {
		return fmt.Errorf("kvjson: delete summary: %w", err)
	}

	kept := summaries[:0]
	found := false
	for _, sum := range summaries {
		if sum.ID == summaryID {
			found = true
			continue
		}
		kept = append(kept, sum)
	}
	if !found {
		return fmt.Errorf("kvjson: delete summary %q: %w", summaryID, history.ErrSummaryNotFound)
	}

	if err := s.writeDoc(ctx, conversationID, summariesFile, kept); err != nil {
		return fmt.Errorf("kvjson: delete summary: %w", err)
	}

	// Drop the marker message too, when the history still carries it.
	var messages []chat.Message
	if err := s.readDoc(ctx, conversationID, historyFile, &messages); err != nil {
		return fmt.Errorf("kvjson: delete summary: %w", err)
	}
	keptMsgs := messages[:0]
	removed := false
	for _, m := range messages {
		if m.IsSummaryMarker && m.SummaryID == summaryID {
			removed = true
			continue
		}
		keptMsgs = append(keptMsgs, m)
	}
	if removed {
		if err := s.writeDoc(ctx, conversationID, historyFile, keptMsgs); err != nil {
			return fmt.Errorf("kvjson: delete summary: %w", err)
		}
	}
	return nil
}

// ListConversations implements history.Store.
func (s *Store) ListConversations(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("kvjson: list conversations: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := url.PathUnescape(e.Name())
		if err != nil {
			// Not one of ours; ignore.
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// readDoc unmarshals a conversation document into v. A missing file leaves
// v untouched.
func (s *Store) readDoc(ctx context.Context, conversationID, name string, v any) error {
	_, err := s.readDocExists(ctx, conversationID, name, v)
	return err
}

// readDocExists is readDoc but also reports whether the file existed.
func (s *Store) readDocExists(ctx context.Context, conversationID, name string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := os.ReadFile(filepath.Join(s.convDir(conversationID), name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}

// writeDoc marshals v and atomically replaces the conversation document.
func (s *Store) writeDoc(ctx context.Context, conversationID, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := s.convDir(conversationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
