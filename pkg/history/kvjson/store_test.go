package kvjson

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestHistory_EmptyConversation(t *testing.T) {
	s := newTestStore(t)

	got, err := s.History(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil empty slice for unknown conversation")
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(got))
	}
}

func TestAppendAndReplaceHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msgs := []chat.Message{
		{Role: chat.RoleUser, Text: "hello", Timestamp: 1},
		{Role: chat.RoleModel, Text: "hi there", Timestamp: 2},
	}
	for _, m := range msgs {
		if err := s.AppendMessage(ctx, "conv-1", m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Text != "hello" || got[1].Text != "hi there" {
		t.Errorf("unexpected history order: %+v", got)
	}

	marker := chat.Message{
		Role:            chat.RoleUser,
		Text:            "[Previous events summary]: they greeted each other.",
		IsSummaryMarker: true,
		OriginalRange:   &chat.Range{Start: 0, End: 2},
	}
	if err := s.ReplaceHistory(ctx, "conv-1", []chat.Message{marker}); err != nil {
		t.Fatalf("ReplaceHistory: %v", err)
	}

	got, err = s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History after replace: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message after replace, got %d", len(got))
	}
	if !got[0].IsSummaryMarker {
		t.Error("expected summary marker to round-trip")
	}
	if got[0].OriginalRange == nil || got[0].OriginalRange.End != 2 {
		t.Errorf("expected originalRange to round-trip, got %+v", got[0].OriginalRange)
	}
}

func TestSettings_DefaultsWhenMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Settings(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	want := chat.DefaultSettings()
	if got != want {
		t.Errorf("Settings = %+v, want defaults %+v", got, want)
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := chat.Settings{
		Enabled:          true,
		SummaryThreshold: 9000,
		SummaryLength:    500,
		LastSummarizedAt: 1234,
	}
	if err := s.SaveSettings(ctx, "conv-1", want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := s.Settings(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != want {
		t.Errorf("Settings = %+v, want %+v", got, want)
	}
}

func TestSummaries_AppendAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sums := []chat.Summary{
		{ID: "s1", ConversationID: "conv-1", Text: "first arc", OriginalRange: chat.Range{Start: 0, End: 10}},
		{ID: "s2", ConversationID: "conv-1", Text: "second arc", OriginalRange: chat.Range{Start: 10, End: 20}},
	}
	for _, sum := range sums {
		if err := s.AppendSummary(ctx, sum); err != nil {
			t.Fatalf("AppendSummary: %v", err)
		}
	}

	got, err := s.Summaries(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}

	if err := s.DeleteSummary(ctx, "conv-1", "s1"); err != nil {
		t.Fatalf("DeleteSummary: %v", err)
	}
	got, err = s.Summaries(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Summaries after delete: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("unexpected summaries after delete: %+v", got)
	}
}

func TestDeleteSummary_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteSummary(context.Background(), "conv-1", "nope")
	if !errors.Is(err, history.ErrSummaryNotFound) {
		t.Errorf("expected ErrSummaryNotFound, got %v", err)
	}
}

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// IDs with path separators must survive the escape round-trip.
	ids := []string{"plain", "with/slash", "with space"}
	for _, id := range ids {
		if err := s.AppendMessage(ctx, id, chat.Message{Role: chat.RoleUser, Text: "x"}); err != nil {
			t.Fatalf("AppendMessage(%q): %v", id, err)
		}
	}

	got, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("expected %d conversations, got %d (%v)", len(ids), len(got), got)
	}
	found := map[string]bool{}
	for _, id := range got {
		found[id] = true
	}
	for _, id := range ids {
		if !found[id] {
			t.Errorf("missing conversation %q in %v", id, got)
		}
	}
}

func TestWriteDoc_NoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, "conv-1", chat.Message{Role: chat.RoleUser, Text: "x"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, "conv-1"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != historyFile {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestSettings_ConfiguredDefaults(t *testing.T) {
	custom := chat.Settings{Enabled: true, SummaryThreshold: 9000, SummaryLength: 400}
	s, err := New(t.TempDir(), WithDefaultSettings(custom))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := s.Settings(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != custom {
		t.Errorf("settings = %+v, want configured defaults %+v", got, custom)
	}

	// Explicitly saved settings still win.
	saved := chat.Settings{Enabled: false, SummaryThreshold: 100, SummaryLength: 50}
	if err := s.SaveSettings(context.Background(), "conv-1", saved); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err = s.Settings(context.Background(), "conv-1")
	if err != nil || got != saved {
		t.Errorf("settings = %+v (err %v), want saved %+v", got, err, saved)
	}
}

func TestDeleteSummary_RemovesMarkerMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sum := chat.Summary{ID: "s1", ConversationID: "conv-1", Text: "recap"}
	if err := s.AppendSummary(ctx, sum); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}
	history := []chat.Message{
		{Role: chat.RoleUser, Text: "before", Timestamp: 1},
		{Role: chat.RoleUser, Text: "[Previous events summary]: recap", Timestamp: 2, IsSummaryMarker: true, SummaryID: "s1"},
		{Role: chat.RoleModel, Text: "after", Timestamp: 3},
	}
	if err := s.ReplaceHistory(ctx, "conv-1", history); err != nil {
		t.Fatalf("ReplaceHistory: %v", err)
	}

	if err := s.DeleteSummary(ctx, "conv-1", "s1"); err != nil {
		t.Fatalf("DeleteSummary: %v", err)
	}

	got, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("history = %d messages, want 2", len(got))
	}
	for _, m := range got {
		if m.IsSummaryMarker {
			t.Errorf("marker message still present: %+v", m)
		}
	}
}
