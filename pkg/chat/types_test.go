package chat

import (
	"strings"
	"testing"
)

func TestRawLength(t *testing.T) {
	t.Run("sums plain message text", func(t *testing.T) {
		msgs := []Message{
			{Role: RoleUser, Text: "hello"},
			{Role: RoleModel, Text: "world!"},
		}
		if got := RawLength(msgs); got != 11 {
			t.Errorf("RawLength() = %d, want 11", got)
		}
	})

	t.Run("excludes summary markers", func(t *testing.T) {
		msgs := []Message{
			{Role: RoleUser, Text: strings.Repeat("a", 100)},
			{Role: RoleUser, Text: strings.Repeat("s", 500), IsSummaryMarker: true},
			{Role: RoleModel, Text: strings.Repeat("b", 50)},
		}
		if got := RawLength(msgs); got != 150 {
			t.Errorf("RawLength() = %d, want 150 (marker text must not count)", got)
		}
	})

	t.Run("counts characters, not bytes", func(t *testing.T) {
		msgs := []Message{
			{Role: RoleUser, Text: "こんにちは"},   // 5 runes, 15 bytes
			{Role: RoleModel, Text: "naïve"}, // 5 runes, 6 bytes
		}
		if got := RawLength(msgs); got != 10 {
			t.Errorf("RawLength() = %d, want 10 (rune count)", got)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		if got := RawLength(nil); got != 0 {
			t.Errorf("RawLength(nil) = %d, want 0", got)
		}
	})
}

func TestRangeLen(t *testing.T) {
	r := Range{Start: 3, End: 17}
	if r.Len() != 14 {
		t.Errorf("Len() = %d, want 14", r.Len())
	}
}

func TestRoleIsValid(t *testing.T) {
	for _, valid := range []Role{RoleUser, RoleModel} {
		if !valid.IsValid() {
			t.Errorf("expected %q to be valid", valid)
		}
	}
	if Role("assistant").IsValid() {
		t.Error("expected \"assistant\" to be invalid")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if !s.Enabled {
		t.Error("expected summarisation enabled by default")
	}
	if s.SummaryThreshold != DefaultSummaryThreshold {
		t.Errorf("threshold = %d, want %d", s.SummaryThreshold, DefaultSummaryThreshold)
	}
	if s.SummaryLength != DefaultSummaryLength {
		t.Errorf("length = %d, want %d", s.SummaryLength, DefaultSummaryLength)
	}
	if s.LastSummarizedAt != 0 {
		t.Errorf("lastSummarizedAt = %d, want 0", s.LastSummarizedAt)
	}
}
