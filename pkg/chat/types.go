// Package chat defines the core conversation data model shared by the
// Reverie pipeline: messages, summaries, per-conversation settings, and
// prompt template stubs.
//
// All types are plain data and safe to copy. JSON field names mirror the
// on-disk document format, so persisted conversations round-trip without a
// translation layer.
package chat

import "unicode/utf8"

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message written by the human participant.
	RoleUser Role = "user"

	// RoleModel marks a message generated by the AI character.
	RoleModel Role = "model"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleModel
}

// Range is a contiguous half-open index interval [Start, End) over a
// conversation's message list.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of messages covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Message is a single turn in a conversation history. Messages are immutable
// once written; list position is the sole ordering guarantee.
type Message struct {
	// Role is the author of the message ("user" or "model").
	Role Role `json:"role"`

	// Text is the message content.
	Text string `json:"text"`

	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// IsSummaryMarker is true for synthetic entries produced by a
	// summarisation pass. Marker text is excluded from threshold counting.
	IsSummaryMarker bool `json:"isSummaryMarker,omitempty"`

	// OriginalRange records, for summary markers, the message indices that
	// were compressed — valid at summarisation time only. Indices shift as
	// the list is edited, so this is advisory, not a live pointer.
	OriginalRange *Range `json:"originalRange,omitempty"`

	// SummaryID links a summary marker to its entry in the summaries index.
	SummaryID string `json:"summaryId,omitempty"`
}

// Summary is an index entry for one summarisation pass. The same text also
// appears in the history as a marker [Message]; the index exists so clients
// can list and delete summaries independently of the main history.
type Summary struct {
	// ID uniquely identifies the summary within its conversation.
	ID string `json:"id"`

	// ConversationID is the owning conversation key.
	ConversationID string `json:"conversationId"`

	// Text is the generated summary (unwrapped).
	Text string `json:"text"`

	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// OriginalRange is the compressed message range at summarisation time.
	OriginalRange Range `json:"originalRange"`
}

// Settings holds per-conversation summarisation configuration. Created with
// defaults on first access; overwritten, never deleted.
type Settings struct {
	// Enabled gates the whole pipeline. When false every pass is a no-op.
	Enabled bool `json:"enabled"`

	// SummaryThreshold is the accumulated raw-character count above which a
	// pass is triggered.
	SummaryThreshold int `json:"summaryThreshold"`

	// SummaryLength is the target summary length in characters, passed to the
	// prompt assembler as guidance for the model.
	SummaryLength int `json:"summaryLength"`

	// LastSummarizedAt is the completion time of the most recent successful
	// pass, in Unix milliseconds. Zero when no pass has run.
	LastSummarizedAt int64 `json:"lastSummarizedAt"`
}

// Default settings applied on first access to a conversation.
const (
	DefaultSummaryThreshold = 6000
	DefaultSummaryLength    = 1000
)

// DefaultSettings returns the settings a conversation receives before any
// explicit configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled:          true,
		SummaryThreshold: DefaultSummaryThreshold,
		SummaryLength:    DefaultSummaryLength,
	}
}

// PromptStub is one role/content entry of a user-editable prompt template.
// The content of the last user-role stub carries the input placeholder.
type PromptStub struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// RawLength sums the character length of all non-marker message texts.
// Lengths count runes, not bytes, so multi-byte scripts do not hit the
// trigger threshold early. Summary markers are excluded so already-compressed
// content never counts toward the threshold again.
func RawLength(messages []Message) int {
	total := 0
	for _, m := range messages {
		if m.IsSummaryMarker {
			continue
		}
		total += utf8.RuneCountInString(m.Text)
	}
	return total
}
