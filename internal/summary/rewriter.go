package summary

import (
	"fmt"

	"github.com/MrWong99/reverie/pkg/chat"
)

// markerFormat wraps the generated summary text so clients render the marker
// distinctly from ordinary turns.
const markerFormat = "[Previous events summary]: %s"

// NewMarker builds the summary-marker message that replaces a compressed
// range. The marker is a user-role entry carrying the summary ID so a later
// deletion can locate it, and it records which range it stands in for.
//
// timestamp must be the timestamp of the last compressed message, not the
// time of the pass: the marker sits mid-list, and giving it the wall clock
// would break the chronological ordering of the rewritten history.
func NewMarker(sum chat.Summary, timestamp int64) chat.Message {
	r := sum.OriginalRange
	return chat.Message{
		Role:            chat.RoleUser,
		Text:            fmt.Sprintf(markerFormat, sum.Text),
		Timestamp:       timestamp,
		IsSummaryMarker: true,
		OriginalRange:   &r,
		SummaryID:       sum.ID,
	}
}

// Splice returns a new history with the messages in r replaced by marker.
// The input slice is not modified. The result has len(messages)-r.Len()+1
// elements.
func Splice(messages []chat.Message, r chat.Range, marker chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages)-r.Len()+1)
	out = append(out, messages[:r.Start]...)
	out = append(out, marker)
	out = append(out, messages[r.End:]...)
	return out
}
