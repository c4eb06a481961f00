// Package summary implements the conversation summarisation pipeline:
// deciding when a history is due ([Due]), which slice of it to compress
// ([SelectRange]), assembling the prompt ([Assembler]), running the LLM, and
// splicing the generated summary back into the history ([Splice]). The
// [Service] orchestrates a full pass; the [Sweeper] runs passes periodically
// across all conversations.
package summary

import (
	"math"

	"github.com/MrWong99/reverie/pkg/chat"
)

const (
	// headKeep is how many leading messages the default selection preserves
	// so the conversation keeps its opening context.
	headKeep = 3

	// tailKeep is how many trailing messages the default selection preserves
	// so the model retains verbatim recency.
	tailKeep = 3

	// smallHistoryMax is the largest history that gets summarised whole;
	// keeping head and tail of anything smaller would leave nothing to
	// compress.
	smallHistoryMax = 6
)

// Bounds restricts the compressed slice to a percentage window of the
// history. Start and End are percentages in [0, 100] with Start < End.
type Bounds struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// SelectRange picks the half-open message range [start, end) to compress out
// of a history of n messages. It reports false when no usable range exists.
//
// With explicit bounds the range is floor(n*Start/100) to ceil(n*End/100),
// clamped to [0, n]. Without bounds, small histories (n <= smallHistoryMax)
// are compressed whole; larger ones keep the first headKeep and last tailKeep
// messages intact.
//
// force widens a default selection to the whole history and rescues a
// too-narrow bounded selection by falling back to [0, n).
func SelectRange(n int, bounds *Bounds, force bool) (chat.Range, bool) {
	if n <= 0 {
		return chat.Range{}, false
	}

	var r chat.Range
	switch {
	case bounds != nil:
		start := n * bounds.Start / 100
		end := int(math.Ceil(float64(n) * float64(bounds.End) / 100))
		r = chat.Range{Start: clamp(start, 0, n), End: clamp(end, 0, n)}
	case n <= smallHistoryMax || force:
		r = chat.Range{Start: 0, End: n}
	default:
		r = chat.Range{Start: headKeep, End: n - tailKeep}
	}

	if r.Len() < 1 {
		if !force {
			return chat.Range{}, false
		}
		r = chat.Range{Start: 0, End: n}
	}
	return r, true
}

// Due reports whether a history has accumulated enough raw text to trigger
// an automatic summarisation pass. Only non-marker messages count towards
// the threshold, so an already-compressed history does not re-trigger on the
// summary text itself.
func Due(messages []chat.Message, settings chat.Settings) bool {
	if !settings.Enabled {
		return false
	}
	threshold := settings.SummaryThreshold
	if threshold <= 0 {
		threshold = chat.DefaultSummaryThreshold
	}
	return chat.RawLength(messages) >= threshold
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
