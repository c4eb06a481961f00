package summary

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reverie/internal/observe"
	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
	"github.com/MrWong99/reverie/pkg/provider/llm"
)

// Reasons a pass can finish without rewriting the history.
const (
	// ReasonDisabled: summarisation is switched off for the conversation.
	// Not even force overrides it.
	ReasonDisabled = "disabled"

	// ReasonBelowThreshold: the raw history is shorter than the trigger
	// threshold and the pass was not forced.
	ReasonBelowThreshold = "below-threshold"

	// ReasonEmptyRange: range selection produced no messages to compress.
	ReasonEmptyRange = "empty-range"

	// ReasonProviderError: the LLM call failed; the history stays untouched.
	ReasonProviderError = "provider-error"
)

// RunResult is the outcome of one summarisation pass.
type RunResult struct {
	// Ran is true when the history was rewritten.
	Ran bool
	// Reason explains why the pass did not run. Empty when Ran is true.
	Reason string
	// Summary is the generated summary. Zero value unless Ran is true.
	Summary chat.Summary
	// Messages is the conversation history after the pass: rewritten when
	// Ran is true, the original otherwise.
	Messages []chat.Message
}

// Service orchestrates summarisation passes over conversations. Passes for
// the same conversation are serialised by a per-conversation lock so
// concurrent triggers (API call racing the sweeper) cannot splice against a
// stale history. Safe for concurrent use.
type Service struct {
	store     history.Store
	provider  llm.Provider
	assembler *Assembler
	metrics   *observe.Metrics

	now   func() time.Time
	newID func() string

	mu     sync.RWMutex
	bounds *Bounds

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithTemplate sets the initial prompt template.
func WithTemplate(template []chat.PromptStub) Option {
	return func(s *Service) {
		s.assembler.SetTemplate(template)
	}
}

// WithBounds restricts range selection to a percentage window.
func WithBounds(b *Bounds) Option {
	return func(s *Service) {
		s.bounds = b
	}
}

// WithClock overrides the time source. Tests use this for deterministic
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides summary ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithMetrics sets the metrics sink. Without it no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service using store for persistence and provider for
// summary generation.
func NewService(store history.Store, provider llm.Provider, opts ...Option) *Service {
	s := &Service{
		store:     store,
		provider:  provider,
		assembler: NewAssembler(nil),
		now:       time.Now,
		newID:     randomID,
		locks:     map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetTemplate swaps the prompt template at runtime. Used by the config
// watcher for hot reloads.
func (s *Service) SetTemplate(template []chat.PromptStub) {
	s.assembler.SetTemplate(template)
}

// SetBounds swaps the range-selection bounds at runtime.
func (s *Service) SetBounds(b *Bounds) {
	s.mu.Lock()
	s.bounds = b
	s.mu.Unlock()
}

// Run executes one summarisation pass over a conversation.
//
// force bypasses the length threshold and widens range selection, but never
// overrides a disabled conversation. A failing LLM call is not an error:
// the pass reports ReasonProviderError and the stored history is untouched.
// Only storage failures surface as errors.
func (s *Service) Run(ctx context.Context, conversationID string, force bool) (RunResult, error) {
	unlock := s.lockConversation(conversationID)
	defer unlock()

	started := s.now()

	var (
		settings chat.Settings
		messages []chat.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = s.store.Settings(gctx, conversationID)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = s.store.History(gctx, conversationID)
		return err
	})
	if err := g.Wait(); err != nil {
		return RunResult{}, fmt.Errorf("summary: load conversation %q: %w", conversationID, err)
	}

	trigger := "auto"
	if force {
		trigger = "forced"
	}

	if !settings.Enabled {
		return s.skipped(ctx, started, trigger, ReasonDisabled, messages), nil
	}
	if !force && !Due(messages, settings) {
		return s.skipped(ctx, started, trigger, ReasonBelowThreshold, messages), nil
	}

	s.mu.RLock()
	bounds := s.bounds
	s.mu.RUnlock()

	r, ok := SelectRange(len(messages), bounds, force)
	if !ok {
		return s.skipped(ctx, started, trigger, ReasonEmptyRange, messages), nil
	}

	req := s.assembler.Build(messages[r.Start:r.End], settings.SummaryLength)

	llmStart := s.now()
	resp, err := s.provider.Complete(ctx, req)
	if s.metrics != nil {
		s.metrics.LLMDuration.Record(ctx, s.now().Sub(llmStart).Seconds())
	}
	if err != nil || resp == nil || resp.Content == "" {
		slog.Warn("summarisation pass: LLM completion failed, keeping history",
			"conversation", conversationID,
			"range_start", r.Start,
			"range_end", r.End,
			"err", err)
		return s.skipped(ctx, started, trigger, ReasonProviderError, messages), nil
	}

	nowMillis := s.now().UnixMilli()
	sum := chat.Summary{
		ID:             s.newID(),
		ConversationID: conversationID,
		Text:           resp.Content,
		Timestamp:      nowMillis,
		OriginalRange:  r,
	}
	// The marker inherits the timestamp of the last message it replaces so
	// the rewritten list stays chronologically ordered.
	rewritten := Splice(messages, r, NewMarker(sum, messages[r.End-1].Timestamp))

	// Archive first so the summary survives even if the rewrite fails.
	if err := s.store.AppendSummary(ctx, sum); err != nil {
		slog.Warn("summarisation pass: failed to archive summary",
			"conversation", conversationID, "summary", sum.ID, "err", err)
	}

	if err := s.store.ReplaceHistory(ctx, conversationID, rewritten); err != nil {
		return RunResult{}, fmt.Errorf("summary: rewrite history %q: %w", conversationID, err)
	}

	settings.LastSummarizedAt = nowMillis
	if err := s.store.SaveSettings(ctx, conversationID, settings); err != nil {
		slog.Warn("summarisation pass: failed to update settings",
			"conversation", conversationID, "err", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSummarisationPass(ctx, s.now().Sub(started), trigger, "ok", r.Len())
	}
	slog.Info("summarisation pass complete",
		"conversation", conversationID,
		"summary", sum.ID,
		"compressed", r.Len(),
		"history_len", len(rewritten))

	return RunResult{Ran: true, Summary: sum, Messages: rewritten}, nil
}

// skipped records a non-rewriting pass outcome and returns its result.
func (s *Service) skipped(ctx context.Context, started time.Time, trigger, reason string, messages []chat.Message) RunResult {
	if s.metrics != nil {
		s.metrics.RecordSummarisationPass(ctx, s.now().Sub(started), trigger, reason, 0)
	}
	return RunResult{Reason: reason, Messages: messages}
}

// lockConversation acquires the per-conversation lock and returns its
// release func.
func (s *Service) lockConversation(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// randomID returns a short random hex identifier for summaries.
func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sum-%d", time.Now().UnixNano())
	}
	return "sum-" + hex.EncodeToString(b)
}
