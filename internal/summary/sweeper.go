package summary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reverie/internal/observe"
	"github.com/MrWong99/reverie/pkg/history"
)

// defaultSweepInterval is the default period between sweep ticks.
const defaultSweepInterval = 5 * time.Minute

// sweepConcurrency caps how many conversations one sweep summarises at once,
// keeping the LLM provider from being hammered by a large backlog.
const sweepConcurrency = 4

// Sweeper periodically runs summarisation passes over every known
// conversation, so histories that grew past their threshold between API
// calls still get compressed. Clients that only append messages and never
// call the summarise endpoint rely on this.
//
// All methods are safe for concurrent use.
type Sweeper struct {
	service  *Service
	store    history.Store
	interval time.Duration
	metrics  *observe.Metrics

	done     chan struct{}
	stopOnce sync.Once
}

// SweeperConfig configures a [Sweeper].
type SweeperConfig struct {
	// Service runs the actual summarisation passes.
	Service *Service

	// Store is used to enumerate conversations.
	Store history.Store

	// Interval is how often to sweep. Defaults to 5 minutes if zero.
	Interval time.Duration

	// Metrics is the optional metrics sink.
	Metrics *observe.Metrics
}

// NewSweeper creates a new [Sweeper] with the given configuration.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		service:  cfg.Service,
		store:    cfg.Store,
		interval: interval,
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
	}
}

// Start begins periodic sweeping in a background goroutine. The goroutine
// runs until [Sweeper.Stop] is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the sweep loop. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// SweepNow performs an immediate sweep over all conversations. Individual
// pass failures are logged and do not abort the sweep; the returned error
// covers only the conversation listing.
func (s *Sweeper) SweepNow(ctx context.Context) error {
	ids, err := s.store.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("sweep: list conversations: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if s.metrics != nil {
				s.metrics.ActiveSweeps.Add(gctx, 1)
				defer s.metrics.ActiveSweeps.Add(gctx, -1)
			}
			result, err := s.service.Run(gctx, id, false)
			if err != nil {
				slog.Warn("sweep: pass failed", "conversation", id, "error", err)
				return nil
			}
			if result.Ran {
				slog.Debug("sweep: conversation summarised",
					"conversation", id, "summary", result.Summary.ID)
			}
			return nil
		})
	}
	return g.Wait()
}

// loop runs the periodic sweep ticker.
func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.SweepNow(ctx); err != nil {
				slog.Warn("periodic sweep failed", "error", err)
			}
		}
	}
}
