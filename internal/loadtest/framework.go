// Package loadtest drives closed-loop streaming load against a completions
// endpoint and reduces the per-request outcomes into a verdict.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultProgressInterval is how often a running test logs its counters.
const DefaultProgressInterval = 5 * time.Second

// Config defines the shape of a run.
type Config struct {
	Name             string
	Workers          int           // Concurrent lanes
	Duration         time.Duration // Window during which new requests may start
	ProgressInterval time.Duration // 0 uses DefaultProgressInterval, <0 disables
}

// Validate rejects non-positive workers and durations.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("loadtest: workers must be positive, got %d", c.Workers)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("loadtest: duration must be positive, got %v", c.Duration)
	}
	return nil
}

// Framework runs a fixed pool of lanes. Each lane issues requests back to
// back until the duration elapses or the run context is cancelled.
type Framework struct {
	config    Config
	requester Requester
	prompts   *PromptSet
	agg       *Aggregator
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates a framework. A nil aggregator is replaced by an empty one.
func New(config Config, requester Requester, prompts *PromptSet, agg *Aggregator, logger *zap.Logger) (*Framework, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, errors.New("loadtest: requester is required")
	}
	if prompts == nil || prompts.Len() == 0 {
		return nil, errors.New("loadtest: prompt set is empty")
	}
	if agg == nil {
		agg = NewAggregator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ProgressInterval == 0 {
		config.ProgressInterval = DefaultProgressInterval
	}

	return &Framework{
		config:    config,
		requester: requester,
		prompts:   prompts,
		agg:       agg,
		logger:    logger,
	}, nil
}

// Aggregator returns the aggregator the framework feeds.
func (f *Framework) Aggregator() *Aggregator { return f.agg }

// Run executes the test and returns the finalized snapshot.
//
// Cancelling ctx stops new requests the same way the deadline does. Requests
// already in flight are never severed; they settle under their own timeout and
// Run returns only after every started request has produced an outcome.
func (f *Framework) Run(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return Snapshot{}, errors.New("loadtest: test already running")
	}
	f.running = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	start := time.Now()
	stopCtx, stop := context.WithDeadline(ctx, start.Add(f.config.Duration))
	defer stop()

	// Requests keep ctx values but not its cancellation.
	reqCtx := context.WithoutCancel(ctx)

	f.logger.Info("load test started",
		zap.String("name", f.config.Name),
		zap.Int("workers", f.config.Workers),
		zap.Duration("duration", f.config.Duration),
		zap.Int("prompts", f.prompts.Len()),
	)

	progressDone := make(chan struct{})
	if f.config.ProgressInterval > 0 {
		go f.reportProgress(stopCtx, start, progressDone)
	} else {
		close(progressDone)
	}

	var wg sync.WaitGroup
	for lane := 0; lane < f.config.Workers; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			f.lane(stopCtx, reqCtx, lane)
		}(lane)
	}

	wg.Wait()
	stop()
	<-progressDone
	end := time.Now()

	snapshot := f.agg.Finalize(start, end)
	f.logger.Info("load test finished",
		zap.String("name", f.config.Name),
		zap.Int("total", snapshot.TotalRequests),
		zap.Int("failed", snapshot.Failed),
		zap.Duration("wall", end.Sub(start)),
		zap.Bool("interrupted", ctx.Err() != nil),
	)
	return snapshot, nil
}

// lane is one sequential request loop.
func (f *Framework) lane(stopCtx, reqCtx context.Context, lane int) {
	lanes := f.config.Workers
	for iter := int64(0); ; iter++ {
		if stopCtx.Err() != nil {
			return
		}

		idx := PromptIndex(lane, iter, lanes, f.prompts.Len())
		o := f.requester.Execute(reqCtx, f.prompts.At(int64(idx)))
		o.Lane = lane
		o.Sequence = int64(lane) + iter*int64(lanes)
		f.agg.Add(o)
	}
}

func (f *Framework) reportProgress(ctx context.Context, start time.Time, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, failed := f.agg.Count()
			f.logger.Info("load test progress",
				zap.Int("completed", total),
				zap.Int("failed", failed),
				zap.Duration("elapsed", time.Since(start).Round(time.Second)),
			)
		}
	}
}
