package loadtest

import (
	"sync"
	"time"
)

// Observer receives every outcome as it is aggregated. Implementations must
// be safe for concurrent use.
type Observer interface {
	Observe(Outcome)
}

// Aggregator accumulates outcomes from concurrent lanes. Each Add is applied
// as a unit under the lock, so Finalize never sees half an outcome.
type Aggregator struct {
	mu        sync.Mutex
	tally     *tally
	keep      bool
	outcomes  []Outcome
	observers []Observer
	final     *Snapshot
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithOutcomes retains every outcome so it can be written to the artifact.
func WithOutcomes() AggregatorOption {
	return func(a *Aggregator) { a.keep = true }
}

// WithObserver registers an observer notified on every Add.
func WithObserver(o Observer) AggregatorOption {
	return func(a *Aggregator) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{tally: newTally()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add folds one outcome into the running totals. Adds after Finalize are ignored.
func (a *Aggregator) Add(o Outcome) {
	a.mu.Lock()
	if a.final != nil {
		a.mu.Unlock()
		return
	}
	a.tally.add(o)
	if a.keep {
		a.outcomes = append(a.outcomes, o)
	}
	a.mu.Unlock()

	for _, obs := range a.observers {
		obs.Observe(o)
	}
}

// Count returns the number of outcomes aggregated so far.
func (a *Aggregator) Count() (total, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tally.total, a.tally.total - a.tally.successful
}

// Finalize freezes the aggregator and returns the snapshot for the run
// window [start, end]. Later calls return the first snapshot.
func (a *Aggregator) Finalize(start, end time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final == nil {
		s := a.tally.snapshot(start, end)
		a.final = &s
	}
	return *a.final
}

// Outcomes returns the retained outcomes, or nil if retention is off.
func (a *Aggregator) Outcomes() []Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.keep {
		return nil
	}
	out := make([]Outcome, len(a.outcomes))
	copy(out, a.outcomes)
	return out
}
