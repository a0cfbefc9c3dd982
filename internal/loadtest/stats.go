package loadtest

import (
	"math"
	"sort"
	"time"
)

// Snapshot is the finalized, read-only view of a run. Every field can be
// recomputed from the set of outcomes and the wall-clock duration alone.
type Snapshot struct {
	TotalRequests        int                `json:"total_requests"`
	Successful           int                `json:"successful"`
	Failed               int                `json:"failed"`
	ErrorRate            float64            `json:"error_rate"`
	ServerErrorRate      float64            `json:"server_error_rate"`
	StatusCodeCounts     map[string]int     `json:"status_code_counts"`
	OutcomeCounts        map[Completion]int `json:"outcome_counts"`
	TTFTSamples          int                `json:"ttft_samples"`
	TTFTP50Ms            *float64           `json:"ttft_p50_ms"`
	TTFTP95Ms            *float64           `json:"ttft_p95_ms"`
	TotalTokens          int64              `json:"total_tokens"`
	TokensPerSec         float64            `json:"tokens_per_sec"`
	StreamCompletionRate float64            `json:"stream_completion_rate"`
	MalformedLines       int64              `json:"malformed_lines"`
	DurationSeconds      float64            `json:"duration_seconds"`
	StartedAt            time.Time          `json:"started_at"`
	FinishedAt           time.Time          `json:"finished_at"`
}

// tally holds order-independent running sums over outcomes.
type tally struct {
	total      int
	successful int
	serverErrs int
	completed  int
	tokens     int64
	malformed  int64
	statuses   map[string]int
	outcomes   map[Completion]int
	ttft       []time.Duration
}

func newTally() *tally {
	return &tally{
		statuses: make(map[string]int),
		outcomes: make(map[Completion]int),
		ttft:     make([]time.Duration, 0, 1024),
	}
}

func (t *tally) add(o Outcome) {
	t.total++
	if o.Succeeded() {
		t.successful++
	}
	if o.ServerError() {
		t.serverErrs++
	}
	if o.Completion == CompletionCompleted {
		t.completed++
	}
	t.tokens += int64(o.Tokens)
	t.malformed += int64(o.Malformed)
	t.statuses[o.StatusKey()]++
	t.outcomes[o.Completion]++
	if o.HasTTFT {
		t.ttft = append(t.ttft, o.TTFT)
	}
}

func (t *tally) snapshot(start, end time.Time) Snapshot {
	wall := end.Sub(start)
	s := Snapshot{
		TotalRequests:    t.total,
		Successful:       t.successful,
		Failed:           t.total - t.successful,
		StatusCodeCounts: make(map[string]int, len(t.statuses)),
		OutcomeCounts:    make(map[Completion]int, len(t.outcomes)),
		TTFTSamples:      len(t.ttft),
		TotalTokens:      t.tokens,
		MalformedLines:   t.malformed,
		DurationSeconds:  wall.Seconds(),
		StartedAt:        start,
		FinishedAt:       end,
	}
	for k, v := range t.statuses {
		s.StatusCodeCounts[k] = v
	}
	for k, v := range t.outcomes {
		s.OutcomeCounts[k] = v
	}

	s.ErrorRate = ratio(s.Failed, t.total)
	s.ServerErrorRate = ratio(t.serverErrs, t.total)
	s.StreamCompletionRate = ratio(t.completed, t.total)
	if wall > 0 {
		s.TokensPerSec = float64(t.tokens) / wall.Seconds()
	}

	sorted := make([]float64, len(t.ttft))
	for i, d := range t.ttft {
		sorted[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(sorted)
	if v, ok := Percentile(sorted, 50); ok {
		s.TTFTP50Ms = &v
	}
	if v, ok := Percentile(sorted, 95); ok {
		s.TTFTP95Ms = &v
	}

	return s
}

// Summarize builds a snapshot from a complete set of outcomes. The result
// does not depend on the order of outcomes.
func Summarize(outcomes []Outcome, start, end time.Time) Snapshot {
	t := newTally()
	for _, o := range outcomes {
		t.add(o)
	}
	return t.snapshot(start, end)
}

// ratio returns n/d, treating an empty population as 0.
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Percentile returns the pth percentile (0-100) of an ascending sample using
// linear interpolation between closest ranks: rank = p/100 * (n-1).
// It reports false for an empty sample or an out-of-range p.
func Percentile(sorted []float64, p float64) (float64, bool) {
	if len(sorted) == 0 || p < 0 || p > 100 || math.IsNaN(p) {
		return 0, false
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1], true
	}

	weight := rank - float64(lower)
	return sorted[lower] + weight*(sorted[upper]-sorted[lower]), true
}
