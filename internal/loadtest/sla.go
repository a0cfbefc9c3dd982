package loadtest

import (
	"fmt"
	"math"
	"strings"
)

// Default acceptance thresholds.
const (
	DefaultMaxErrorRate            = 0.05
	DefaultMaxServerErrorRate      = 0.02
	DefaultMinStreamCompletionRate = 0.90
)

// Thresholds are the acceptance limits, each a fraction in [0,1].
type Thresholds struct {
	MaxErrorRate            float64 `json:"max_error_rate" yaml:"max_error_rate"`
	MaxServerErrorRate      float64 `json:"max_5xx_rate" yaml:"max_5xx_rate"`
	MinStreamCompletionRate float64 `json:"min_stream_completion_rate" yaml:"min_stream_completion_rate"`
}

// DefaultThresholds returns the stock acceptance limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrorRate:            DefaultMaxErrorRate,
		MaxServerErrorRate:      DefaultMaxServerErrorRate,
		MinStreamCompletionRate: DefaultMinStreamCompletionRate,
	}
}

// Validate rejects any threshold outside [0,1]. Values are never clamped.
func (t Thresholds) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("loadtest: %s must be within [0,1], got %v", name, v)
		}
		return nil
	}
	if err := check("max error rate", t.MaxErrorRate); err != nil {
		return err
	}
	if err := check("max 5xx rate", t.MaxServerErrorRate); err != nil {
		return err
	}
	return check("min stream completion rate", t.MinStreamCompletionRate)
}

// Comparator defines how an actual value is held against its limit.
type Comparator string

const (
	ComparatorLessOrEqual    Comparator = "<="
	ComparatorGreaterOrEqual Comparator = ">="
)

// Criterion names.
const (
	CriterionErrorRate        = "error_rate"
	CriterionServerErrorRate  = "server_error_rate"
	CriterionStreamCompletion = "stream_completion_rate"
)

// CriterionResult is the outcome of one threshold check.
type CriterionResult struct {
	Name       string     `json:"name"`
	Actual     float64    `json:"actual"`
	Limit      float64    `json:"limit"`
	Comparator Comparator `json:"comparator"`
	Pass       bool       `json:"pass"`
	Reason     string     `json:"reason,omitempty"`
}

// Verdict is the acceptance decision for a snapshot.
type Verdict struct {
	Pass     bool              `json:"pass"`
	Criteria []CriterionResult `json:"criteria"`
}

// Evaluate holds a snapshot against thresholds. It is a pure function: the
// same inputs always produce the same verdict. Limits are inclusive.
func Evaluate(s Snapshot, t Thresholds) Verdict {
	criteria := []CriterionResult{
		check(CriterionErrorRate, "error rate", s.ErrorRate, t.MaxErrorRate, ComparatorLessOrEqual),
		check(CriterionServerErrorRate, "5xx rate", s.ServerErrorRate, t.MaxServerErrorRate, ComparatorLessOrEqual),
		check(CriterionStreamCompletion, "stream completion rate", s.StreamCompletionRate, t.MinStreamCompletionRate, ComparatorGreaterOrEqual),
	}

	v := Verdict{Pass: true, Criteria: criteria}
	for _, c := range criteria {
		if !c.Pass {
			v.Pass = false
		}
	}
	return v
}

func check(name, label string, actual, limit float64, comp Comparator) CriterionResult {
	r := CriterionResult{
		Name:       name,
		Actual:     actual,
		Limit:      limit,
		Comparator: comp,
	}

	switch comp {
	case ComparatorLessOrEqual:
		r.Pass = actual <= limit
		if !r.Pass {
			r.Reason = fmt.Sprintf("%s %.2f%% exceeds maximum %.2f%%", label, actual*100, limit*100)
		}
	case ComparatorGreaterOrEqual:
		r.Pass = actual >= limit
		if !r.Pass {
			r.Reason = fmt.Sprintf("%s %.2f%% is below minimum %.2f%%", label, actual*100, limit*100)
		}
	}
	return r
}

// Failures returns the reasons of every failing criterion.
func (v Verdict) Failures() []string {
	var reasons []string
	for _, c := range v.Criteria {
		if !c.Pass {
			reasons = append(reasons, c.Reason)
		}
	}
	return reasons
}

// GenerateReport renders the verdict as human-readable text.
func (v Verdict) GenerateReport() string {
	var b strings.Builder
	b.WriteString("Acceptance Report\n")
	b.WriteString("=================\n\n")

	status := "PASS"
	if !v.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Overall Status: %s\n\n", status)

	for _, c := range v.Criteria {
		mark := "ok"
		if !c.Pass {
			mark = "FAILED"
		}
		fmt.Fprintf(&b, "  %-24s %8.2f%% %s %6.2f%%  %s\n", c.Name, c.Actual*100, c.Comparator, c.Limit*100, mark)
	}
	for _, r := range v.Failures() {
		fmt.Fprintf(&b, "\n  - %s", r)
	}
	if !v.Pass {
		b.WriteString("\n")
	}
	return b.String()
}
