package report

import (
	"fmt"
	"io"
	"sort"
)

// Summary prints the human-readable run summary followed by the verdict.
func Summary(w io.Writer, a *Artifact) error {
	s := a.Metrics
	p := a.Parameters

	ew := &errWriter{w: w}
	ew.printf("Stream Check %s\n", a.RunID)
	ew.printf("  target:     %s\n", a.Target)
	ew.printf("  workers:    %d for %.1fs (max_tokens=%d, timeout=%.1fs)\n",
		p.Workers, p.DurationSeconds, p.MaxTokens, p.TimeoutSeconds)
	ew.printf("  requests:   %d total, %d ok, %d failed (%.1fs wall)\n",
		s.TotalRequests, s.Successful, s.Failed, s.DurationSeconds)
	ew.printf("  TTFT:       p50 %s  p95 %s  (%d samples)\n",
		formatMs(s.TTFTP50Ms), formatMs(s.TTFTP95Ms), s.TTFTSamples)
	ew.printf("  throughput: %.1f tokens/s (%d tokens)\n", s.TokensPerSec, s.TotalTokens)
	ew.printf("  streams:    %.2f%% completed", s.StreamCompletionRate*100)
	if s.MalformedLines > 0 {
		ew.printf(", %d malformed lines skipped", s.MalformedLines)
	}
	ew.printf("\n")

	codes := make([]string, 0, len(s.StatusCodeCounts))
	for k := range s.StatusCodeCounts {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	ew.printf("  statuses:  ")
	for _, k := range codes {
		ew.printf(" %s=%d", k, s.StatusCodeCounts[k])
	}
	ew.printf("\n\n")
	ew.printf("%s", a.Verdict.GenerateReport())
	return ew.err
}

func formatMs(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1fms", *v)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
