package loadtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sample := []float64{1, 2, 3, 4}

	v, ok := Percentile(sample, 50)
	require.True(t, ok)
	assert.InDelta(t, 2.5, v, 1e-9)

	v, ok = Percentile(sample, 95)
	require.True(t, ok)
	assert.InDelta(t, 3.85, v, 1e-9)

	v, _ = Percentile(sample, 0)
	assert.Equal(t, 1.0, v)
	v, _ = Percentile(sample, 100)
	assert.Equal(t, 4.0, v)

	v, ok = Percentile([]float64{7}, 95)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = Percentile(nil, 50)
	assert.False(t, ok)
	_, ok = Percentile(sample, 101)
	assert.False(t, ok)
}

func completed(ttft time.Duration, tokens int) Outcome {
	return Outcome{
		StatusCode: 200,
		Completion: CompletionCompleted,
		TTFT:       ttft,
		HasTTFT:    true,
		Tokens:     tokens,
	}
}

func mixedOutcomes() []Outcome {
	return []Outcome{
		completed(10*time.Millisecond, 4),
		completed(20*time.Millisecond, 4),
		completed(30*time.Millisecond, 4),
		{StatusCode: 503, Completion: CompletionHTTPError},
		{StatusCode: 429, Completion: CompletionHTTPError},
		{StatusCode: StatusTransportError, Completion: CompletionTransportError},
		{StatusCode: 200, Completion: CompletionTruncated, TTFT: 40 * time.Millisecond, HasTTFT: true, Tokens: 2, Malformed: 1},
	}
}

func TestSummarize(t *testing.T) {
	start := time.Unix(1000, 0)
	end := start.Add(2 * time.Second)

	s := Summarize(mixedOutcomes(), start, end)

	assert.Equal(t, 7, s.TotalRequests)
	assert.Equal(t, 3, s.Successful)
	assert.Equal(t, 4, s.Failed)
	assert.Equal(t, s.TotalRequests, s.Successful+s.Failed)
	assert.InDelta(t, 4.0/7, s.ErrorRate, 1e-9)
	assert.InDelta(t, 1.0/7, s.ServerErrorRate, 1e-9)
	assert.InDelta(t, 3.0/7, s.StreamCompletionRate, 1e-9)
	assert.Equal(t, map[string]int{"200": 4, "503": 1, "429": 1, "transport_error": 1}, s.StatusCodeCounts)
	assert.Equal(t, 3, s.OutcomeCounts[CompletionCompleted])
	assert.Equal(t, 1, s.OutcomeCounts[CompletionTruncated])
	assert.Equal(t, int64(14), s.TotalTokens)
	assert.InDelta(t, 7.0, s.TokensPerSec, 1e-9)
	assert.Equal(t, int64(1), s.MalformedLines)
	assert.Equal(t, 4, s.TTFTSamples)
	require.NotNil(t, s.TTFTP50Ms)
	assert.InDelta(t, 25.0, *s.TTFTP50Ms, 1e-9)
	require.NotNil(t, s.TTFTP95Ms)
	assert.InDelta(t, 38.5, *s.TTFTP95Ms, 1e-9)
	assert.InDelta(t, 2.0, s.DurationSeconds, 1e-9)
}

func TestSummarize_OrderIndependent(t *testing.T) {
	start := time.Unix(1000, 0)
	end := start.Add(time.Second)

	forward := mixedOutcomes()
	reversed := mixedOutcomes()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	assert.Equal(t, Summarize(forward, start, end), Summarize(reversed, start, end))
}

func TestSummarize_Empty(t *testing.T) {
	start := time.Unix(1000, 0)
	s := Summarize(nil, start, start)

	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.ErrorRate)
	assert.Zero(t, s.ServerErrorRate)
	assert.Zero(t, s.StreamCompletionRate)
	assert.Zero(t, s.TokensPerSec)
	assert.Nil(t, s.TTFTP50Ms)
	assert.Nil(t, s.TTFTP95Ms)
}

func TestSummarize_NoTTFT(t *testing.T) {
	start := time.Unix(1000, 0)
	s := Summarize([]Outcome{
		{StatusCode: 503, Completion: CompletionHTTPError},
		{StatusCode: StatusTransportError, Completion: CompletionTransportError},
	}, start, start.Add(time.Second))

	assert.Equal(t, 2, s.Failed)
	assert.Zero(t, s.TTFTSamples)
	assert.Nil(t, s.TTFTP50Ms)
	assert.Nil(t, s.TTFTP95Ms)
}

func TestSummarize_AllCompleted(t *testing.T) {
	start := time.Unix(1000, 0)
	var outcomes []Outcome
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, completed(time.Duration(i+1)*time.Millisecond, 1))
	}
	s := Summarize(outcomes, start, start.Add(time.Second))

	assert.Equal(t, 1.0, s.StreamCompletionRate)
	assert.Zero(t, s.ErrorRate)
}
