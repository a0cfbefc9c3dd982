package loadtest

import (
	"strconv"
	"time"
)

// StatusTransportError marks an outcome that never received an HTTP status.
// It is not a valid HTTP code, so it cannot collide with a real response.
const StatusTransportError = -1

// Completion classifies how a streamed request ended.
type Completion string

const (
	CompletionCompleted      Completion = "completed"       // [DONE] observed
	CompletionTruncated      Completion = "truncated"       // stream ended without [DONE]
	CompletionTransportError Completion = "transport_error" // no response, or died before content
	CompletionHTTPError      Completion = "http_error"      // non-2xx status
)

// Outcome is the immutable record of one request attempt.
type Outcome struct {
	Sequence     int64         `json:"sequence"`
	Lane         int           `json:"lane"`
	Start        time.Time     `json:"start"`
	TTFT         time.Duration `json:"ttft_ns,omitempty"`
	HasTTFT      bool          `json:"has_ttft"`
	Tokens       int           `json:"tokens"`
	StatusCode   int           `json:"status_code"`
	Completion   Completion    `json:"completion"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Malformed    int           `json:"malformed_lines,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Succeeded reports whether the request counts toward the success total:
// a 2xx status and a stream that reached the sentinel.
func (o Outcome) Succeeded() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300 && o.Completion == CompletionCompleted
}

// ServerError reports whether the response carried a 5xx status.
func (o Outcome) ServerError() bool {
	return o.StatusCode >= 500 && o.StatusCode < 600
}

// StatusKey is the histogram key for the outcome's status.
func (o Outcome) StatusKey() string {
	return StatusKey(o.StatusCode)
}

// StatusKey renders a status code, or the transport sentinel, as a histogram key.
func StatusKey(code int) string {
	if code == StatusTransportError {
		return string(CompletionTransportError)
	}
	return strconv.Itoa(code)
}
