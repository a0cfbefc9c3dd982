package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/FairForge/streamcheck/internal/sse"
	"go.uber.org/zap"
)

const (
	// HTTP client tuning
	TCPDialTimeout       = 5 * time.Second
	TCPKeepAliveInterval = 30 * time.Second
	TLSHandshakeTimeout  = 5 * time.Second
	IdleConnTimeout      = 90 * time.Second

	completionsPath = "/v1/completions"
	maxDrainBytes   = 64 * 1024
)

// Requester performs one request for a prompt and reports its outcome.
// It never returns an error: every failure is encoded in the Outcome.
type Requester interface {
	Execute(ctx context.Context, prompt string) Outcome
}

// ExecutorConfig holds per-request parameters.
type ExecutorConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// Executor issues streaming completion requests.
type Executor struct {
	config ExecutorConfig
	client *http.Client
	logger *zap.Logger
}

type completionRequest struct {
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Stream    bool   `json:"stream"`
}

// NewExecutor creates an executor. A nil client gets a pooled client sized for conns.
func NewExecutor(config ExecutorConfig, client *http.Client, conns int, logger *zap.Logger) *Executor {
	if client == nil {
		client = NewHTTPClient(conns)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Executor{config: config, client: client, logger: logger}
}

// NewHTTPClient builds a client with a connection pool sized for conns
// concurrent streams. It sets no overall timeout; deadlines come from the
// request context.
func NewHTTPClient(conns int) *http.Client {
	if conns < 1 {
		conns = 1
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        conns,
		MaxIdleConnsPerHost: conns,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,
		TLSHandshakeTimeout: TLSHandshakeTimeout,
		// Streams are line-oriented; transparent gzip would batch chunks.
		DisableCompression: true,
	}
	return &http.Client{Transport: transport}
}

// Execute runs one streaming completion request.
func (e *Executor) Execute(ctx context.Context, prompt string) Outcome {
	o := e.execute(ctx, prompt)
	if o.Completion != CompletionCompleted {
		e.logger.Debug("request did not complete",
			zap.String("completion", string(o.Completion)),
			zap.String("status", o.StatusKey()),
			zap.Int("tokens", o.Tokens),
			zap.Duration("elapsed", o.Elapsed),
			zap.String("error", o.Error),
		)
	}
	return o
}

func (e *Executor) execute(ctx context.Context, prompt string) Outcome {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(completionRequest{
		Model:     e.config.Model,
		Prompt:    prompt,
		MaxTokens: e.config.MaxTokens,
		Stream:    true,
	})
	if err != nil {
		return transportFailure(time.Now(), fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return transportFailure(time.Now(), fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return transportFailure(start, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return Outcome{
			Start:      start,
			StatusCode: resp.StatusCode,
			Completion: CompletionHTTPError,
			Elapsed:    time.Since(start),
			Error:      fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	return readStream(resp.Body, start, resp.StatusCode)
}

// readStream drives the parser over a 2xx body and classifies the ending.
func readStream(body io.Reader, start time.Time, status int) Outcome {
	o := Outcome{Start: start, StatusCode: status}
	p := sse.NewParser(body)

	var readErr error
	for {
		ev, err := p.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		if ev.Kind != sse.EventContent {
			continue
		}
		if ev.FinishReason != "" {
			o.FinishReason = ev.FinishReason
		}
		if ev.Text == "" {
			continue
		}
		o.Tokens++
		if !o.HasTTFT {
			o.TTFT = time.Since(start)
			o.HasTTFT = true
		}
	}

	o.Elapsed = time.Since(start)
	o.Malformed = p.Malformed()

	switch {
	case p.Done() && o.Tokens == 0 && o.Malformed > 0:
		o.Completion = CompletionTruncated
		o.Error = fmt.Sprintf("no content extracted, %d malformed lines", o.Malformed)
	case p.Done():
		o.Completion = CompletionCompleted
	case readErr != nil && !o.HasTTFT:
		o.Completion = CompletionTransportError
		o.StatusCode = StatusTransportError
		o.Error = readErr.Error()
	case readErr != nil:
		o.Completion = CompletionTruncated
		o.Error = readErr.Error()
	default:
		o.Completion = CompletionTruncated
		o.Error = "stream ended without [DONE]"
	}
	return o
}

func transportFailure(start time.Time, err error) Outcome {
	return Outcome{
		Start:      start,
		StatusCode: StatusTransportError,
		Completion: CompletionTransportError,
		Elapsed:    time.Since(start),
		Error:      err.Error(),
	}
}
