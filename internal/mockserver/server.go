// Package mockserver serves a synthetic streaming completions endpoint for
// smoke runs and tests.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config shapes the synthetic responses.
type Config struct {
	Chunks          int           `yaml:"chunks"`            // content chunks per response
	FirstChunkDelay time.Duration `yaml:"first_chunk_delay"` // delay before the first chunk
	ChunkDelay      time.Duration `yaml:"chunk_delay"`       // delay between chunks
	FailEvery       int           `yaml:"fail_every"`        // every Nth request fails; 0 disables
	FailStatus      int           `yaml:"fail_status"`
	TruncateEvery   int           `yaml:"truncate_every"` // every Nth request drops before [DONE]; 0 disables
	TruncateAfter   int           `yaml:"truncate_after"` // chunks sent before a truncated stream closes
	MalformedEvery  int           `yaml:"malformed_every"`
	Unhealthy       bool          `yaml:"unhealthy"`
	MaxRPS          float64       `yaml:"max_rps"` // completions above this rate get 429; 0 disables
	Burst           int           `yaml:"burst"`
}

// DefaultConfig returns a config that always streams five chunks.
func DefaultConfig() Config {
	return Config{
		Chunks:          5,
		FirstChunkDelay: 50 * time.Millisecond,
		FailStatus:      http.StatusServiceUnavailable,
		TruncateAfter:   2,
	}
}

// Server is the synthetic endpoint.
type Server struct {
	config   Config
	logger   *zap.Logger
	requests atomic.Int64
	limiter  *rate.Limiter
	httpSrv  *http.Server
}

// New creates a server.
func New(config Config, logger *zap.Logger) *Server {
	if config.FailStatus == 0 {
		config.FailStatus = http.StatusServiceUnavailable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{config: config, logger: logger}
	if config.MaxRPS > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.MaxRPS), burst)
	}
	return s
}

// Requests returns how many completion requests have been received.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/v1/completions", s.handleCompletions)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock server listening", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.config.Unhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type completionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Stream    bool   `json:"stream"`
}

type choice struct {
	Text         string  `json:"text"`
	Index        int     `json:"index"`
	FinishReason *string `json:"finish_reason"`
}

type completionChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Choices []choice `json:"choices"`
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	n := s.requests.Add(1)

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	if every(s.config.FailEvery, n) {
		s.logger.Debug("injecting failure", zap.Int64("request", n), zap.Int("status", s.config.FailStatus))
		w.WriteHeader(s.config.FailStatus)
		return
	}

	chunks := s.config.Chunks
	if req.MaxTokens > 0 && req.MaxTokens < chunks {
		chunks = req.MaxTokens
	}
	truncate := every(s.config.TruncateEvery, n)
	if truncate && s.config.TruncateAfter < chunks {
		chunks = s.config.TruncateAfter
	}

	id := fmt.Sprintf("cmpl-mock-%d", n)
	if !req.Stream {
		s.writeWhole(w, id, chunks)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	if !sleep(ctx, s.config.FirstChunkDelay) {
		return
	}

	for i := 0; i < chunks; i++ {
		if i > 0 && !sleep(ctx, s.config.ChunkDelay) {
			return
		}
		if every(s.config.MalformedEvery, n) && i == 0 {
			_, _ = fmt.Fprint(w, "data: {\"choices\": [\n\n")
		}
		writeChunk(w, id, fmt.Sprintf("tok%d ", i), nil)
		flusher.Flush()
	}

	if truncate {
		s.logger.Debug("truncating stream", zap.Int64("request", n), zap.Int("chunks", chunks))
		return
	}

	reason := "length"
	writeChunk(w, id, "", &reason)
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeWhole(w http.ResponseWriter, id string, chunks int) {
	var text string
	for i := 0; i < chunks; i++ {
		text += fmt.Sprintf("tok%d ", i)
	}
	reason := "length"
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(completionChunk{
		ID:      id,
		Object:  "text_completion",
		Choices: []choice{{Text: text, FinishReason: &reason}},
	})
}

func writeChunk(w http.ResponseWriter, id, text string, finish *string) {
	data, _ := json.Marshal(completionChunk{
		ID:      id,
		Object:  "text_completion",
		Choices: []choice{{Text: text, FinishReason: finish}},
	})
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func every(n int, seq int64) bool {
	return n > 0 && seq%int64(n) == 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
