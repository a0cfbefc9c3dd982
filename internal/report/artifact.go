// Package report builds the run artifact and writes it to a file or an S3
// bucket.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/FairForge/streamcheck/internal/loadtest"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Parameters records how the run was shaped.
type Parameters struct {
	Workers         int     `json:"workers"`
	DurationSeconds float64 `json:"duration_seconds"`
	MaxTokens       int     `json:"max_tokens"`
	TimeoutSeconds  float64 `json:"timeout_seconds"`
	Model           string  `json:"model,omitempty"`
	Prompts         int     `json:"prompts"`
}

// Artifact is the machine-readable record of one run.
type Artifact struct {
	RunID       uuid.UUID           `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Target      string              `json:"target"`
	Parameters  Parameters          `json:"parameters"`
	Thresholds  loadtest.Thresholds `json:"thresholds"`
	Metrics     loadtest.Snapshot   `json:"metrics"`
	Verdict     loadtest.Verdict    `json:"verdict"`
	Requests    []loadtest.Outcome  `json:"requests,omitempty"`
}

// NewArtifact assembles an artifact with a fresh run id.
func NewArtifact(target string, params Parameters, th loadtest.Thresholds, s loadtest.Snapshot, v loadtest.Verdict) *Artifact {
	return &Artifact{
		RunID:       uuid.New(),
		GeneratedAt: time.Now().UTC(),
		Target:      target,
		Parameters:  params,
		Thresholds:  th,
		Metrics:     s,
		Verdict:     v,
	}
}

// Marshal renders the artifact as indented JSON and checks it against the
// artifact schema.
func (a *Artifact) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal artifact: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Sink persists an artifact.
type Sink interface {
	Write(ctx context.Context, a *Artifact) error
	Location() string
}

// Open returns the sink for location: s3://bucket/key or a filesystem path.
// A .gz or .zst suffix selects compression.
func Open(ctx context.Context, location string, s3opts S3Options, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == "" {
		return nil, fmt.Errorf("report: output location is empty")
	}
	if strings.HasPrefix(location, s3Scheme) {
		return NewS3Sink(ctx, location, s3opts, logger)
	}
	return NewFileSink(location, logger), nil
}
