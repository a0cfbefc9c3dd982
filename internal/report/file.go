package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileSink writes the artifact to a local path. The write is atomic: a
// reader sees either the previous file or the complete new one.
type FileSink struct {
	path     string
	encoding Encoding
	logger   *zap.Logger
}

// NewFileSink creates a sink for path.
func NewFileSink(path string, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{path: path, encoding: EncodingFor(path), logger: logger}
}

// Location returns the target path.
func (s *FileSink) Location() string { return s.path }

// Write encodes and replaces the file.
func (s *FileSink) Write(_ context.Context, a *Artifact) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := encodeTo(tmp, s.encoding, data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("report: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("report: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}

	s.logger.Info("artifact written",
		zap.String("path", s.path),
		zap.String("encoding", string(s.encoding)),
		zap.String("run_id", a.RunID.String()),
	)
	return nil
}
