package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FairForge/streamcheck/internal/config"
	"github.com/FairForge/streamcheck/internal/mockserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Target.URL = url
	cfg.Target.MaxTokens = 5
	cfg.Target.Timeout = 5 * time.Second
	cfg.Load.Workers = 2
	cfg.Load.Duration = 150 * time.Millisecond
	cfg.Load.ProgressInterval = -1
	cfg.Log.Level = "error"
	return cfg
}

func exitOf(err error) int {
	if err == nil {
		return exitPass
	}
	var ec *exitCode
	if errors.As(err, &ec) {
		return ec.code
	}
	return exitError
}

func TestRunCheck_Pass(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{Chunks: 3}, nil).Router())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Output.Location = filepath.Join(t.TempDir(), "report.json")

	err := runCheck(context.Background(), cfg)
	assert.Equal(t, exitPass, exitOf(err))

	_, statErr := os.Stat(cfg.Output.Location)
	assert.NoError(t, statErr)
}

func TestRunCheck_FailingVerdict(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{Chunks: 1, FailEvery: 2}, nil).Router())
	defer srv.Close()

	err := runCheck(context.Background(), testConfig(srv.URL))
	assert.Equal(t, exitFail, exitOf(err))
}

func TestRunCheck_PreflightFailure(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{Unhealthy: true}, nil).Router())
	defer srv.Close()

	err := runCheck(context.Background(), testConfig(srv.URL))
	assert.Equal(t, exitError, exitOf(err))
}

func TestRunCmd_InvalidFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "--url", "not a url", "--skip-preflight"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, exitError, exitOf(err))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("STREAMCHECK_WORKERS", "9")
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--url", "http://a:1", "-d", "5s", "--max-5xx-rate", "0.1"}))

	f := &runFlags{}
	// Re-read values the command parsed into its own flag set.
	f.url, _ = cmd.Flags().GetString("url")
	f.duration, _ = cmd.Flags().GetDuration("duration")
	f.maxServerErrRate, _ = cmd.Flags().GetFloat64("max-5xx-rate")

	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, "http://a:1", cfg.Target.URL)
	assert.Equal(t, 5*time.Second, cfg.Load.Duration)
	assert.Equal(t, 0.1, cfg.Thresholds.MaxServerErrorRate)
	assert.Equal(t, 9, cfg.Load.Workers, "unset flags keep env values")
}

func TestReleaseOnDone_StopsSignalCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stopped atomic.Int32
	release := releaseOnDone(ctx, func() { stopped.Add(1) }, zap.NewNop())
	defer release()

	cancel()
	require.Eventually(t, func() bool { return stopped.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReleaseOnDone_ReleaseWithoutInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stopped atomic.Int32
	release := releaseOnDone(ctx, func() { stopped.Add(1) }, zap.NewNop())
	release()
	release()

	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, stopped.Load())
}
