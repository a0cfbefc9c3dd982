package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/streamcheck/internal/logging"
	"github.com/FairForge/streamcheck/internal/mockserver"
	"github.com/spf13/cobra"
)

func newMockCmd() *cobra.Command {
	cfg := mockserver.DefaultConfig()
	var addr, logLevel string

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve a synthetic streaming completions endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logLevel, logging.FormatConsole)
			if err != nil {
				return withCode(exitError, err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mockserver.New(cfg, logger).ListenAndServe(ctx, addr)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&addr, "addr", ":8000", "listen address")
	fl.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	fl.IntVar(&cfg.Chunks, "chunks", cfg.Chunks, "content chunks per response")
	fl.DurationVar(&cfg.FirstChunkDelay, "first-chunk-delay", cfg.FirstChunkDelay, "delay before the first chunk")
	fl.DurationVar(&cfg.ChunkDelay, "chunk-delay", 10*time.Millisecond, "delay between chunks")
	fl.IntVar(&cfg.FailEvery, "fail-every", 0, "fail every Nth request (0 disables)")
	fl.IntVar(&cfg.FailStatus, "fail-status", cfg.FailStatus, "status returned by failed requests")
	fl.IntVar(&cfg.TruncateEvery, "truncate-every", 0, "drop every Nth stream before [DONE] (0 disables)")
	fl.IntVar(&cfg.TruncateAfter, "truncate-after", cfg.TruncateAfter, "chunks sent before a truncated stream closes")
	fl.IntVar(&cfg.MalformedEvery, "malformed-every", 0, "inject a malformed line into every Nth stream")
	fl.Float64Var(&cfg.MaxRPS, "max-rps", 0, "answer 429 above this request rate (0 disables)")
	fl.IntVar(&cfg.Burst, "burst", 1, "burst allowed by --max-rps")
	fl.BoolVar(&cfg.Unhealthy, "unhealthy", false, "answer /health with 503")
	return cmd
}
