package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/FairForge/streamcheck/internal/config"
	"github.com/FairForge/streamcheck/internal/loadtest"
	"github.com/FairForge/streamcheck/internal/logging"
	"github.com/FairForge/streamcheck/internal/metrics"
	"github.com/FairForge/streamcheck/internal/report"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type runFlags struct {
	configFile        string
	url               string
	model             string
	apiKey            string
	workers           int
	duration          time.Duration
	maxTokens         int
	timeout           time.Duration
	promptsFile       string
	output            string
	includeRequests   bool
	maxErrorRate      float64
	maxServerErrRate  float64
	minCompletionRate float64
	metricsAddr       string
	logLevel          string
	logFormat         string
	skipPreflight     bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a streaming load test and evaluate the verdict",
		Long: `Run probes <url>/health, then keeps --concurrency lanes issuing streaming
completions for --duration. Exit status is 0 when every threshold holds, 1 when
any is breached, and 2 on configuration or pre-flight errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return withCode(exitError, err)
			}
			return runCheck(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configFile, "config", "", "YAML config file")
	fl.StringVar(&f.url, "url", "", "inference service base URL")
	fl.StringVar(&f.model, "model", "", "model name sent with each request")
	fl.StringVar(&f.apiKey, "api-key", "", "bearer token for the target")
	fl.IntVarP(&f.workers, "concurrency", "c", 0, "number of concurrent lanes")
	fl.DurationVarP(&f.duration, "duration", "d", 0, "window during which requests start")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "max tokens per completion")
	fl.DurationVar(&f.timeout, "timeout", 0, "per-request timeout")
	fl.StringVar(&f.promptsFile, "prompts-file", "", "file with one prompt per line")
	fl.StringVarP(&f.output, "output", "o", "", "artifact path or s3://bucket/key (.gz/.zst compress)")
	fl.BoolVar(&f.includeRequests, "include-requests", false, "include every request outcome in the artifact")
	fl.Float64Var(&f.maxErrorRate, "max-error-rate", 0, "maximum error rate [0,1]")
	fl.Float64Var(&f.maxServerErrRate, "max-5xx-rate", 0, "maximum 5xx rate [0,1]")
	fl.Float64Var(&f.minCompletionRate, "min-completion-rate", 0, "minimum stream completion rate [0,1]")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fl.StringVar(&f.logFormat, "log-format", "", "json or console")
	fl.BoolVar(&f.skipPreflight, "skip-preflight", false, "skip the /health probe")
	return cmd
}

// loadConfig layers defaults, the config file, the environment, and any
// flags set on the command line.
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		if err := config.LoadFile(cfg, f.configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("url") {
		cfg.Target.URL = f.url
	}
	if changed("model") {
		cfg.Target.Model = f.model
	}
	if changed("api-key") {
		cfg.Target.APIKey = f.apiKey
	}
	if changed("concurrency") {
		cfg.Load.Workers = f.workers
	}
	if changed("duration") {
		cfg.Load.Duration = f.duration
	}
	if changed("max-tokens") {
		cfg.Target.MaxTokens = f.maxTokens
	}
	if changed("timeout") {
		cfg.Target.Timeout = f.timeout
	}
	if changed("prompts-file") {
		cfg.Load.PromptsFile = f.promptsFile
	}
	if changed("output") {
		cfg.Output.Location = f.output
	}
	if changed("include-requests") {
		cfg.Output.IncludeRequests = f.includeRequests
	}
	if changed("max-error-rate") {
		cfg.Thresholds.MaxErrorRate = f.maxErrorRate
	}
	if changed("max-5xx-rate") {
		cfg.Thresholds.MaxServerErrorRate = f.maxServerErrRate
	}
	if changed("min-completion-rate") {
		cfg.Thresholds.MinStreamCompletionRate = f.minCompletionRate
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("skip-preflight") {
		cfg.Target.SkipPreflight = f.skipPreflight
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCheck(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return withCode(exitError, err)
	}
	defer func() { _ = logger.Sync() }()

	prompts, err := cfg.LoadPrompts()
	if err != nil {
		return withCode(exitError, err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer releaseOnDone(ctx, stop, logger)()

	client := loadtest.NewHTTPClient(cfg.Load.Workers)
	if !cfg.Target.SkipPreflight {
		logger.Info("checking endpoint", zap.String("url", cfg.Target.URL))
		if err := loadtest.Preflight(ctx, client, cfg.Target.URL, loadtest.DefaultPreflightTimeout); err != nil {
			return withCode(exitError, err)
		}
		logger.Info("endpoint healthy")
	}

	collector := metrics.NewCollector()
	opts := []loadtest.AggregatorOption{loadtest.WithObserver(collector)}
	if cfg.Output.IncludeRequests {
		opts = append(opts, loadtest.WithOutcomes())
	}
	agg := loadtest.NewAggregator(opts...)

	exec := loadtest.NewExecutor(loadtest.ExecutorConfig{
		BaseURL:   cfg.Target.URL,
		Model:     cfg.Target.Model,
		APIKey:    cfg.Target.APIKey,
		MaxTokens: cfg.Target.MaxTokens,
		Timeout:   cfg.Target.Timeout,
	}, client, cfg.Load.Workers, logger.Named("executor"))

	fw, err := loadtest.New(loadtest.Config{
		Name:             cfg.Target.URL,
		Workers:          cfg.Load.Workers,
		Duration:         cfg.Load.Duration,
		ProgressInterval: cfg.Load.ProgressInterval,
	}, exec, prompts, agg, logger)
	if err != nil {
		return withCode(exitError, err)
	}

	snapshot, err := runWithMetrics(ctx, cfg.Metrics.Addr, collector, fw, logger)
	if err != nil {
		return withCode(exitError, err)
	}

	verdict := loadtest.Evaluate(snapshot, cfg.Thresholds)
	artifact := report.NewArtifact(cfg.Target.URL, report.Parameters{
		Workers:         cfg.Load.Workers,
		DurationSeconds: cfg.Load.Duration.Seconds(),
		MaxTokens:       cfg.Target.MaxTokens,
		TimeoutSeconds:  cfg.Target.Timeout.Seconds(),
		Model:           cfg.Target.Model,
		Prompts:         prompts.Len(),
	}, cfg.Thresholds, snapshot, verdict)
	artifact.Requests = agg.Outcomes()

	if cfg.Output.Location != "" {
		// The artifact is written even after an interrupt.
		writeCtx := context.WithoutCancel(ctx)
		sink, err := report.Open(writeCtx, cfg.Output.Location, cfg.Output.S3, logger)
		if err != nil {
			return withCode(exitError, err)
		}
		if err := sink.Write(writeCtx, artifact); err != nil {
			return withCode(exitError, err)
		}
	}

	if err := report.Summary(os.Stdout, artifact); err != nil {
		return withCode(exitError, err)
	}
	if !verdict.Pass {
		return withCode(exitFail, nil)
	}
	return nil
}

// runWithMetrics runs the framework and, when addr is set, serves the
// collector for the lifetime of the run.
func runWithMetrics(ctx context.Context, addr string, collector *metrics.Collector, fw *loadtest.Framework, logger *zap.Logger) (loadtest.Snapshot, error) {
	if addr == "" {
		return fw.Run(ctx)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})

	g.Go(func() error {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-runDone:
		case <-gctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	var snapshot loadtest.Snapshot
	g.Go(func() error {
		defer close(runDone)
		var err error
		snapshot, err = fw.Run(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return loadtest.Snapshot{}, err
	}
	return snapshot, nil
}

// releaseOnDone restores default signal handling once ctx is done, so a
// second interrupt terminates the process instead of waiting for in-flight
// requests to drain. The returned func ends the watch.
func releaseOnDone(ctx context.Context, stop context.CancelFunc, logger *zap.Logger) func() {
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-finished:
				return
			default:
			}
			stop()
			logger.Warn("interrupted, draining in-flight requests; interrupt again to abort")
		case <-finished:
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(finished) }) }
}
