package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"customeretl/internal/config"
	"customeretl/internal/logger"
	"customeretl/internal/metrics"
	"customeretl/internal/metrics/datadog"
	"customeretl/internal/pipeline"

	// register all backends with the storage factory.
	// DB_URL picks one at runtime, so every driver is built in.
	_ "customeretl/internal/storage/all"
)

const usageLine = "usage: etl [-source path] [-table name] [-db-url url] [-metrics-backend none|datadog] [-validate] [-v]"

// runner is the part of *pipeline.Runner the CLI depends on.
type runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// metricsBackend is what initMetrics installs and later closes.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	getenv      func(string) string
	loadDotenv  func() error
	newRunner   func(cfg config.Config, log zerolog.Logger, stdout io.Writer) runner
	initMetrics func(ctx context.Context, cfg config.Config, log zerolog.Logger) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		getenv:     os.Getenv,
		loadDotenv: func() error { return godotenv.Load(".env") },
		newRunner: func(cfg config.Config, log zerolog.Logger, stdout io.Writer) runner {
			return pipeline.NewDefaultRunner(cfg, log, stdout)
		},
		initMetrics: func(ctx context.Context, cfg config.Config, log zerolog.Logger) (func(), error) {
			return initMetrics(ctx, cfg, log, defaultMetricsWiring())
		},
	}
}

// main is the entry point for the ETL binary. It loads the configuration,
// optionally initializes a metrics backend, and runs the pipeline once.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 on success, 1 on a configuration
// or runtime failure and 2 on a usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}

	var (
		source      = fs.String("source", "", "source CSV path (overrides SOURCE_DATA_FILE)")
		table       = fs.String("table", "", "destination table (overrides DB_TABLE_NAME)")
		dbURL       = fs.String("db-url", "", "database URL (overrides DB_URL)")
		backendName = fs.String("metrics-backend", "", "metrics backend to use (none, datadog; overrides METRICS_BACKEND)")
		validate    = fs.Bool("validate", false, "validate the configuration and exit")
		verbose     = fs.Bool("v", false, "enable verbose logs")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n%s\n", strings.Join(fs.Args(), " "), usageLine)
		return 2
	}

	// A missing .env is normal; anything else is worth a warning.
	if err := deps.loadDotenv(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "warning: load .env: %v\n", err)
	}

	cfg := config.Load(deps.getenv).With(config.Overrides{
		DatabaseURL:    *dbURL,
		TableName:      *table,
		SourceFile:     *source,
		MetricsBackend: *backendName,
	})
	if *verbose {
		cfg.LogLevel = "debug"
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "Configuration is invalid")
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "Configuration is valid")
		return 0
	}

	log := logger.New(stderr, logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	cleanup, err := deps.initMetrics(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	start := time.Now()
	res, err := deps.newRunner(cfg, log, stdout).Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	log.Debug().
		Str("run_id", res.RunID).
		Int("rows_read", res.RowsRead).
		Int64("rows_written", res.RowsWritten).
		Dur("duration", time.Since(start).Truncate(time.Millisecond)).
		Msg("completed")
	return 0
}

// metricsWiring holds the constructors initMetrics calls, so tests can run
// without touching the process-wide backend or the network.
type metricsWiring struct {
	newDatadog func(ctx context.Context, opts datadog.Options) (metricsBackend, error)
	setBackend func(metrics.Backend)
}

func defaultMetricsWiring() metricsWiring {
	return metricsWiring{
		newDatadog: func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
			return datadog.NewBackend(ctx, opts)
		},
		setBackend: metrics.SetBackend,
	}
}

// initMetrics installs the backend named by cfg.MetricsBackend. The returned
// cleanup is never nil and must be called once the run is over.
//
// A backend that fails to start is logged and replaced by the nop backend; a
// missing Datadog API key must not stop the pipeline.
func initMetrics(ctx context.Context, cfg config.Config, log zerolog.Logger, w metricsWiring) (func(), error) {
	nop := func() {}

	switch cfg.MetricsBackend {
	case "", "none", "noop":
		log.Debug().Str("backend", cfg.MetricsBackend).Msg("metrics: disabled")
		return nop, nil

	case "datadog", "dd":
		if w.newDatadog == nil || w.setBackend == nil {
			return nop, errors.New("metrics: datadog wiring is incomplete")
		}
		tags := datadog.ParseTagsCSV(cfg.MetricsTags)
		b, err := w.newDatadog(ctx, datadog.Options{
			JobName:    cfg.JobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return nop, nil
		}
		log.Info().Str("backend", cfg.MetricsBackend).Str("job_name", cfg.JobName).Strs("tags", tags).Msg("metrics: enabled")
		w.setBackend(b)

		return func() {
			// Close stops the flush loop and submits what is still buffered.
			if err := b.Close(); err != nil {
				log.Error().Err(err).Msg("metrics: datadog close/flush error")
			}
			w.setBackend(nil)
		}, nil

	default:
		log.Warn().Str("backend", cfg.MetricsBackend).Msg("metrics: unknown backend; metrics disabled")
		return nop, nil
	}
}
