// Package pipeline runs one read -> transform -> replace pass over the
// customer source file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"customeretl/internal/config"
	"customeretl/internal/logger"
	"customeretl/internal/metrics"
	"customeretl/internal/parser/csv"
	"customeretl/internal/storage"
	"customeretl/internal/transformer"
	"customeretl/pkg/records"
)

var (
	// ErrSourceUnreadable means the source file is missing, empty or
	// malformed at the container level. Nothing is written.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrTransform means the records could not be mapped at all (missing
	// required column, canceled context). Nothing is written.
	ErrTransform = errors.New("transform failed")

	// ErrSinkUnavailable means the sink could not be opened or the table
	// replace failed. The previous table, if any, is left as it was.
	ErrSinkUnavailable = errors.New("sink unavailable")
)

// Progress lines printed to Stdout.
const (
	MsgStarting         = "Starting data pipeline..."
	MsgReadAborted      = "Pipeline aborted due to data reading failure."
	MsgTransformAborted = "Pipeline aborted due to data transformation failure."
	MsgFinished         = "Data pipeline finished."
)

// Step names used for metrics and logs.
const (
	StepExtract   = "extract"
	StepTransform = "transform"
	StepLoad      = "load"
)

// SourceReader loads the source file. csv.ReadFile satisfies it.
type SourceReader func(ctx context.Context, path string, opt csv.Options) (records.Set, error)

// SinkFactory opens a sink. storage.New satisfies it.
type SinkFactory func(ctx context.Context, cfg storage.Config) (storage.Sink, error)

// Runner wires the pipeline stages. The function fields are seams; nil
// values fall back to the production implementations.
type Runner struct {
	Config config.Config
	Log    zerolog.Logger

	// Stdout receives the progress lines. nil discards them.
	Stdout io.Writer

	ReadSource  SourceReader
	NewSink     SinkFactory
	Transformer *transformer.Transformer
}

// Result summarizes a run.
type Result struct {
	RunID       string
	RowsRead    int
	RowsWritten int64
	Stats       transformer.Stats
}

// NewDefaultRunner returns a Runner using the CSV reader and the storage
// registry.
func NewDefaultRunner(cfg config.Config, log zerolog.Logger, stdout io.Writer) *Runner {
	return &Runner{
		Config:     cfg,
		Log:        log,
		Stdout:     stdout,
		ReadSource: csv.ReadFile,
		NewSink:    storage.New,
	}
}

// CustomerTable is the sink schema for transformer.OutputColumns.
func CustomerTable(name string) storage.TableSpec {
	types := map[string]storage.ColumnType{
		"account_created_at":       storage.TypeTimestamp,
		"num_transactions":         storage.TypeInteger,
		"total_transaction_amount": storage.TypeFloat,
	}

	spec := storage.TableSpec{Name: name, Columns: make([]storage.ColumnSpec, 0, len(transformer.OutputColumns))}
	for _, c := range transformer.OutputColumns {
		typ, ok := types[c]
		if !ok {
			typ = storage.TypeText
		}
		spec.Columns = append(spec.Columns, storage.ColumnSpec{
			Name:     c,
			Type:     typ,
			Nullable: typ == storage.TypeText || typ == storage.TypeTimestamp,
		})
	}
	return spec
}

// Run executes the pipeline once.
//
// Errors:
//   - ErrSourceUnreadable, ErrTransform or ErrSinkUnavailable, each wrapping
//     the underlying cause.
//
// Field-level parse failures are not errors; they degrade to defaults and
// are reported in Result.Stats.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := r.Log.With().Str("run_id", res.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	// Buffered backends submit once per run, aborted runs included.
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics: flush error")
		}
	}()

	r.println(MsgStarting)
	log.Info().
		Str("source", r.Config.SourceFile).
		Str("table", r.Config.TableName).
		Str("db_url", r.Config.Redacted()).
		Msg("pipeline starting")

	set, err := r.extract(ctx, log)
	if err != nil {
		r.println(MsgReadAborted)
		return res, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	res.RowsRead = len(set.Rows)

	rows, stats, err := r.transform(ctx, log, set)
	res.Stats = stats
	if err != nil {
		r.println(MsgTransformAborted)
		return res, fmt.Errorf("%w: %w", ErrTransform, err)
	}

	written, err := r.load(ctx, log, rows)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	res.RowsWritten = written

	r.println(MsgFinished)
	return res, nil
}

func (r *Runner) extract(ctx context.Context, log zerolog.Logger) (records.Set, error) {
	start := time.Now()
	read := r.ReadSource
	if read == nil {
		read = csv.ReadFile
	}

	set, err := read(ctx, r.Config.SourceFile, csv.Options{
		Comma:      r.Config.CSV.Delimiter,
		LazyQuotes: r.Config.CSV.LazyQuotes,
		TrimSpace:  r.Config.CSV.TrimSpace,
	})
	metrics.RecordStep(StepExtract, err, time.Since(start))
	if err != nil {
		log.Error().Err(err).Str("stage", StepExtract).Str("source", r.Config.SourceFile).Msg("could not read source")
		return records.Set{}, err
	}

	metrics.RecordRecords("read", len(set.Rows))
	log.Info().Strs("columns", set.RawColumns).Msg("columns in raw source")
	log.Info().Strs("columns", set.Columns).Msg("columns after header cleaning")
	log.Info().
		Str("stage", StepExtract).
		Int("rows", len(set.Rows)).
		Dur("duration", time.Since(start)).
		Msg("stage ok")
	return set, nil
}

func (r *Runner) transform(ctx context.Context, log zerolog.Logger, set records.Set) ([][]any, transformer.Stats, error) {
	start := time.Now()
	t := r.Transformer
	if t == nil {
		t = transformer.New(log)
	}

	out, stats, err := t.Transform(ctx, set)
	metrics.RecordStep(StepTransform, err, time.Since(start))
	if err != nil {
		log.Error().Err(err).Str("stage", StepTransform).Msg("could not transform records")
		return nil, stats, err
	}

	recordDegradation(stats)

	rows := make([][]any, len(out))
	for i, row := range out {
		rows[i] = row.Values()
	}

	log.Info().Strs("columns", transformer.OutputColumns).Msg("columns before writing")
	log.Info().
		Str("stage", StepTransform).
		Int("rows", stats.Rows).
		Int("transactions", stats.Transactions).
		Int("address_empty", stats.AddressEmpty).
		Int("address_unparseable", stats.AddressUnparseable).
		Int("transactions_empty", stats.TransactionsEmpty).
		Int("transactions_unparseable", stats.TransactionsUnparseable).
		Int("amounts_unparseable", stats.AmountsUnparseable).
		Int("timestamps_null", stats.TimestampsNull).
		Dur("duration", time.Since(start)).
		Msg("stage ok")
	return rows, stats, nil
}

func (r *Runner) load(ctx context.Context, log zerolog.Logger, rows [][]any) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep(StepLoad, err, time.Since(start)) }()

	scfg, err := storage.ParseURL(r.Config.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Str("stage", StepLoad).Msg("could not resolve database url")
		return 0, err
	}
	if r.Config.BatchSize > 0 {
		scfg.BatchSize = r.Config.BatchSize
	}

	open := r.NewSink
	if open == nil {
		open = storage.New
	}
	sink, err := open(ctx, scfg)
	if err != nil {
		log.Error().Err(err).Str("stage", StepLoad).Str("kind", scfg.Kind).Msg("error connecting to the database")
		return 0, err
	}
	defer sink.Close()
	log.Info().Str("kind", scfg.Kind).Msg("successfully connected to the database")

	spec := CustomerTable(r.Config.TableName)
	log.Info().Int("rows", len(rows)).Str("table", spec.Name).Msg("replacing table")

	if exists, err := sink.TableExists(ctx, spec.Name); err != nil {
		log.Warn().Err(err).Str("table", spec.Name).Msg("could not check whether table exists")
	} else if exists {
		log.Info().Str("table", spec.Name).Msg("table exists; it will be dropped")
	} else {
		log.Info().Str("table", spec.Name).Msg("table does not exist; it will be created")
	}

	n, err = sink.ReplaceTable(ctx, spec, rows)
	if err != nil {
		log.Error().Err(err).Str("stage", StepLoad).Str("table", spec.Name).Msg("error writing data to database")
		return 0, err
	}

	metrics.RecordRecords("written", int(n))
	log.Info().
		Str("stage", StepLoad).
		Str("table", spec.Name).
		Int64("rows", n).
		Dur("duration", time.Since(start)).
		Msg("stage ok")
	return n, nil
}

func recordDegradation(s transformer.Stats) {
	metrics.RecordDegraded("address", "empty", s.AddressEmpty)
	metrics.RecordDegraded("address", "unparseable", s.AddressUnparseable)
	metrics.RecordDegraded("transactions", "empty", s.TransactionsEmpty)
	metrics.RecordDegraded("transactions", "unparseable", s.TransactionsUnparseable)
	metrics.RecordDegraded("amount", "unparseable", s.AmountsUnparseable)
	metrics.RecordDegraded("account_created_at", "null", s.TimestampsNull)
}

func (r *Runner) println(msg string) {
	if r.Stdout == nil {
		return
	}
	fmt.Fprintln(r.Stdout, msg)
}
