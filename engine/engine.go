// Package engine ties index building, searching and listing to a data file
// and records traces and metrics for each operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/hooks"
	"github.com/INLOpen/flatindex/index"
	"github.com/INLOpen/flatindex/record"
	"github.com/INLOpen/flatindex/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/INLOpen/flatindex/engine"

// listCheckEvery is how many listed records pass between context checks.
const listCheckEvery = 1024

type Options struct {
	Format         core.IndexFormat
	SearchMode     core.SearchMode
	Strategy       core.BuildStrategy
	ChunkEntries   int
	TempDir        string
	Compressor     core.Compressor
	MemoryFraction float64
	Preallocate    bool
	LockTimeout    time.Duration

	// SearchCacheEntries bounds the per-Searcher lookup cache. Zero disables it.
	SearchCacheEntries int

	TracerProvider trace.TracerProvider
	Metrics        *EngineMetrics
	Hooks          hooks.HookManager
	Logger         *slog.Logger
}

// Engine runs index operations against data files. It holds no open files
// between calls and is safe for concurrent use.
type Engine struct {
	opts    Options
	tracer  trace.Tracer
	metrics *EngineMetrics
	hooks   hooks.HookManager
	logger  *slog.Logger
}

func New(opts Options) *Engine {
	e := &Engine{opts: opts, metrics: opts.Metrics, hooks: opts.Hooks, logger: opts.Logger}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.hooks == nil {
		e.hooks = hooks.NewHookManager(e.logger)
	}
	e.logger = e.logger.With("component", "Engine")
	if opts.TracerProvider != nil {
		e.tracer = opts.TracerProvider.Tracer(tracerName)
	} else {
		e.tracer = noop.NewTracerProvider().Tracer("")
	}
	if e.metrics == nil {
		e.metrics = NewEngineMetrics(false, "")
	}
	return e
}

func (e *Engine) Metrics() *EngineMetrics {
	return e.metrics
}

func (e *Engine) Hooks() hooks.HookManager {
	return e.hooks
}

// Close waits for asynchronous hook listeners.
func (e *Engine) Close() error {
	e.hooks.Stop()
	return nil
}

func failSpan(span trace.Span, err error, status string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
}

// Build creates or replaces the index of dataPath at indexPath.
func (e *Engine) Build(ctx context.Context, dataPath, indexPath string, keyLength int) (core.BuildResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Build")
	start := time.Now()
	defer func() {
		observeLatency(e.metrics.BuildLatencyHist, time.Since(start).Seconds())
		span.End()
	}()
	span.SetAttributes(
		attribute.String("index.data_path", dataPath),
		attribute.String("index.path", indexPath),
		attribute.Int("index.key_length", keyLength),
		attribute.String("index.format", e.opts.Format.String()),
	)
	e.metrics.BuildTotal.Add(1)

	strategy := e.opts.Strategy
	if err := e.hooks.Trigger(ctx, hooks.NewPreBuildEvent(hooks.PreBuildPayload{
		DataPath:  dataPath,
		IndexPath: indexPath,
		KeyLength: keyLength,
		Strategy:  &strategy,
	})); err != nil {
		e.metrics.BuildErrorsTotal.Add(1)
		failSpan(span, err, "pre_build_hook_failed")
		return core.BuildResult{}, err
	}

	res, err := index.Build(ctx, index.BuildOptions{
		DataPath:       dataPath,
		IndexPath:      indexPath,
		KeyLength:      keyLength,
		Format:         e.opts.Format,
		Strategy:       strategy,
		ChunkEntries:   e.opts.ChunkEntries,
		TempDir:        e.opts.TempDir,
		Compressor:     e.opts.Compressor,
		MemoryFraction: e.opts.MemoryFraction,
		Preallocate:    e.opts.Preallocate,
		LockTimeout:    e.opts.LockTimeout,
		Logger:         e.logger,
	})
	e.hooks.Trigger(ctx, hooks.NewPostBuildEvent(hooks.PostBuildPayload{
		DataPath:  dataPath,
		IndexPath: indexPath,
		KeyLength: keyLength,
		Result:    res,
		Error:     err,
	}))
	if err != nil {
		e.metrics.BuildErrorsTotal.Add(1)
		failSpan(span, err, "build_failed")
		return res, err
	}
	e.metrics.BuildEntriesTotal.Add(res.Entries)
	e.metrics.SpillRunsTotal.Add(int64(res.Runs))
	span.SetAttributes(
		attribute.String("build.strategy", string(res.Strategy)),
		attribute.Int64("build.records", res.Records),
		attribute.Int64("build.entries", res.Entries),
		attribute.Int64("build.skipped", res.Skipped),
		attribute.Int("build.runs", res.Runs),
	)
	return res, nil
}

// Search returns the content of the record indexed under key. It returns
// core.ErrNotFound when no record has that key.
func (e *Engine) Search(ctx context.Context, dataPath, indexPath string, key []byte, keyLength int) ([]byte, error) {
	s, err := e.OpenSearcher(ctx, dataPath, indexPath, keyLength)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Search(ctx, key)
}

// SearchAll returns every record indexed under key in data-file order.
func (e *Engine) SearchAll(ctx context.Context, dataPath, indexPath string, key []byte, keyLength int) ([][]byte, error) {
	s, err := e.OpenSearcher(ctx, dataPath, indexPath, keyLength)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.SearchAll(ctx, key)
}

// List calls fn with every indexed record in ascending key order and returns
// the number of records listed. Records shorter than the key length were
// never indexed and do not appear.
func (e *Engine) List(ctx context.Context, dataPath, indexPath string, keyLength int, fn func([]byte) error) (n int64, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.List")
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		observeLatency(e.metrics.ListLatencyHist, elapsed.Seconds())
		e.hooks.Trigger(ctx, hooks.NewPostListEvent(hooks.PostListPayload{
			IndexPath: indexPath,
			Records:   n,
			Duration:  elapsed,
			Error:     err,
		}))
		span.End()
	}()
	span.SetAttributes(
		attribute.String("index.path", indexPath),
		attribute.Int("index.key_length", keyLength),
	)
	e.metrics.ListTotal.Add(1)

	r, data, accessor, err := e.open(dataPath, indexPath, keyLength)
	if err != nil {
		failSpan(span, err, "open_failed")
		return 0, err
	}
	defer r.Close()
	defer data.Close()

	s := r.NewScanner()
	for s.Next() {
		if n%listCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				failSpan(span, err, "list_canceled")
				return n, err
			}
		}
		content, err := accessor.ReadAt(s.Entry().Offset)
		if err != nil {
			err = fmt.Errorf("failed to read record for entry %d: %w", s.Index(), err)
			failSpan(span, err, "record_read_failed")
			return n, err
		}
		if err := fn(content); err != nil {
			return n, err
		}
		n++
	}
	e.metrics.ListedRecordsTotal.Add(n)
	span.SetAttributes(attribute.Int64("list.records", n))
	if err := s.Err(); err != nil {
		failSpan(span, err, "index_scan_failed")
		return n, err
	}
	return n, nil
}

// Verify checks the index against its data file.
func (e *Engine) Verify(ctx context.Context, dataPath, indexPath string, keyLength int, checkCount bool) (index.VerifyReport, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Verify")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.path", indexPath),
		attribute.Int("index.key_length", keyLength),
		attribute.Bool("verify.check_count", checkCount),
	)
	e.metrics.VerifyTotal.Add(1)

	report, err := index.Verify(ctx, index.VerifyOptions{
		DataPath:   dataPath,
		IndexPath:  indexPath,
		KeyLength:  keyLength,
		Format:     e.opts.Format,
		CheckCount: checkCount,
		Logger:     e.logger,
	})
	span.SetAttributes(attribute.Int("verify.problems", len(report.Problems)))
	e.hooks.Trigger(ctx, hooks.NewPostVerifyEvent(hooks.PostVerifyPayload{
		IndexPath: indexPath,
		Entries:   report.Entries,
		Problems:  len(report.Problems),
		Error:     err,
	}))
	if err != nil {
		if errors.Is(err, core.ErrVerificationFailed) {
			e.metrics.VerifyFailuresTotal.Add(1)
		}
		failSpan(span, err, "verify_failed")
		return report, err
	}
	return report, nil
}

// Stats summarizes an index and the records it points at.
func (e *Engine) Stats(ctx context.Context, dataPath, indexPath string, keyLength int) (index.Stats, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("index.path", indexPath))

	r, data, accessor, err := e.open(dataPath, indexPath, keyLength)
	if err != nil {
		failSpan(span, err, "open_failed")
		return index.Stats{}, err
	}
	defer r.Close()
	defer data.Close()

	st, err := index.ComputeStats(ctx, r, accessor)
	if err != nil {
		failSpan(span, err, "stats_failed")
		return st, err
	}
	span.SetAttributes(
		attribute.Int64("stats.entries", st.Entries),
		attribute.Int64("stats.distinct_keys", st.DistinctKeys),
	)
	return st, nil
}

// open validates the index before touching the data file.
func (e *Engine) open(dataPath, indexPath string, keyLength int) (*index.Reader, sys.FileHandle, *record.Accessor, error) {
	r, err := index.OpenReader(index.ReaderOptions{
		Path:       indexPath,
		KeyLength:  keyLength,
		Format:     e.opts.Format,
		SearchMode: e.opts.SearchMode,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	data, err := sys.Open(dataPath)
	if err != nil {
		r.Close()
		return nil, nil, nil, fmt.Errorf("failed to open data file %s: %w", dataPath, err)
	}
	info, err := data.Stat()
	if err != nil {
		data.Close()
		r.Close()
		return nil, nil, nil, fmt.Errorf("failed to stat data file %s: %w", dataPath, err)
	}
	return r, data, record.NewAccessor(data, info.Size()), nil
}
