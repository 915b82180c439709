package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/INLOpen/flatindex/compressors"
	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/record"
	"github.com/INLOpen/flatindex/sys"
	"github.com/INLOpen/skiplist"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// checkEvery is how many records pass between context checks.
const checkEvery = 4096

// DefaultMemoryFraction is the share of available memory the auto strategy
// lets an in-memory build use.
const DefaultMemoryFraction = 0.5

// BuildOptions configures a single index build.
type BuildOptions struct {
	DataPath  string
	IndexPath string
	KeyLength int
	Format    core.IndexFormat
	Strategy  core.BuildStrategy
	// ChunkEntries bounds the entries the merge strategy holds before spilling a run.
	ChunkEntries int
	// TempDir holds spill runs. Empty means the index file's directory.
	TempDir string
	// Compressor encodes spill blocks. Nil stores them uncompressed.
	Compressor     core.Compressor
	MemoryFraction float64
	Preallocate    bool
	// LockTimeout is how long to wait for a concurrent build of the same index.
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// availableMemory reports the memory the auto strategy may plan against.
var availableMemory = func() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

type builder struct {
	opts   BuildOptions
	layout layout
	data   sys.FileHandle
	logger *slog.Logger
	result core.BuildResult
}

// Build scans the data file, sorts the keyed records by (key, offset) and
// publishes the index at opts.IndexPath. The previous index, if any, stays
// untouched unless the build succeeds.
func Build(ctx context.Context, opts BuildOptions) (core.BuildResult, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "IndexBuilder")

	lay, err := newLayout(opts.Format, opts.KeyLength)
	if err != nil {
		return core.BuildResult{}, err
	}
	strategy, err := core.ParseBuildStrategy(string(opts.Strategy))
	if err != nil {
		return core.BuildResult{}, err
	}
	if opts.ChunkEntries <= 0 {
		opts.ChunkEntries = core.DefaultChunkEntries
	}
	if opts.MemoryFraction <= 0 || opts.MemoryFraction > 1 {
		opts.MemoryFraction = DefaultMemoryFraction
	}
	if opts.Compressor == nil {
		opts.Compressor = &compressors.NoCompressionCompressor{}
	}

	release, err := acquireBuildLock(opts.IndexPath, opts.LockTimeout, logger)
	if err != nil {
		return core.BuildResult{}, err
	}
	defer release()

	data, err := sys.Open(opts.DataPath)
	if err != nil {
		return core.BuildResult{}, fmt.Errorf("failed to open data file %s: %w", opts.DataPath, err)
	}
	defer data.Close()
	info, err := data.Stat()
	if err != nil {
		return core.BuildResult{}, fmt.Errorf("failed to stat data file %s: %w", opts.DataPath, err)
	}

	if strategy == core.StrategyAuto {
		strategy = chooseStrategy(info.Size(), opts.KeyLength, opts.MemoryFraction, logger)
	}
	logger.Debug("Starting index build", "data", opts.DataPath, "index", opts.IndexPath,
		"key_length", opts.KeyLength, "format", opts.Format.String(), "strategy", string(strategy), "data_size", info.Size())

	b := &builder{opts: opts, layout: lay, data: data, logger: logger}
	b.result.Strategy = strategy
	switch strategy {
	case core.StrategyMemory:
		err = b.buildInMemory(ctx, info.Size())
	case core.StrategyStaged:
		err = b.buildStaged(ctx)
	case core.StrategyMerge:
		err = b.buildMerge(ctx)
	}
	if err != nil {
		return b.result, err
	}

	b.result.IndexSize = lay.fileSize(b.result.Entries)
	b.result.Duration = time.Since(start)
	logger.Info("Index build finished",
		"index", opts.IndexPath,
		"strategy", string(strategy),
		"records", b.result.Records,
		"entries", b.result.Entries,
		"skipped", b.result.Skipped,
		"runs", b.result.Runs,
		"duration", b.result.Duration)
	return b.result, nil
}

// chooseStrategy picks memory when the worst-case entry count fits in the
// allowed share of available memory, merge otherwise.
func chooseStrategy(dataSize int64, keyLength int, fraction float64, logger *slog.Logger) core.BuildStrategy {
	// Every keyed record takes at least keyLength+1 bytes of the data file.
	maxEntries := dataSize/int64(keyLength+1) + 1
	need := float64(maxEntries) * float64(core.RecordSize(keyLength)) * 2
	avail, err := availableMemory()
	if err != nil {
		logger.Warn("Could not read available memory, using merge strategy", "error", err)
		return core.StrategyMerge
	}
	if need <= float64(avail)*fraction {
		return core.StrategyMemory
	}
	logger.Info("Data file too large for an in-memory build, using merge strategy",
		"estimated_bytes", int64(need), "available_bytes", avail, "fraction", fraction)
	return core.StrategyMerge
}

func acquireBuildLock(indexPath string, timeout time.Duration, logger *slog.Logger) (func(), error) {
	lockPath := core.FormatTempFilename(indexPath, core.LockFileSuffix)
	release, err := sys.AcquireOSFileLock(lockPath, timeout)
	if err != nil {
		switch {
		case errors.Is(err, sys.ErrOSFileLockNotSupported):
			logger.Debug("OS file lock not supported, building without lock", "path", lockPath)
			return func() {}, nil
		case errors.Is(err, sys.ErrLockHeld):
			return nil, fmt.Errorf("%w: %s", core.ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("failed to lock index %s: %w", indexPath, err)
	}
	return func() {
		if err := release(); err != nil {
			logger.Warn("Failed to release index lock", "path", lockPath, "error", err)
		}
	}, nil
}

// scan feeds every keyed record of the data file to fn.
func (b *builder) scan(ctx context.Context, fn func(key []byte, offset int64) error) error {
	if _, err := b.data.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind data file: %w", err)
	}
	s := record.NewScanner(b.data)
	for s.Next() {
		if b.result.Records%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec := s.Record()
		b.result.Records++
		key, ok := record.ExtractKey(rec.Content, b.layout.keyLength)
		if !ok {
			b.result.Skipped++
			continue
		}
		b.result.Entries++
		if err := fn(key, rec.Offset); err != nil {
			return err
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("failed to scan data file %s: %w", b.opts.DataPath, err)
	}
	return nil
}

func (b *builder) newWriter(count int64) (*indexWriter, error) {
	return newIndexWriter(writerOptions{
		Path:        b.opts.IndexPath,
		Layout:      b.layout,
		Count:       count,
		Preallocate: b.opts.Preallocate,
		Logger:      b.logger,
	})
}

// writePacked publishes an already sorted entry set.
func (b *builder) writePacked(p *packedEntries) error {
	count := int64(p.Len())
	w, err := b.newWriter(count)
	if err != nil {
		return err
	}
	defer w.Abort()
	if err := w.AddEncoded(p.bytes(), count); err != nil {
		return err
	}
	return w.Finish()
}

func (b *builder) buildInMemory(ctx context.Context, dataSize int64) error {
	hint := dataSize/int64(b.layout.keyLength+1) + 1
	if hint > 1<<22 {
		hint = 1 << 22
	}
	p := newPackedEntries(b.layout.keyLength, int(hint))
	err := b.scan(ctx, func(key []byte, offset int64) error {
		p.add(key, offset)
		return nil
	})
	if err != nil {
		return err
	}
	p.sort()
	return b.writePacked(p)
}

func (b *builder) tempDir() string {
	if b.opts.TempDir != "" {
		return b.opts.TempDir
	}
	return filepath.Dir(b.opts.IndexPath)
}

func (b *builder) createRun() (sys.FileHandle, error) {
	f, err := sys.CreateTemp(b.tempDir(), core.SpillFilePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create spill run in %s: %w", b.tempDir(), err)
	}
	return f, nil
}

func (b *builder) removeRuns(paths []string) {
	for _, p := range paths {
		if err := sys.Remove(p); err != nil {
			b.logger.Warn("Failed to remove spill run", "path", p, "error", err)
		}
	}
}

// buildStaged writes unsorted entries to one spill run, then loads the run,
// sorts it and writes the index.
func (b *builder) buildStaged(ctx context.Context) error {
	f, err := b.createRun()
	if err != nil {
		return err
	}
	runPath := f.Name()
	defer b.removeRuns([]string{runPath})

	sw, err := newSpillWriter(f, b.layout.keyLength, b.opts.Compressor)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := b.scan(ctx, sw.add); err != nil {
		_ = sw.close()
		return err
	}
	if err := sw.close(); err != nil {
		return err
	}
	b.result.Runs = 1
	b.recordRun(ctx, runPath, sw)

	sr, err := openSpillReader(runPath, b.layout.keyLength)
	if err != nil {
		return err
	}
	defer sr.close()

	p := newPackedEntries(b.layout.keyLength, int(sw.count))
	for {
		block, err := sr.nextBlock()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		p.addEncoded(block)
	}
	if int64(p.Len()) != sw.count {
		return fmt.Errorf("%w: spill run holds %d entries, wrote %d", core.ErrCorruptIndex, p.Len(), sw.count)
	}
	p.sort()
	return b.writePacked(p)
}

type chunkList = skiplist.SkipList[*core.IndexEntry, struct{}]

func newChunk() *chunkList {
	return skiplist.NewWithComparator[*core.IndexEntry, struct{}](func(a, b *core.IndexEntry) int {
		return core.CompareEntries(*a, *b)
	})
}

// buildMerge keeps at most ChunkEntries entries in a sorted skiplist. Full
// chunks are spilled as sorted runs while scanning continues, and the runs
// are k-way merged into the index.
func (b *builder) buildMerge(ctx context.Context) error {
	var runPaths []string
	defer func() { b.removeRuns(runPaths) }()

	g, gctx := errgroup.WithContext(ctx)
	// One spill in flight while the next chunk fills.
	g.SetLimit(1)

	spill := func(list *chunkList) error {
		f, err := b.createRun()
		if err != nil {
			return err
		}
		runPaths = append(runPaths, f.Name())
		g.Go(func() error {
			sw, err := b.writeRun(gctx, f, list)
			if err != nil {
				return err
			}
			b.recordRun(ctx, f.Name(), sw)
			return nil
		})
		return nil
	}

	chunk := newChunk()
	scanErr := b.scan(gctx, func(key []byte, offset int64) error {
		chunk.Insert(&core.IndexEntry{Key: append([]byte(nil), key...), Offset: offset}, struct{}{})
		if chunk.Len() >= b.opts.ChunkEntries {
			if err := spill(chunk); err != nil {
				return err
			}
			chunk = newChunk()
		}
		return nil
	})
	if scanErr == nil && len(runPaths) > 0 && chunk.Len() > 0 {
		scanErr = spill(chunk)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}

	w, err := b.newWriter(b.result.Entries)
	if err != nil {
		return err
	}
	defer w.Abort()

	if len(runPaths) == 0 {
		// Everything fit in one chunk.
		it := chunk.NewIterator()
		for ok := it.First(); ok; ok = it.Next() {
			e := it.Key()
			if err := w.Add(e.Key, e.Offset); err != nil {
				return err
			}
		}
		return w.Finish()
	}

	b.result.Runs = len(runPaths)
	readers := make([]*spillReader, 0, len(runPaths))
	for _, p := range runPaths {
		r, err := openSpillReader(p, b.layout.keyLength)
		if err != nil {
			for _, open := range readers {
				_ = open.close()
			}
			return err
		}
		readers = append(readers, r)
	}
	b.logger.Debug("Merging spill runs", "runs", len(readers))
	if err := mergeRuns(ctx, readers, b.layout.keyLength, w); err != nil {
		return err
	}
	return w.Finish()
}

func (b *builder) writeRun(ctx context.Context, f sys.FileHandle, list *chunkList) (*spillWriter, error) {
	sw, err := newSpillWriter(f, b.layout.keyLength, b.opts.Compressor)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	it := list.NewIterator()
	var n int64
	for ok := it.First(); ok; ok = it.Next() {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				_ = sw.close()
				return nil, err
			}
		}
		e := it.Key()
		if err := sw.add(e.Key, e.Offset); err != nil {
			_ = sw.close()
			return nil, err
		}
		n++
	}
	if err := sw.close(); err != nil {
		return nil, err
	}
	return sw, nil
}

func (b *builder) recordRun(ctx context.Context, path string, sw *spillWriter) {
	b.logger.Debug("Spill run written", "path", path, "entries", sw.count, "blocks", sw.blocks,
		"compression", sw.compressor.Type().String())
	trace.SpanFromContext(ctx).AddEvent("spill run written", trace.WithAttributes(
		attribute.String("run.path", path),
		attribute.Int64("run.entries", sw.count),
		attribute.Int("run.blocks", sw.blocks),
	))
}
