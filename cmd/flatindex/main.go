// Command flatindex builds and searches fixed-width key indexes over
// newline-delimited data files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/INLOpen/flatindex/compressors"
	"github.com/INLOpen/flatindex/config"
	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/engine"
	"github.com/INLOpen/flatindex/hooks"
	"github.com/INLOpen/flatindex/hooks/listeners"
	"github.com/INLOpen/flatindex/sys"
	"go.opentelemetry.io/otel/trace"
)

const (
	exitOK       = 0
	exitError    = 1
	exitNotFound = 2
)

const usageLine = "Usage: flatindex [flags] -c|-l|-s|-v|-t|-b datafile indexfile keylength [key]"

// errUsage marks errors caused by bad arguments.
var errUsage = errors.New("usage error")

type command struct {
	op         string
	dataPath   string
	indexPath  string
	keyLength  int
	key        string
	all        bool
	checkCount bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, core.ErrNotFound):
		return exitNotFound
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stderr, usageLine)
		return exitError
	default:
		fmt.Fprintln(stderr, "flatindex:", err)
		return exitError
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("flatindex", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		create     = fs.Bool("c", false, "create the index")
		list       = fs.Bool("l", false, "list records in key order")
		search     = fs.Bool("s", false, "search for a key")
		verify     = fs.Bool("v", false, "verify the index against the data file")
		stats      = fs.Bool("t", false, "print index statistics")
		batch      = fs.Bool("b", false, "search every key read from stdin")
		configPath = fs.String("config", "flatindex.yaml", "Path to the configuration file")
		logLevel   = fs.String("log-level", "", "Logging level (debug, info, warn, error)")
		logOutput  = fs.String("log-output", "", "Log output (stderr, stdout, file, none)")
		logFormat  = fs.String("log-format", "", "Log format (auto, text, json)")
		format     = fs.String("format", "", "Index format (v1, raw)")
		strategy   = fs.String("strategy", "", "Build strategy (memory, staged, merge, auto)")
		searchMode = fs.String("search-mode", "", "Duplicate key handling (leftmost, any)")
		compress   = fs.String("compression", "", "Spill run compression (none, snappy, lz4, zstd)")
		chunk      = fs.Int("chunk-entries", 0, "Entries held in memory per merge run")
		tempDir    = fs.String("temp-dir", "", "Directory for spill runs")
		all        = fs.Bool("all", false, "with -s, print every record with the key")
		checkCount = fs.Bool("check-count", false, "with -v, rescan the data file and compare counts")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Logging.Level, *logLevel)
	override(&cfg.Logging.Output, *logOutput)
	override(&cfg.Logging.Format, *logFormat)
	override(&cfg.Index.Format, *format)
	override(&cfg.Build.Strategy, *strategy)
	override(&cfg.Index.SearchMode, *searchMode)
	override(&cfg.Build.SpillCompression, *compress)
	override(&cfg.Build.TempDir, *tempDir)
	if *chunk > 0 {
		cfg.Build.ChunkEntries = *chunk
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cmd, err := parseCommand(fs.Args(), cfg.Index.KeyLength, map[string]bool{
		"c": *create, "l": *list, "s": *search, "v": *verify, "t": *stats, "b": *batch,
	})
	if err != nil {
		return err
	}
	cmd.all = *all
	cmd.checkCount = *checkCount

	logger, closer, err := createLogger(cfg.Logging, stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(logger)

	if cfg.Debug.FileTracking {
		sys.SetDebugLogger(logger)
		sys.SetDebugMode(true)
		defer func() {
			sys.SetDebugMode(false)
			if open := sys.OpenHandles(); len(open) > 0 {
				logger.Warn("File handles left open", "files", open)
			}
		}()
	}

	tp, cleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	eng, err := newEngine(cfg, tp, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	if cfg.Debug.MetricsEnabled {
		defer func() {
			logger.Info("Engine metrics", "metrics", eng.Metrics().Snapshot())
		}()
	}

	return execute(ctx, eng, cmd, stdin, stdout)
}

// parseCommand checks that exactly one operation was given and reads the
// positional arguments. A key length of "-" falls back to the configured one.
func parseCommand(args []string, configuredKeyLength int, ops map[string]bool) (command, error) {
	var cmd command
	for _, name := range []string{"c", "l", "s", "v", "t", "b"} {
		if !ops[name] {
			continue
		}
		if cmd.op != "" {
			return cmd, fmt.Errorf("%w: only one of -c, -l, -s, -v, -t, -b may be given", errUsage)
		}
		cmd.op = name
	}
	if cmd.op == "" {
		return cmd, fmt.Errorf("%w: no operation given", errUsage)
	}

	want := 3
	if cmd.op == "s" {
		want = 4
	}
	if len(args) != want {
		return cmd, fmt.Errorf("%w: -%s takes %d arguments, got %d", errUsage, cmd.op, want, len(args))
	}
	cmd.dataPath, cmd.indexPath = args[0], args[1]

	if args[2] == "-" && configuredKeyLength > 0 {
		cmd.keyLength = configuredKeyLength
	} else {
		kl, err := strconv.Atoi(args[2])
		if err != nil {
			return cmd, fmt.Errorf("%w: key length %q is not a number", errUsage, args[2])
		}
		cmd.keyLength = kl
	}
	if err := core.ValidateKeyLength(cmd.keyLength); err != nil {
		return cmd, fmt.Errorf("%w: %v", errUsage, err)
	}
	if cmd.op == "s" {
		cmd.key = args[3]
	}
	return cmd, nil
}

func newEngine(cfg *config.Config, tp trace.TracerProvider, logger *slog.Logger) (*engine.Engine, error) {
	indexFormat, err := core.ParseIndexFormat(cfg.Index.Format)
	if err != nil {
		return nil, err
	}
	mode, err := core.ParseSearchMode(cfg.Index.SearchMode)
	if err != nil {
		return nil, err
	}
	strategy, err := core.ParseBuildStrategy(cfg.Build.Strategy)
	if err != nil {
		return nil, err
	}
	compressor, err := compressors.ByName(cfg.Build.SpillCompression)
	if err != nil {
		return nil, err
	}
	var metrics *engine.EngineMetrics
	if cfg.Debug.MetricsEnabled {
		metrics = engine.NewEngineMetrics(true, "flatindex_")
	}
	hookManager := hooks.NewHookManager(logger)
	listeners.NewSlowOperationListener(logger,
		config.ParseDuration(cfg.Hooks.SlowSearchThreshold, 0, logger),
		config.ParseDuration(cfg.Hooks.SlowListThreshold, 0, logger),
	).Register(hookManager)
	return engine.New(engine.Options{
		Format:         indexFormat,
		SearchMode:     mode,
		Strategy:       strategy,
		ChunkEntries:   cfg.Build.ChunkEntries,
		TempDir:        cfg.Build.TempDir,
		Compressor:     compressor,
		MemoryFraction: cfg.Build.MemoryFraction,
		Preallocate:    cfg.Build.Preallocate,
		LockTimeout:    config.ParseDuration(cfg.Build.LockTimeout, 0, logger),

		SearchCacheEntries: cfg.Index.SearchCacheEntries,

		TracerProvider: tp,
		Metrics:        metrics,
		Hooks:          hookManager,
		Logger:         logger,
	}), nil
}
