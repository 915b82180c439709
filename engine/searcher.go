package engine

import (
	"context"
	"errors"
	"time"

	"github.com/INLOpen/flatindex/cache"
	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/hooks"
	"github.com/INLOpen/flatindex/index"
	"github.com/INLOpen/flatindex/record"
	"github.com/INLOpen/flatindex/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Searcher keeps an index and its data file open for repeated lookups.
// Lookup results are cached per key for the Searcher's lifetime; the open
// index handle keeps pointing at the same file even if it is rebuilt.
type Searcher struct {
	e        *Engine
	reader   *index.Reader
	data     sys.FileHandle
	accessor *record.Accessor
	lookups  *cache.LRU[string, []int64] // empty value = miss
}

// OpenSearcher opens indexPath and dataPath for a series of searches. The
// caller must Close it.
func (e *Engine) OpenSearcher(ctx context.Context, dataPath, indexPath string, keyLength int) (*Searcher, error) {
	_, span := e.tracer.Start(ctx, "Engine.OpenSearcher")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.path", indexPath),
		attribute.Int("index.key_length", keyLength),
	)
	r, data, accessor, err := e.open(dataPath, indexPath, keyLength)
	if err != nil {
		failSpan(span, err, "open_failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("index.entries", r.Len()))
	lookups := cache.New[string, []int64](e.opts.SearchCacheEntries, nil)
	lookups.SetMetrics(e.metrics.SearchCacheHits, e.metrics.SearchCacheMisses)
	return &Searcher{e: e, reader: r, data: data, accessor: accessor, lookups: lookups}, nil
}

// Search returns the record stored under key. Pre-search listeners may
// rewrite the key or cancel the lookup.
func (s *Searcher) Search(ctx context.Context, key []byte) (content []byte, err error) {
	ctx, span := s.e.tracer.Start(ctx, "Engine.Search")
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		observeLatency(s.e.metrics.SearchLatencyHist, elapsed.Seconds())
		matches := 0
		if err == nil {
			matches = 1
		}
		s.postSearch(ctx, key, err == nil, matches, elapsed, err)
		span.End()
	}()
	s.e.metrics.SearchTotal.Add(1)
	if key, err = s.preSearch(ctx, span, key); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.key_length", len(key)))

	off, err := s.lookup(key)
	if err != nil {
		return nil, s.miss(span, err)
	}
	content, err = s.accessor.ReadAt(off)
	if err != nil {
		s.e.metrics.SearchErrorsTotal.Add(1)
		failSpan(span, err, "record_read_failed")
		return nil, err
	}
	s.e.metrics.SearchHitsTotal.Add(1)
	span.SetAttributes(attribute.Bool("search.found", true), attribute.Int64("search.offset", off))
	return content, nil
}

// SearchAll returns every record stored under key in data-file order.
func (s *Searcher) SearchAll(ctx context.Context, key []byte) (out [][]byte, err error) {
	ctx, span := s.e.tracer.Start(ctx, "Engine.SearchAll")
	start := time.Now()
	defer func() {
		s.postSearch(ctx, key, err == nil, len(out), time.Since(start), err)
		span.End()
	}()
	s.e.metrics.SearchTotal.Add(1)
	if key, err = s.preSearch(ctx, span, key); err != nil {
		return nil, err
	}

	offsets, err := s.lookupAll(key)
	if err != nil {
		return nil, s.miss(span, err)
	}
	out = make([][]byte, 0, len(offsets))
	for _, off := range offsets {
		content, err := s.accessor.ReadAt(off)
		if err != nil {
			s.e.metrics.SearchErrorsTotal.Add(1)
			failSpan(span, err, "record_read_failed")
			return nil, err
		}
		out = append(out, content)
	}
	s.e.metrics.SearchHitsTotal.Add(1)
	span.SetAttributes(attribute.Bool("search.found", true), attribute.Int("search.matches", len(out)))
	return out, nil
}

func (s *Searcher) lookup(key []byte) (int64, error) {
	ck := "1" + string(key)
	if offs, ok := s.lookups.Get(ck); ok {
		if len(offs) == 0 {
			return 0, core.ErrNotFound
		}
		return offs[0], nil
	}
	off, err := s.reader.Lookup(key)
	switch {
	case err == nil:
		s.lookups.Put(ck, []int64{off})
	case errors.Is(err, core.ErrNotFound):
		s.lookups.Put(ck, nil)
	}
	return off, err
}

func (s *Searcher) lookupAll(key []byte) ([]int64, error) {
	ck := "*" + string(key)
	if offs, ok := s.lookups.Get(ck); ok {
		if len(offs) == 0 {
			return nil, core.ErrNotFound
		}
		return offs, nil
	}
	offs, err := s.reader.LookupAll(key)
	switch {
	case err == nil:
		s.lookups.Put(ck, offs)
	case errors.Is(err, core.ErrNotFound):
		s.lookups.Put(ck, nil)
	}
	return offs, err
}

// preSearch runs pre-search listeners on a private copy of key.
func (s *Searcher) preSearch(ctx context.Context, span trace.Span, key []byte) ([]byte, error) {
	k := append([]byte(nil), key...)
	if err := s.e.hooks.Trigger(ctx, hooks.NewPreSearchEvent(hooks.PreSearchPayload{
		IndexPath: s.reader.Path(),
		Key:       &k,
	})); err != nil {
		s.e.metrics.SearchErrorsTotal.Add(1)
		failSpan(span, err, "pre_search_hook_failed")
		return key, err
	}
	return k, nil
}

func (s *Searcher) postSearch(ctx context.Context, key []byte, found bool, matches int, elapsed time.Duration, err error) {
	s.e.hooks.Trigger(ctx, hooks.NewPostSearchEvent(hooks.PostSearchPayload{
		IndexPath: s.reader.Path(),
		Key:       key,
		Found:     found,
		Matches:   matches,
		Duration:  elapsed,
		Error:     err,
	}))
}

// miss counts a lookup failure. Not found is a normal result, not a span error.
func (s *Searcher) miss(span trace.Span, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		s.e.metrics.SearchMissesTotal.Add(1)
		span.SetAttributes(attribute.Bool("search.found", false))
		return err
	}
	s.e.metrics.SearchErrorsTotal.Add(1)
	failSpan(span, err, "lookup_failed")
	return err
}

func (s *Searcher) Close() error {
	return errors.Join(s.reader.Close(), s.data.Close())
}
