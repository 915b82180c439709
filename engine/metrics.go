package engine

import (
	"encoding/json"
	"expvar"
)

// EngineMetrics holds the expvar counters of an Engine.
type EngineMetrics struct {
	PublishedGlobally bool

	BuildTotal        *expvar.Int
	BuildErrorsTotal  *expvar.Int
	BuildEntriesTotal *expvar.Int
	SpillRunsTotal    *expvar.Int

	SearchTotal       *expvar.Int
	SearchErrorsTotal *expvar.Int
	SearchHitsTotal   *expvar.Int
	SearchMissesTotal *expvar.Int

	SearchCacheHits   *expvar.Int
	SearchCacheMisses *expvar.Int

	ListTotal          *expvar.Int
	ListedRecordsTotal *expvar.Int

	VerifyTotal         *expvar.Int
	VerifyFailuresTotal *expvar.Int

	BuildLatencyHist  *expvar.Map
	SearchLatencyHist *expvar.Map
	ListLatencyHist   *expvar.Map
}

// NewEngineMetrics creates the counters. With publishGlobally they are
// registered in the expvar namespace under prefix.
func NewEngineMetrics(publishGlobally bool, prefix string) *EngineMetrics {
	newInt := func(_ string) *expvar.Int { return new(expvar.Int) }
	newMap := func(_ string) *expvar.Map { return new(expvar.Map).Init() }
	if publishGlobally {
		newInt = publishExpvarInt
		newMap = publishExpvarMap
	}

	em := &EngineMetrics{
		PublishedGlobally: publishGlobally,

		BuildTotal:        newInt(prefix + "build_total"),
		BuildErrorsTotal:  newInt(prefix + "build_errors_total"),
		BuildEntriesTotal: newInt(prefix + "build_entries_total"),
		SpillRunsTotal:    newInt(prefix + "spill_runs_total"),

		SearchTotal:       newInt(prefix + "search_total"),
		SearchErrorsTotal: newInt(prefix + "search_errors_total"),
		SearchHitsTotal:   newInt(prefix + "search_hits_total"),
		SearchMissesTotal: newInt(prefix + "search_misses_total"),

		SearchCacheHits:   newInt(prefix + "search_cache_hits_total"),
		SearchCacheMisses: newInt(prefix + "search_cache_misses_total"),

		ListTotal:          newInt(prefix + "list_total"),
		ListedRecordsTotal: newInt(prefix + "listed_records_total"),

		VerifyTotal:         newInt(prefix + "verify_total"),
		VerifyFailuresTotal: newInt(prefix + "verify_failures_total"),

		BuildLatencyHist:  newMap(prefix + "build_latency_seconds"),
		SearchLatencyHist: newMap(prefix + "search_latency_seconds"),
		ListLatencyHist:   newMap(prefix + "list_latency_seconds"),
	}
	for _, m := range []*expvar.Map{em.BuildLatencyHist, em.SearchLatencyHist, em.ListLatencyHist} {
		initHistogram(m)
	}
	return em
}

// Snapshot returns the current counter values keyed by metric name.
func (em *EngineMetrics) Snapshot() map[string]any {
	out := map[string]any{
		"build_total":               em.BuildTotal.Value(),
		"build_errors_total":        em.BuildErrorsTotal.Value(),
		"build_entries_total":       em.BuildEntriesTotal.Value(),
		"spill_runs_total":          em.SpillRunsTotal.Value(),
		"search_total":              em.SearchTotal.Value(),
		"search_errors_total":       em.SearchErrorsTotal.Value(),
		"search_cache_hits_total":   em.SearchCacheHits.Value(),
		"search_cache_misses_total": em.SearchCacheMisses.Value(),
		"search_hits_total":         em.SearchHitsTotal.Value(),
		"search_misses_total":       em.SearchMissesTotal.Value(),
		"list_total":                em.ListTotal.Value(),
		"listed_records_total":      em.ListedRecordsTotal.Value(),
		"verify_total":              em.VerifyTotal.Value(),
		"verify_failures_total":     em.VerifyFailuresTotal.Value(),
	}
	for name, m := range map[string]*expvar.Map{
		"build_latency_seconds":  em.BuildLatencyHist,
		"search_latency_seconds": em.SearchLatencyHist,
		"list_latency_seconds":   em.ListLatencyHist,
	} {
		var v any
		if err := json.Unmarshal([]byte(m.String()), &v); err == nil {
			out[name] = v
		}
	}
	return out
}
