package sys

import (
	"sync"
	"sync/atomic"
)

// preallocCache remembers per device id whether fallocate worked, so repeated
// builds on the same mount skip the fstatfs probe.
var preallocCache sync.Map // uint64 dev -> bool

var preallocCacheHits atomic.Uint64
var preallocCacheMisses atomic.Uint64

func preallocCacheLoad(dev uint64) (allowed bool, found bool) {
	if v, ok := preallocCache.Load(dev); ok {
		if b, ok2 := v.(bool); ok2 {
			return b, true
		}
	}
	return false, false
}

func preallocCacheStore(dev uint64, allowed bool) {
	preallocCache.Store(dev, allowed)
}

func preallocCacheHit() {
	preallocCacheHits.Add(1)
}

func preallocCacheMiss() {
	preallocCacheMisses.Add(1)
}

// PreallocCacheStats returns the preallocation cache hit and miss counters.
func PreallocCacheStats() (hits uint64, misses uint64) {
	return preallocCacheHits.Load(), preallocCacheMisses.Load()
}
