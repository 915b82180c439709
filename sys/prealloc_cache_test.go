package sys

import (
	"errors"
	"path/filepath"
	"testing"
)

func resetPreallocCacheForTest() {
	preallocCache.Range(func(k, v any) bool {
		preallocCache.Delete(k)
		return true
	})
	preallocCacheHits.Store(0)
	preallocCacheMisses.Store(0)
}

func TestPreallocCacheCountersAndStoreLoad(t *testing.T) {
	resetPreallocCacheForTest()

	hits, misses := PreallocCacheStats()
	if hits != 0 || misses != 0 {
		t.Fatalf("expected zeroed stats, got hits=%d misses=%d", hits, misses)
	}

	preallocCacheMiss()
	preallocCacheHit()
	preallocCacheHit()
	hits, misses = PreallocCacheStats()
	if hits != 2 || misses != 1 {
		t.Fatalf("expected hits=2 misses=1, got hits=%d misses=%d", hits, misses)
	}

	const devID = uint64(0xABCD)
	if _, found := preallocCacheLoad(devID); found {
		t.Fatalf("expected dev %d to be absent", devID)
	}
	preallocCacheStore(devID, false)
	if allow, found := preallocCacheLoad(devID); !found || allow {
		t.Fatalf("expected stored false, got found=%v allow=%v", found, allow)
	}
	preallocCacheStore(devID, true)
	if allow, found := preallocCacheLoad(devID); !found || !allow {
		t.Fatalf("expected stored true, got found=%v allow=%v", found, allow)
	}
}

func TestPreallocate_BestEffort(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "index.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := Preallocate(f, 0); err != nil {
		t.Fatalf("zero-size preallocation should be a no-op, got %v", err)
	}
	err = Preallocate(f, 4096)
	if err != nil && !errors.Is(err, ErrPreallocNotSupported) {
		t.Fatalf("unexpected preallocation error: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("preallocation must keep the visible size, got %d", info.Size())
	}
}
