package toolcache

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestHashArgsCanonical(t *testing.T) {
	a := map[string]any{"query": "MurA", "limit": 10, "filters": map[string]any{"b": 1, "a": []any{"x", 2}}}
	b := map[string]any{"filters": map[string]any{"a": []any{"x", 2}, "b": 1}, "limit": 10, "query": "MurA"}
	if HashArgs(a) != HashArgs(b) {
		t.Fatalf("key order must not affect the hash")
	}
	if HashArgs(a) == HashArgs(map[string]any{"query": "MurA", "limit": 11}) {
		t.Fatalf("different args must hash differently")
	}
	if len(HashArgs(nil)) != 64 {
		t.Fatalf("expected sha256 hex digest")
	}
}

func TestHashArgsUnencodableValues(t *testing.T) {
	args := map[string]any{"x": math.Inf(1), "ch": make(chan int)}
	if HashArgs(args) == "" {
		t.Fatalf("expected a hash even for values json cannot encode")
	}
	if HashArgs(map[string]any{"x": math.Inf(1)}) != HashArgs(map[string]any{"x": "+Inf"}) {
		t.Fatalf("expected fmt.Sprint coercion for unencodable scalars")
	}
}

func TestTTLTable(t *testing.T) {
	table := NewTTLTable(map[string]time.Duration{"search_literature": time.Hour, "custom": 0})
	if ttl, ok := table.TTL("search_literature"); !ok || ttl != time.Hour {
		t.Fatalf("expected override, got %v %v", ttl, ok)
	}
	if ttl, ok := table.TTL("custom"); !ok || ttl != NoExpiry {
		t.Fatalf("expected zero override to mean never expires, got %v", ttl)
	}
	if ttl, ok := table.TTL("search_bioactivity"); !ok || ttl != 7*24*time.Hour {
		t.Fatalf("expected default week, got %v", ttl)
	}
	if _, ok := table.TTL("record_finding"); ok {
		t.Fatalf("tools outside the table must not be cacheable")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCacheWithClock(func() time.Time { return now })
	ctx := context.Background()

	c.Put(ctx, "search_literature", "h1", `{"papers":[]}`, time.Hour)
	c.Put(ctx, "compute_descriptors", "h2", `{"mw":46.07}`, NoExpiry)

	if v, ok := c.Get(ctx, "search_literature", "h1"); !ok || v != `{"papers":[]}` {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
	if _, ok := c.Get(ctx, "search_literature", "other"); ok {
		t.Fatalf("expected miss for different hash")
	}

	now = now.Add(time.Hour)
	if _, ok := c.Get(ctx, "search_literature", "h1"); ok {
		t.Fatalf("expected expiry at ttl boundary")
	}
	if c.Len() != 1 {
		t.Fatalf("expected expired entry evicted on read, len=%d", c.Len())
	}

	now = now.Add(1000 * 24 * time.Hour)
	if _, ok := c.Get(ctx, "compute_descriptors", "h2"); !ok {
		t.Fatalf("never-expiring entry should survive")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected purge to empty the cache")
	}
}
