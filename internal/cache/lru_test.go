package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("k2", "v2")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry returned")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size after clean = %d", c.Size())
	}
}

func TestLRUDeletePrefixAndStats(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("dashboard:farm-1:2025-01", 1)
	c.Set("dashboard:farm-1:2025-02", 2)
	c.Set("dashboard:farm-2:2025-01", 3)

	if n := c.DeletePrefix("dashboard:farm-1:"); n != 2 {
		t.Fatalf("DeletePrefix = %d", n)
	}
	c.Get("dashboard:farm-1:2025-01")
	c.Get("dashboard:farm-2:2025-01")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}
