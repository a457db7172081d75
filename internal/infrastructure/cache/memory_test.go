package cache

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestTimedCache_PutAndGet(t *testing.T) {
	c := NewTimedCache[string, string](Options[string]{TTL: time.Minute})

	c.Put("k", "v")
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}

	c.Put("k", "v2")
	got, _ = c.Get("k")
	if got != "v2" {
		t.Errorf("Get() after overwrite = %q, want %q", got, "v2")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestTimedCache_Get_Miss(t *testing.T) {
	c := NewTimedCache[string, int](Options[int]{TTL: time.Minute})

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() ok = true for missing key")
	}
}

func TestTimedCache_LazyExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewTimedCache[string, string](Options[string]{TTL: 15 * time.Minute, Clock: clock.Now})

	c.Put("search:leche:14010", "cached")
	clock.Advance(14 * time.Minute)
	if _, ok := c.Get("search:leche:14010"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clock.Advance(2 * time.Minute) // 16 minutes after insertion
	if _, ok := c.Get("search:leche:14010"); ok {
		t.Error("Get() ok = true after TTL elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0: expired entry should be removed by the read", c.Len())
	}
}

func TestTimedCache_CapacityEviction(t *testing.T) {
	c := NewTimedCache[string, int](Options[int]{TTL: time.Hour, Capacity: 100})

	for i := 0; i < 101; i++ {
		c.Put(fmt.Sprintf("key-%d", i), i)
	}

	if c.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", c.Len())
	}
	if _, ok := c.Get("key-0"); ok {
		t.Error("oldest key should have been evicted")
	}
	if _, ok := c.Get("key-100"); !ok {
		t.Error("newest key should be present")
	}
}

func TestTimedCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	c := NewTimedCache[string, int](Options[int]{TTL: time.Hour, Capacity: 3})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Reading "a" makes "b" the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) ok = false")
	}
	c.Put("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Get(%s) ok = false, want true", k)
		}
	}
}

func TestTimedCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewTimedCache[string, int](Options[int]{TTL: 10 * time.Minute, Clock: clock.Now})

	c.Put("old-1", 1)
	c.Put("old-2", 2)
	clock.Advance(6 * time.Minute)
	c.Put("fresh", 3)
	clock.Advance(5 * time.Minute)

	removed := c.Sweep()
	if removed != 2 {
		t.Errorf("Sweep() removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestTimedCache_ZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := NewTimedCache[string, int](Options[int]{Clock: clock.Now})

	c.Put("k", 1)
	clock.Advance(1000 * time.Hour)

	if _, ok := c.Get("k"); !ok {
		t.Error("entry expired with zero TTL")
	}
	if removed := c.Sweep(); removed != 0 {
		t.Errorf("Sweep() removed %d, want 0", removed)
	}
}

func TestTimedCache_CopiesValues(t *testing.T) {
	c := NewTimedCache[string, []string](Options[[]string]{
		TTL:  time.Minute,
		Copy: slices.Clone[[]string],
	})

	original := []string{"leche", "pan"}
	c.Put("k", original)
	original[0] = "mutated before read"

	got, _ := c.Get("k")
	if got[0] != "leche" {
		t.Errorf("cached value changed through the inserted slice: %v", got)
	}

	got[1] = "mutated after read"
	again, _ := c.Get("k")
	if again[1] != "pan" {
		t.Errorf("cached value changed through the returned slice: %v", again)
	}
}

func TestTimedCache_DeleteAndClear(t *testing.T) {
	c := NewTimedCache[string, int](Options[int]{TTL: time.Minute})

	for i := 0; i < 5; i++ {
		c.Put(string(rune('a'+i)), i)
	}
	c.Delete("a")
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4 after delete", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after clear", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) ok = true after clear")
	}
}

func TestTimedCache_Concurrent(t *testing.T) {
	c := NewTimedCache[int, int](Options[int]{TTL: time.Minute, Capacity: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(id*100+j, j)
				c.Get(id*100 + j)
				if j%10 == 0 {
					c.Sweep()
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d, exceeds capacity 50", c.Len())
	}
}
