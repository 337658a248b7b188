package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCacheBasics(t *testing.T) {
	c := New[string, int](10)

	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("update should overwrite, got %d", v)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key should miss")
	}
}

func TestCacheEviction(t *testing.T) {
	c := New[int, int](3)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)

	// Touch 1 so 2 becomes the oldest.
	c.Get(1)
	c.Set(4, 4)

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry should be evicted")
	}
	for _, k := range []int{1, 3, 4} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("key %d should survive", k)
		}
	}
	if got := c.Stats().Evicts; got != 1 {
		t.Errorf("Evicts = %d, want 1", got)
	}
}

func TestCacheStats(t *testing.T) {
	c := New[string, string](2)
	c.Set("x", "y")
	c.Get("x")
	c.Get("nope")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 || s.Capacity != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCacheConcurrency(t *testing.T) {
	c := New[string, int](128)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%64)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 128 {
		t.Errorf("cache exceeded capacity: %d", c.Len())
	}
}
