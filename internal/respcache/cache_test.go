package respcache

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c := New(16)
	t.Cleanup(c.Close)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get on empty cache: got ok=true")
	}

	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Fatalf("Get: got (%v, %v), want (42, true)", v, ok)
	}

	c.Set("k", 43)
	if v, _ := c.Get("k"); v.(int) != 43 {
		t.Fatalf("overwrite: got %v, want 43", v)
	}
}

func TestCacheBounded(t *testing.T) {
	const capacity = 64
	c := New(capacity)
	t.Cleanup(c.Close)

	for i := 0; i < capacity*4; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	// The eviction pipeline is asynchronous; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for c.Size() > capacity && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if size := c.Size(); size > capacity {
		t.Fatalf("size: got %d, want <= %d", size, capacity)
	}
}

func TestCacheClear(t *testing.T) {
	c := New(16)
	t.Cleanup(c.Close)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get after Clear: got ok=true")
	}
	if size := c.Size(); size != 0 {
		t.Fatalf("size after Clear: got %d, want 0", size)
	}
}

func TestKeyDistinctness(t *testing.T) {
	// Adjacent parameters must not collide across field boundaries.
	a := Key("lb", "ab", "c")
	b := Key("lb", "a", "bc")
	if a == b {
		t.Fatalf("keys collide: %q", a)
	}

	if Key("lb", "x") == Key("repo", "x") {
		t.Fatal("keys with different endpoints collide")
	}
	if Key("lb", "x") != Key("lb", "x") {
		t.Fatal("Key is not deterministic")
	}
}
