package telemetry

import (
	"bytes"
	"sync"
	"testing"
)

func TestCacheSnapshotBeforeStore(t *testing.T) {
	c := NewCache()
	if _, ok := c.Snapshot(); ok {
		t.Fatal("expected no snapshot before the first Store")
	}
}

func TestCacheStoreThenSnapshot(t *testing.T) {
	c := NewCache()
	c.Store([]byte("B1"))
	c.Store([]byte("B2"))

	got, ok := c.Snapshot()
	if !ok {
		t.Fatal("expected a snapshot after Store")
	}
	if !bytes.Equal(got, []byte("B2")) {
		t.Errorf("Snapshot = %q, want %q (latest write wins)", got, "B2")
	}

	// Repeated snapshot returns the same data (S3: second QUERY_DEVICES).
	again, ok := c.Snapshot()
	if !ok || !bytes.Equal(again, []byte("B2")) {
		t.Errorf("second Snapshot = %q, ok=%v", again, ok)
	}
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	c := NewCache()
	c.Store([]byte("original"))

	got, _ := c.Snapshot()
	got[0] = 'X'

	again, _ := c.Snapshot()
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("mutating a snapshot must not affect the cache, got %q", again)
	}
}

func TestCacheConcurrentStoreAndSnapshot(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Store([]byte{byte(n)})
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Snapshot()
		}()
	}
	wg.Wait()

	if _, ok := c.Snapshot(); !ok {
		t.Fatal("expected a value after concurrent stores")
	}
}
