package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := New[string, int](time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected hit with 1, got %v ok=%v", v, ok)
	}
}

func TestExpiredEntryRemovedOnAccess(t *testing.T) {
	c := New[string, int](time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("a", 1)
	current = current.Add(2 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", c.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New[string, int](0)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("a", 1)
	current = current.Add(24 * time.Hour)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected entry without deadline to survive")
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New[string, int](time.Minute)
	var calls atomic.Int32
	var wg sync.WaitGroup

	release := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute("k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if v != 42 {
				t.Errorf("expected 42, got %d", v)
			}
		}()
	}
	// Give the goroutines time to pile up on the flight before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one producer invocation, got %d", got)
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New[string, int](time.Minute)
	boom := errors.New("boom")

	if _, err := c.GetOrCompute("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("expected nothing cached after producer failure")
	}

	v, err := c.GetOrCompute("k", func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("expected recovery on next call, got %v err=%v", v, err)
	}
}

func TestNoValueSentinelNotCached(t *testing.T) {
	c := New[string, int](time.Minute)
	if _, err := c.GetOrCompute("k", func() (int, error) { return 0, ErrNoValue }); !errors.Is(err, ErrNoValue) {
		t.Fatalf("expected ErrNoValue, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("expected no-value result to cache nothing")
	}
}

func TestRemoveClearLen(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected removed entry to be absent")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear, got %d", c.Len())
	}
}

func TestStats(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Put("a", 1)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}
