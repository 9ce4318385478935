package batch

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestQueueDrainLookup(t *testing.T) {
	l := NewLoader()
	l.Queue("address", "address_id", int64(1))
	l.QueueMany("address", "address_id", []interface{}{int64(2), int64(3), nil})

	values := l.DrainPending("address", "address_id")
	sort.Strings(values)
	if len(values) != 3 {
		t.Fatalf("expected 3 pending values, got %v", values)
	}

	l.Cache("address", "address_id", []Record{
		{"address_id": int64(1), "city": "London"},
		{"address_id": int64(2), "city": "Paris"},
	})

	recs, ok := l.Lookup("address", "address_id", int64(1))
	if !ok || len(recs) != 1 || recs[0]["city"] != "London" {
		t.Fatalf("expected cached London record, got %v ok=%v", recs, ok)
	}
	if _, ok := l.Lookup("address", "address_id", int64(9)); ok {
		t.Fatal("expected miss for value never cached")
	}
}

func TestDrainSkipsCachedValues(t *testing.T) {
	l := NewLoader()
	l.Cache("address", "address_id", []Record{{"address_id": int64(1)}})
	l.QueueMany("address", "address_id", []interface{}{int64(1), int64(2)})

	values := l.DrainPending("address", "address_id")
	if len(values) != 1 || values[0] != "2" {
		t.Fatalf("expected only uncached value 2, got %v", values)
	}
	if again := l.DrainPending("address", "address_id"); len(again) != 0 {
		t.Fatalf("expected drained slot to be empty, got %v", again)
	}
}

func TestKeyNormalizationAcrossScanTypes(t *testing.T) {
	l := NewLoader()
	l.Cache("customer", "customer_id", []Record{{"customer_id": int64(5)}})
	// The queued value may arrive as a string when it came from a cursor.
	if _, ok := l.Lookup("customer", "customer_id", "5"); !ok {
		t.Fatal("expected int64 and string key forms to match")
	}
}

func TestMarkProcessedIdempotent(t *testing.T) {
	l := NewLoader()
	if !l.MarkProcessed("address") {
		t.Fatal("first mark should return true")
	}
	if l.MarkProcessed("address") {
		t.Fatal("second mark should return false")
	}
}

func TestClear(t *testing.T) {
	l := NewLoader()
	l.Queue("a", "id", int64(1))
	l.Cache("a", "id", []Record{{"id": int64(1)}})
	l.MarkProcessed("a")
	l.Clear()

	if _, ok := l.Lookup("a", "id", int64(1)); ok {
		t.Fatal("expected cache cleared")
	}
	if !l.MarkProcessed("a") {
		t.Fatal("expected processed set cleared")
	}
}

func TestConcurrentResolverAccess(t *testing.T) {
	l := NewLoader()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Queue("t", "id", int64(n))
			l.Cache("t", "id", []Record{{"id": int64(n)}})
			l.Lookup("t", "id", int64(n))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		if _, ok := l.Lookup("t", "id", int64(i)); !ok {
			t.Fatalf("expected value %d cached", i)
		}
	}
}

func TestLoaderContext(t *testing.T) {
	if _, ok := LoaderFromContext(context.Background()); ok {
		t.Fatal("expected no loader on bare context")
	}
	ctx := NewLoaderContext(context.Background())
	l, ok := LoaderFromContext(ctx)
	if !ok || l == nil {
		t.Fatal("expected loader on prepared context")
	}
}
