// Package batch provides the per-request relationship loader. Resolvers queue
// the key values they will need, the fetcher drains them into one bulk query
// per (table, column) slot, and subsequent lookups are served from memory.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Record is a database row keyed by column name.
type Record = map[string]interface{}

type slotKey struct {
	table  string
	column string
}

// Loader is the per-request batch state. It is created when a request starts,
// shared across that request's resolvers, and cleared on completion. Methods
// are safe for concurrent use by resolvers of the same request.
type Loader struct {
	mu        sync.Mutex
	pending   map[slotKey]map[string]struct{}
	cached    map[slotKey]map[string][]Record
	processed map[string]struct{}

	hits   int32
	misses int32
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{
		pending:   make(map[slotKey]map[string]struct{}),
		cached:    make(map[slotKey]map[string][]Record),
		processed: make(map[string]struct{}),
	}
}

// Queue records that value will be needed from table via keyColumn.
func (l *Loader) Queue(table, keyColumn string, value interface{}) {
	l.QueueMany(table, keyColumn, []interface{}{value})
}

// QueueMany records a set of values needed from table via keyColumn.
// Nil values are skipped.
func (l *Loader) QueueMany(table, keyColumn string, values []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := slotKey{table: table, column: keyColumn}
	slot, ok := l.pending[key]
	if !ok {
		slot = make(map[string]struct{}, len(values))
		l.pending[key] = slot
	}
	for _, v := range values {
		if v == nil {
			continue
		}
		slot[keyString(v)] = struct{}{}
	}
}

// DrainPending empties the queue slot for (table, keyColumn) and returns the
// queued values that are not already cached. The returned order is
// unspecified.
func (l *Loader) DrainPending(table, keyColumn string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := slotKey{table: table, column: keyColumn}
	slot := l.pending[key]
	delete(l.pending, key)
	if len(slot) == 0 {
		return nil
	}

	cached := l.cached[key]
	out := make([]string, 0, len(slot))
	for v := range slot {
		if _, have := cached[v]; have {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Cache indexes records by their keyColumn value under (table, keyColumn).
// Records whose key column is null are dropped.
func (l *Loader) Cache(table, keyColumn string, records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := slotKey{table: table, column: keyColumn}
	slot, ok := l.cached[key]
	if !ok {
		slot = make(map[string][]Record, len(records))
		l.cached[key] = slot
	}
	for _, rec := range records {
		v, present := rec[keyColumn]
		if !present || v == nil {
			continue
		}
		ks := keyString(v)
		slot[ks] = append(slot[ks], rec)
	}
}

// Lookup returns the cached records whose keyColumn equals value, and whether
// the slot had been populated for that value.
func (l *Loader) Lookup(table, keyColumn string, value interface{}) ([]Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := slotKey{table: table, column: keyColumn}
	records, ok := l.cached[key][keyString(value)]
	if ok {
		atomic.AddInt32(&l.hits, 1)
	} else {
		atomic.AddInt32(&l.misses, 1)
	}
	return records, ok
}

// MarkProcessed records that table's relationships were already expanded in
// this request. The first call returns true, later calls false. It breaks
// cycles when a selection tree visits the same relationship twice.
func (l *Loader) MarkProcessed(table string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.processed[table]; done {
		return false
	}
	l.processed[table] = struct{}{}
	return true
}

// Clear resets the loader at end of request.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = make(map[slotKey]map[string]struct{})
	l.cached = make(map[slotKey]map[string][]Record)
	l.processed = make(map[string]struct{})
}

// CacheHits returns the lookup hit count.
func (l *Loader) CacheHits() int32 { return atomic.LoadInt32(&l.hits) }

// CacheMisses returns the lookup miss count.
func (l *Loader) CacheMisses() int32 { return atomic.LoadInt32(&l.misses) }

// Key values arrive as int64 from one query and string from another depending
// on driver scanning, so slots are keyed by a normalized string form.
func keyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

type loaderKey struct{}

// NewLoaderContext injects a fresh loader for one request.
func NewLoaderContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loaderKey{}, NewLoader())
}

// LoaderFromContext retrieves the request's loader.
func LoaderFromContext(ctx context.Context) (*Loader, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(loaderKey{}).(*Loader)
	return l, ok
}
