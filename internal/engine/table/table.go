package table

import (
	"errors"
	"time"

	"Go2NetTop/internal/engine/lifetime"
	"Go2NetTop/internal/logging"
)

// ErrTableFull is returned by GetOrInsert when a new key would exceed the
// configured capacity.
var ErrTableFull = errors.New("table is full")

// Table maps keys to shared items and evicts items that are both idle and
// unreferenced. It is not safe for concurrent use: one writer drives both
// lookups and purges.
type Table[K comparable, V lifetime.Item] struct {
	name        string
	items       map[K]V
	idleTimeout time.Duration
	maxEntries  int
}

// New creates a table. maxEntries <= 0 means unbounded.
func New[K comparable, V lifetime.Item](name string, idleTimeout time.Duration, maxEntries int) *Table[K, V] {
	return &Table[K, V]{
		name:        name,
		items:       make(map[K]V),
		idleTimeout: idleTimeout,
		maxEntries:  maxEntries,
	}
}

// Name returns the name the table was created with.
func (t *Table[K, V]) Name() string {
	return t.name
}

// IdleTimeout returns the configured idle timeout.
func (t *Table[K, V]) IdleTimeout() time.Duration {
	return t.idleTimeout
}

// GetOrInsert returns a handle on the item stored under key, building and
// inserting it first if the key is absent. build is called at most once and
// only for an absent key. The caller owns the returned handle and must
// release it.
func (t *Table[K, V]) GetOrInsert(key K, build func() V) (*lifetime.Handle[V], error) {
	item, ok := t.items[key]
	if !ok {
		if t.maxEntries > 0 && len(t.items) >= t.maxEntries {
			return nil, ErrTableFull
		}
		item = build()
		t.items[key] = item
	}
	return lifetime.Acquire(item), nil
}

// Get returns the item stored under key without taking a share of it.
func (t *Table[K, V]) Get(key K) (V, bool) {
	item, ok := t.items[key]
	return item, ok
}

// Len returns the number of stored items.
func (t *Table[K, V]) Len() int {
	return len(t.items)
}

// Range calls fn for every item until fn returns false. fn must not mutate
// the table.
func (t *Table[K, V]) Range(fn func(key K, item V) bool) {
	for k, v := range t.items {
		if !fn(k, v) {
			return
		}
	}
}

// PurgeIdle removes every item that has no outstanding references and has
// been idle for strictly longer than the idle timeout. It returns the number
// of removed items.
func (t *Table[K, V]) PurgeIdle(now time.Time) int {
	removed := 0
	for k, v := range t.items {
		if v.Refs() != 0 {
			continue
		}
		idle := now.Sub(v.LastSeen())
		if idle <= t.idleTimeout {
			continue
		}

		delete(t.items, k)
		if f, ok := any(v).(lifetime.Finalizer); ok {
			f.Finalize()
		}
		removed++
		logging.Debugf("Idle purge from %s table: %v (idle %s)", t.name, v, idle.Truncate(time.Millisecond))
	}
	return removed
}
