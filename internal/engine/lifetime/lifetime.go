// Package lifetime implements the shared, reference-counted handles that tie
// table entries to the callers holding them.
//
// An entry stays alive in its table for as long as at least one Handle on it
// has not been released. Handles are cheap; every holder acquires its own and
// releases it with defer on all exit paths.
package lifetime

import (
	"log"
	"sync/atomic"
	"time"
)

var underflows atomic.Uint64

// Underflows returns how many times a reference count was released below zero
// since process start. Any non-zero value is an ownership bookkeeping bug.
func Underflows() uint64 {
	return underflows.Load()
}

// RefCount is embedded by values stored in a table. It is not safe for
// concurrent use; the owning table is single-writer.
type RefCount struct {
	refs int32
}

// Retain adds one reference.
func (r *RefCount) Retain() {
	r.refs++
}

// Release drops one reference. The count saturates at zero.
func (r *RefCount) Release() {
	if r.refs <= 0 {
		underflows.Add(1)
		log.Printf("ERROR: reference count released below zero, ownership bookkeeping is broken")
		r.refs = 0
		return
	}
	r.refs--
}

// Refs returns the number of outstanding references.
func (r *RefCount) Refs() int32 {
	return r.refs
}

// Item is what a timed evicting table can store.
type Item interface {
	LastSeen() time.Time
	Retain()
	Release()
	Refs() int32
}

// Finalizer is implemented by items that hold handles on other items and must
// give them back when they are removed from their table.
type Finalizer interface {
	Finalize()
}

// Handle is one share of an Item.
type Handle[V Item] struct {
	item     V
	released bool
}

// Acquire takes a new share of v.
func Acquire[V Item](v V) *Handle[V] {
	v.Retain()
	return &Handle[V]{item: v}
}

// Get returns the shared item.
func (h *Handle[V]) Get() V {
	return h.item
}

// Clone takes an additional, independent share of the same item.
func (h *Handle[V]) Clone() *Handle[V] {
	return Acquire(h.item)
}

// Held reports whether the handle has not been released yet.
func (h *Handle[V]) Held() bool {
	return h != nil && !h.released
}

// Release gives the share back. Releasing twice is a no-op.
func (h *Handle[V]) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.item.Release()
}
