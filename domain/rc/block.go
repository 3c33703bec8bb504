package rc

import (
	"fmt"
	"sync/atomic"
)

// noCopy lets `go vet` catch handles copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// releaser is a Deleter bound to its pointer, with the type erased.
type releaser interface {
	release()
}

type binding[T any] struct {
	ptr *T
	del Deleter[T]
}

func (b binding[T]) release() { b.del.Delete(b.ptr) }

// ControlBlock is the bookkeeping shared by all Shared and Weak handles
// derived from one allocation.
//
// strong counts live Shared handles. weak counts live Weak handles plus
// one token owned collectively by the Shared family. Only the counters
// and state change after bind; obj and rel are cleared once, by the
// goroutine that drops strong to zero.
type ControlBlock struct {
	strong atomic.Int64
	weak   atomic.Int64
	state  atomic.Uint32

	id    uint64
	obj   any
	rel   releaser
	alloc Allocator
	obs   Observer
}

// ID identifies the allocation within its Allocator.
func (b *ControlBlock) ID() uint64 { return b.id }

func (b *ControlBlock) State() State { return State(b.state.Load()) }

// StrongCount is a snapshot; it may be stale under concurrent use.
func (b *ControlBlock) StrongCount() int64 { return b.strong.Load() }

// WeakCount is a snapshot, including the Shared family's token while the object is alive.
func (b *ControlBlock) WeakCount() int64 { return b.weak.Load() }

// bind attaches a freshly allocated block to its object. It runs before
// the block is visible to any handle.
func (b *ControlBlock) bind(obj any, rel releaser, a Allocator) {
	b.obj = obj
	b.rel = rel
	b.alloc = a
	b.strong.Store(1)
	b.weak.Store(1)
	b.state.Store(uint32(Unallocated))
	b.transition(Unallocated, Alive)
}

// reset clears a freed block before it is reused.
func (b *ControlBlock) reset() {
	b.id = 0
	b.obj = nil
	b.rel = nil
	b.alloc = nil
	b.obs = nil
	b.state.Store(uint32(Unallocated))
}

// retainStrong is only called through a live Shared handle, so the
// count cannot be zero here.
func (b *ControlBlock) retainStrong() {
	if b.strong.Add(1) <= 1 {
		panic(fmt.Sprintf("rc: block %d: retain of released object", b.id))
	}
}

// tryRetainStrong increments strong unless it is already zero. The
// check and the increment are one CAS, so it cannot revive an object
// whose release has been committed.
func (b *ControlBlock) tryRetainStrong() bool {
	for {
		n := b.strong.Load()
		if n == 0 {
			return false
		}
		if b.strong.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (b *ControlBlock) releaseStrong() {
	n := b.strong.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic(fmt.Sprintf("rc: block %d: strong count released too often", b.id))
	}

	b.transition(Alive, ObjectReleased)
	rel := b.rel
	b.obj, b.rel = nil, nil
	rel.release()

	// drop the Shared family's token
	b.releaseWeak()
}

func (b *ControlBlock) retainWeak() {
	if b.weak.Add(1) <= 1 {
		panic(fmt.Sprintf("rc: block %d: weak retain of freed block", b.id))
	}
}

func (b *ControlBlock) releaseWeak() {
	n := b.weak.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic(fmt.Sprintf("rc: block %d: weak count released too often", b.id))
	}

	b.transition(ObjectReleased, Freed)
	if a := b.alloc; a != nil {
		b.alloc = nil
		a.Free(b)
	}
}

func (b *ControlBlock) transition(from, to State) {
	if !b.state.CompareAndSwap(uint32(from), uint32(to)) {
		panic(fmt.Sprintf("rc: block %d: illegal transition %s -> %s (state %s)",
			b.id, from, to, b.State()))
	}
	if b.obs != nil {
		b.obs.Observe(Event{Block: b.id, From: from, To: to})
	}
}
