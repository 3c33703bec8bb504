package rc

import (
	"io"

	"refkit/infra/memory"
)

// Deleter releases a managed object. It is called exactly once per
// allocation, with the original pointer, after the last Shared handle is
// reset. It must not panic.
type Deleter[T any] interface {
	Delete(p *T)
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc[T any] func(p *T)

func (f DeleterFunc[T]) Delete(p *T) { f(p) }

// DefaultDeleter closes objects implementing io.Closer and otherwise
// leaves the memory to the garbage collector. Close errors are dropped.
type DefaultDeleter[T any] struct{}

func (DefaultDeleter[T]) Delete(p *T) {
	if c, ok := any(p).(io.Closer); ok {
		_ = c.Close()
	}
}

// PoolDeleter returns released objects to a pool for reuse.
type PoolDeleter[T any] struct {
	Pool *memory.Pool[T]
}

func (d PoolDeleter[T]) Delete(p *T) {
	d.Pool.Put(p)
}

// RetireDeleter defers reuse of released objects: they are retired into
// Ring and only handed to a pool by memory.AdvanceEpochAndReclaim once no
// epoch reader can still observe them. When the ring is full the object
// goes to Fallback, or is left to the garbage collector if Fallback is nil.
type RetireDeleter[T any] struct {
	Ring     *memory.RetireRing
	Fallback Deleter[T]
}

func (d RetireDeleter[T]) Delete(p *T) {
	if d.Ring.Enqueue(p) {
		return
	}
	if d.Fallback != nil {
		d.Fallback.Delete(p)
	}
}

// SliceDeleter is the array form: it releases every element of a slice
// of pointers with Elem.
type SliceDeleter[E any] struct {
	Elem Deleter[E]
}

func (d SliceDeleter[E]) Delete(p *[]*E) {
	if p == nil {
		return
	}
	for i, e := range *p {
		if e != nil {
			d.Elem.Delete(e)
		}
		(*p)[i] = nil
	}
}
