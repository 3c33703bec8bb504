package rc

import (
	"github.com/cockroachdb/errors"
)

// Shared is an owning, reference-counted handle. The zero value is an
// empty handle.
type Shared[T any] struct {
	noCopy noCopy

	ptr *T
	blk *ControlBlock
}

// NewShared takes ownership of p using the default allocator and
// DefaultDeleter.
func NewShared[T any](p *T) (*Shared[T], error) {
	return MakeShared[T](nil, p, nil)
}

// MakeShared allocates a control block from a and takes ownership of p,
// to be released with d. A nil allocator or deleter selects the
// defaults; a nil p yields an empty handle without allocating.
//
// On error the returned error matches ErrAllocation, d is never called,
// and disposing of p stays with the caller.
func MakeShared[T any](a Allocator, p *T, d Deleter[T]) (*Shared[T], error) {
	if p == nil {
		return &Shared[T]{}, nil
	}
	if a == nil {
		a = defaultAllocator
	}
	if d == nil {
		d = DefaultDeleter[T]{}
	}

	blk, err := a.Allocate()
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "make shared %T", p), ErrAllocation)
	}
	if blk == nil {
		return nil, errors.Wrapf(ErrAllocation, "make shared %T: allocator returned no block", p)
	}
	blk.bind(p, binding[T]{ptr: p, del: d}, a)
	return &Shared[T]{ptr: p, blk: blk}, nil
}

// Clone returns a new handle sharing ownership with s.
func (s *Shared[T]) Clone() *Shared[T] {
	if s == nil || s.blk == nil {
		return &Shared[T]{}
	}
	s.blk.retainStrong()
	return &Shared[T]{ptr: s.ptr, blk: s.blk}
}

// Move transfers ownership to a new handle and leaves s empty.
func (s *Shared[T]) Move() *Shared[T] {
	if s == nil {
		return &Shared[T]{}
	}
	out := &Shared[T]{ptr: s.ptr, blk: s.blk}
	s.ptr, s.blk = nil, nil
	return out
}

// Assign makes s share src's object, dropping what s held before.
// Assigning a handle to itself, or to another handle of the same
// block, leaves the count unchanged.
func (s *Shared[T]) Assign(src *Shared[T]) {
	if s == src {
		return
	}
	var ptr *T
	var blk *ControlBlock
	if src != nil && src.blk != nil {
		ptr, blk = src.ptr, src.blk
		// retain before dropping the old reference: they may be the same block
		blk.retainStrong()
	}
	old := s.blk
	s.ptr, s.blk = ptr, blk
	if old != nil {
		old.releaseStrong()
	}
}

// AssignMove moves src into s, dropping what s held before. src is left
// empty.
func (s *Shared[T]) AssignMove(src *Shared[T]) {
	if s == src {
		return
	}
	moved := src.Move()
	old := s.blk
	s.ptr, s.blk = moved.ptr, moved.blk
	if old != nil {
		old.releaseStrong()
	}
}

// Reset drops s's reference and leaves it empty. If s was the last
// Shared handle the object is released before Reset returns. Resetting
// an empty handle is a no-op.
func (s *Shared[T]) Reset() {
	if s == nil || s.blk == nil {
		return
	}
	blk := s.blk
	s.ptr, s.blk = nil, nil
	blk.releaseStrong()
}

// ResetTo replaces s's object with p. On allocation failure s is left
// unchanged and p is not adopted.
func (s *Shared[T]) ResetTo(a Allocator, p *T, d Deleter[T]) error {
	next, err := MakeShared(a, p, d)
	if err != nil {
		return err
	}
	s.Swap(next)
	next.Reset()
	return nil
}

func (s *Shared[T]) Swap(other *Shared[T]) {
	s.ptr, other.ptr = other.ptr, s.ptr
	s.blk, other.blk = other.blk, s.blk
}

// Get returns the managed pointer, or nil for an empty handle. The
// pointer is only valid while s (or another strong handle) is held.
func (s *Shared[T]) Get() *T {
	if s == nil {
		return nil
	}
	return s.ptr
}

// Valid reports whether s owns an object.
func (s *Shared[T]) Valid() bool {
	return s != nil && s.ptr != nil
}

// UseCount returns the number of Shared handles for the object, or 0
// for an empty handle. The value is advisory under concurrent use.
func (s *Shared[T]) UseCount() int64 {
	if s == nil || s.blk == nil {
		return 0
	}
	return s.blk.StrongCount()
}

func (s *Shared[T]) IsUnique() bool {
	return s.UseCount() == 1
}

// Block exposes the control block for inspection.
func (s *Shared[T]) Block() *ControlBlock {
	if s == nil {
		return nil
	}
	return s.blk
}

// Downgrade returns a Weak handle observing s's object.
func (s *Shared[T]) Downgrade() *Weak[T] {
	return NewWeak(s)
}
