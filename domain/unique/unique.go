// Package unique provides a single-owner pointer with deterministic
// release.
package unique

import "refkit/domain/rc"

// Ptr exclusively owns one object. It is not shareable: ownership moves
// with Move or Release, never by copy.
type Ptr[T any] struct {
	noCopy noCopy

	ptr *T
	del rc.Deleter[T]
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// New owns p and releases it with rc.DefaultDeleter.
func New[T any](p *T) *Ptr[T] {
	return NewWithDeleter[T](p, nil)
}

func NewWithDeleter[T any](p *T, d rc.Deleter[T]) *Ptr[T] {
	if d == nil {
		d = rc.DefaultDeleter[T]{}
	}
	return &Ptr[T]{ptr: p, del: d}
}

func (u *Ptr[T]) Get() *T {
	if u == nil {
		return nil
	}
	return u.ptr
}

func (u *Ptr[T]) Valid() bool {
	return u != nil && u.ptr != nil
}

// Release gives up ownership without deleting and returns the pointer.
func (u *Ptr[T]) Release() *T {
	p := u.ptr
	u.ptr = nil
	return p
}

// Reset deletes the current object, if any, and adopts p.
func (u *Ptr[T]) Reset(p *T) {
	old := u.ptr
	u.ptr = p
	if old != nil && old != p {
		u.deleter().Delete(old)
	}
}

// Move transfers the object and deleter to a new Ptr, leaving u empty.
func (u *Ptr[T]) Move() *Ptr[T] {
	out := &Ptr[T]{ptr: u.ptr, del: u.del}
	u.ptr = nil
	return out
}

// AssignMove deletes u's object and takes over src's.
func (u *Ptr[T]) AssignMove(src *Ptr[T]) {
	if u == src {
		return
	}
	u.Reset(src.Release())
	u.del = src.del
}

func (u *Ptr[T]) Swap(other *Ptr[T]) {
	u.ptr, other.ptr = other.ptr, u.ptr
	u.del, other.del = other.del, u.del
}

// Share converts the exclusive owner into a Shared handle using the
// same deleter. u is left empty on success and unchanged on error.
func (u *Ptr[T]) Share(a rc.Allocator) (*rc.Shared[T], error) {
	sp, err := rc.MakeShared(a, u.ptr, u.del)
	if err != nil {
		return nil, err
	}
	u.ptr = nil
	return sp, nil
}

func (u *Ptr[T]) deleter() rc.Deleter[T] {
	if u.del == nil {
		return rc.DefaultDeleter[T]{}
	}
	return u.del
}
