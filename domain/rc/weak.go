package rc

// Weak observes an object owned by Shared handles without keeping it
// alive. It keeps the control block resident. The zero value is empty.
type Weak[T any] struct {
	noCopy noCopy

	blk *ControlBlock
}

// NewWeak returns a Weak handle for s's object. A Weak handle made from
// an empty Shared handle is empty.
func NewWeak[T any](s *Shared[T]) *Weak[T] {
	if s == nil || s.blk == nil {
		return &Weak[T]{}
	}
	s.blk.retainWeak()
	return &Weak[T]{blk: s.blk}
}

func (w *Weak[T]) Clone() *Weak[T] {
	if w == nil || w.blk == nil {
		return &Weak[T]{}
	}
	w.blk.retainWeak()
	return &Weak[T]{blk: w.blk}
}

// Move transfers w's reference to a new handle and leaves w empty.
func (w *Weak[T]) Move() *Weak[T] {
	if w == nil {
		return &Weak[T]{}
	}
	out := &Weak[T]{blk: w.blk}
	w.blk = nil
	return out
}

// Assign makes w observe src's block, dropping w's previous reference.
func (w *Weak[T]) Assign(src *Weak[T]) {
	if w == src {
		return
	}
	var blk *ControlBlock
	if src != nil && src.blk != nil {
		blk = src.blk
		blk.retainWeak()
	}
	old := w.blk
	w.blk = blk
	if old != nil {
		old.releaseWeak()
	}
}

// AssignMove moves src into w and leaves src empty.
func (w *Weak[T]) AssignMove(src *Weak[T]) {
	if w == src {
		return
	}
	moved := src.Move()
	old := w.blk
	w.blk = moved.blk
	if old != nil {
		old.releaseWeak()
	}
}

// Reset drops w's reference. The block is freed if this was the last
// reference of either kind.
func (w *Weak[T]) Reset() {
	if w == nil || w.blk == nil {
		return
	}
	blk := w.blk
	w.blk = nil
	blk.releaseWeak()
}

func (w *Weak[T]) Swap(other *Weak[T]) {
	w.blk, other.blk = other.blk, w.blk
}

// UseCount returns the current number of Shared handles, 0 once the
// object has been released.
func (w *Weak[T]) UseCount() int64 {
	if w == nil || w.blk == nil {
		return 0
	}
	return w.blk.StrongCount()
}

// Expired reports whether the object has been released (or w is
// empty). A false result may be stale by the time it is read.
func (w *Weak[T]) Expired() bool {
	return w.UseCount() == 0
}

// Upgrade returns a new Shared handle if the object is still alive.
// Otherwise it returns an empty handle and false. Against a concurrent
// drop of the last Shared handle, either the upgrade wins and the
// release waits for the new handle, or the release wins and the upgrade
// fails.
func (w *Weak[T]) Upgrade() (*Shared[T], bool) {
	if w == nil || w.blk == nil {
		return &Shared[T]{}, false
	}
	if !w.blk.tryRetainStrong() {
		return &Shared[T]{}, false
	}
	// obj is stored independently of the deleter, so this holds for
	// every release strategy
	p, _ := w.blk.obj.(*T)
	return &Shared[T]{ptr: p, blk: w.blk}, true
}
