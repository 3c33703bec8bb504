package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// retired is a ring slot: the object and the global epoch it was
// retired in.
type retired struct {
	obj   any
	epoch uint64
}

// RetireRing is a bounded FIFO of retired objects.
//
// Any goroutine may retire (producers are serialized by mu); exactly
// one reclaimer consumes.
type RetireRing struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte

	mu   sync.Mutex
	buf  []retired
	mask uint64
}

func NewRetireRing(size uint64) *RetireRing {
	if size == 0 || size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing{
		buf:  make([]retired, size),
		mask: size - 1,
	}
}

// Enqueue retires v in the current global epoch.
// Returns false if the ring is full.
func (r *RetireRing) Enqueue(v any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// read under mu so slot epochs stay non-decreasing
	epoch := GlobalEpoch.Load()

	h := atomic.LoadUint64(&r.head)
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = retired{obj: v, epoch: epoch}
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// Dequeue removes the oldest object; returns nil if empty.
func (r *RetireRing) Dequeue() any {
	t := atomic.LoadUint64(&r.tail)
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return nil
	}
	v := r.buf[t&r.mask]
	r.buf[t&r.mask] = retired{}
	atomic.StoreUint64(&r.tail, t+1)
	return v.obj
}

// peek returns the oldest slot without removing it.
func (r *RetireRing) peek() (retired, bool) {
	t := atomic.LoadUint64(&r.tail)
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return retired{}, false
	}
	return r.buf[t&r.mask], true
}

func (r *RetireRing) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func (r *RetireRing) Cap() int { return len(r.buf) }

func (r *RetireRing) IsFull() bool { return r.Len() == len(r.buf) }

func (r *RetireRing) IsEmpty() bool { return r.Len() == 0 }

func (r *RetireRing) String() string {
	return fmt.Sprintf("RetireRing{len=%d, cap=%d, head=%d, tail=%d}",
		r.Len(), r.Cap(), atomic.LoadUint64(&r.head), atomic.LoadUint64(&r.tail))
}
