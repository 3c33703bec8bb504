package rc

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"refkit/infra/memory"
	"refkit/infra/sequence"
)

// Allocator supplies control blocks. Free is called exactly once per
// block, after its Freed transition; the block is unreachable from any
// handle at that point.
type Allocator interface {
	Allocate() (*ControlBlock, error)
	Free(*ControlBlock)
}

var defaultAllocator Allocator = NewHeapAllocator(nil)

// HeapAllocator allocates a new block each time and leaves freed blocks
// to the garbage collector.
type HeapAllocator struct {
	seq *sequence.Sequencer
	obs Observer
}

func NewHeapAllocator(obs Observer) *HeapAllocator {
	return &HeapAllocator{seq: sequence.New(0), obs: obs}
}

func (a *HeapAllocator) Allocate() (*ControlBlock, error) {
	return &ControlBlock{id: a.seq.Next(), obs: a.obs}, nil
}

func (a *HeapAllocator) Free(*ControlBlock) {}

// PoolConfig configures a PoolAllocator.
type PoolConfig struct {
	// Limit caps the number of live blocks; 0 means unlimited.
	Limit int64
	// Sequencer issues block IDs. A fresh one is used when nil.
	Sequencer *sequence.Sequencer
	Observer  Observer
}

// PoolAllocator recycles freed blocks and can cap the number of live ones.
type PoolAllocator struct {
	pool  *memory.Pool[ControlBlock]
	seq   *sequence.Sequencer
	obs   Observer
	limit int64

	live      atomic.Int64
	allocated atomic.Uint64
	freed     atomic.Uint64
}

func NewPoolAllocator(cfg PoolConfig) *PoolAllocator {
	seq := cfg.Sequencer
	if seq == nil {
		seq = sequence.New(0)
	}
	return &PoolAllocator{
		pool: memory.NewPool(func() *ControlBlock {
			return &ControlBlock{}
		}),
		seq:   seq,
		obs:   cfg.Observer,
		limit: cfg.Limit,
	}
}

func (a *PoolAllocator) Allocate() (*ControlBlock, error) {
	if n := a.live.Add(1); a.limit > 0 && n > a.limit {
		a.live.Add(-1)
		return nil, errors.Wrapf(ErrBlockLimit, "%d live blocks", a.limit)
	}
	b := a.pool.Get()
	b.id = a.seq.Next()
	b.obs = a.obs
	a.allocated.Add(1)
	return b, nil
}

func (a *PoolAllocator) Free(b *ControlBlock) {
	b.reset()
	a.freed.Add(1)
	a.live.Add(-1)
	a.pool.Put(b)
}

// Live is the number of blocks allocated and not yet freed.
func (a *PoolAllocator) Live() int64 { return a.live.Load() }

func (a *PoolAllocator) Allocated() uint64 { return a.allocated.Load() }

func (a *PoolAllocator) Freed() uint64 { return a.freed.Load() }
