package memory

import "sync/atomic"

// GlobalEpoch monotonically increases.
var GlobalEpoch atomic.Uint64

const inactive = ^uint64(0)

// ReaderEpoch marks when a reader entered a read section.
type ReaderEpoch struct {
	epoch atomic.Uint64
}

// NewReaderEpoch returns a reader outside any read section.
func NewReaderEpoch() *ReaderEpoch {
	r := &ReaderEpoch{}
	r.epoch.Store(inactive)
	return r
}

func (r *ReaderEpoch) Enter() {
	r.epoch.Store(GlobalEpoch.Load())
}

func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

func (r *ReaderEpoch) Active() bool {
	return r.Value() != inactive
}

// ReclaimablePool is the only requirement for reclamation.
// It is intentionally type-erased.
type ReclaimablePool interface {
	PutAny(any)
}

// AdvanceEpochAndReclaim advances the epoch and hands every retired
// object older than the oldest active reader back to pool. It returns
// the number of objects reclaimed.
func AdvanceEpochAndReclaim(
	ring *RetireRing,
	pool ReclaimablePool,
	readers ...*ReaderEpoch,
) int {
	GlobalEpoch.Add(1)
	min := minReaderEpoch(readers...)

	n := 0
	for {
		e, ok := ring.peek()
		if !ok {
			return n
		}
		// FIFO: epochs are non-decreasing, so newer ones aren't safe either
		if min != inactive && e.epoch >= min {
			return n
		}
		ring.Dequeue()
		pool.PutAny(e.obj)
		n++
	}
}

func minReaderEpoch(rs ...*ReaderEpoch) uint64 {
	min := inactive
	for _, r := range rs {
		if r == nil {
			continue
		}
		v := r.Value()
		if v < min {
			min = v
		}
	}
	return min
}
