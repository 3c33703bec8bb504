// Package sequence issues the monotonic identifiers used for control
// blocks and journal records.
package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic IDs. The zero value starts at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first Next returns start+1.
// On fresh start → start = 0
// On replay → start = last replayed seq
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next ID. Safe for concurrent use.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued ID.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset moves the sequencer forward to v. It never moves backwards,
// so IDs issued before a replay stay unique.
func (s *Sequencer) Reset(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
