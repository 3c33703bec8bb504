package service

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"refkit/domain/rc"
	"refkit/infra/journal"
	"refkit/infra/ledger"
	"refkit/snapshot"
)

// Tracker is the rc.Observer that records lifecycle transitions. Each
// event is journaled, folded into the live audit state and queued in the
// ledger outbox, in that order, under one lock.
type Tracker struct {
	mu      sync.Mutex
	journal *journal.Journal
	ledger  *ledger.Ledger
	state   *auditState
	log     *zap.Logger

	transitions [rc.Freed + 1]atomic.Uint64
	failures    atomic.Uint64
}

// newTracker starts from st, the state recovered from disk. ledger may be
// nil to skip the broadcast outbox.
func newTracker(j *journal.Journal, l *ledger.Ledger, st *auditState, log *zap.Logger) *Tracker {
	if st == nil {
		st = newAuditState(&snapshot.Snapshot{Seq: j.LastSeq()})
	}
	return &Tracker{
		journal: j,
		ledger:  l,
		state:   st,
		log:     log.Named("tracker"),
	}
}

func (t *Tracker) Observe(e rc.Event) {
	rt, ok := recordTypeFor(e.To)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	seq, err := t.journal.Log(rt, e.Block)
	if err != nil {
		t.failures.Add(1)
		t.log.Error("journal append failed",
			zap.Uint64("block", e.Block), zap.Stringer("to", e.To), zap.Error(err))
		return
	}
	t.transitions[e.To].Add(1)
	t.state.apply(seq, rt, e.Block)

	if t.ledger == nil {
		return
	}
	if err := t.ledger.Record(e.Block, e.To); err != nil {
		t.failures.Add(1)
		t.log.Error("ledger record failed",
			zap.Uint64("block", e.Block), zap.Uint64("seq", seq), zap.Error(err))
	}
}

// TrackerStats counts transitions seen by this process.
type TrackerStats struct {
	Alive      uint64
	Released   uint64
	Freed      uint64
	Failures   uint64
	LastSeq    uint64
	Tracked    int
	Violations int
}

func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	tracked, violations, seq := len(t.state.blocks), len(t.state.violations), t.state.seq
	t.mu.Unlock()
	return TrackerStats{
		Alive:      t.transitions[rc.Alive].Load(),
		Released:   t.transitions[rc.ObjectReleased].Load(),
		Freed:      t.transitions[rc.Freed].Load(),
		Failures:   t.failures.Load(),
		LastSeq:    seq,
		Tracked:    tracked,
		Violations: violations,
	}
}

// Leaks lists blocks that have not reached Freed.
func (t *Tracker) Leaks() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.leaks()
}

// Audit returns the verdict over the in-memory state.
func (t *Tracker) Audit() Audit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.result()
}

// Snapshot captures the state together with the seq it covers.
func (t *Tracker) Snapshot() *snapshot.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.snapshot()
}
