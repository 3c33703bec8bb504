package service

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"

	"refkit/domain/rc"
	"refkit/infra/journal"
	"refkit/snapshot"
)

// Audit is the verdict over every transition recorded so far.
type Audit struct {
	LastSeq  uint64
	Blocks   uint64
	Alive    uint64
	Released uint64
	Freed    uint64
	// Leaks lists blocks not yet Freed. Only blocks of a quiesced or
	// previous run are actual leaks.
	Leaks      []uint64
	Violations []string
}

// Clean reports whether no lifecycle invariant was broken.
func (a Audit) Clean() bool { return len(a.Violations) == 0 }

func recordTypeFor(s rc.State) (journal.RecordType, bool) {
	switch s {
	case rc.Alive:
		return journal.RecordAlive, true
	case rc.ObjectReleased:
		return journal.RecordReleased, true
	case rc.Freed:
		return journal.RecordFreed, true
	default:
		return 0, false
	}
}

// auditState folds journal records into per-block states. Freed blocks
// are dropped; only their totals remain.
type auditState struct {
	seq        uint64
	maxBlock   uint64
	totals     snapshot.Totals
	blocks     map[uint64]rc.State
	violations []string
}

func newAuditState(s *snapshot.Snapshot) *auditState {
	a := &auditState{
		seq:        s.Seq,
		maxBlock:   s.MaxBlock,
		totals:     s.Totals,
		blocks:     make(map[uint64]rc.State, len(s.Blocks)),
		violations: append([]string(nil), s.Violations...),
	}
	for _, b := range s.Blocks {
		a.blocks[b.ID] = b.State
	}
	return a
}

func (a *auditState) violate(seq, block uint64, format string, args ...any) {
	a.violations = append(a.violations,
		fmt.Sprintf("seq %d: block %d ", seq, block)+fmt.Sprintf(format, args...))
}

func (a *auditState) apply(seq uint64, t journal.RecordType, block uint64) {
	a.seq = seq
	if block > a.maxBlock {
		a.maxBlock = block
	}
	cur, known := a.blocks[block]

	switch t {
	case journal.RecordAlive:
		a.totals.Alive++
		if known {
			a.violate(seq, block, "allocated again while %s", cur)
			return
		}
		a.totals.Blocks++
		a.blocks[block] = rc.Alive
	case journal.RecordReleased:
		a.totals.Released++
		if !known || cur != rc.Alive {
			a.violate(seq, block, "released while %s", stateOrUnknown(cur, known))
			return
		}
		a.blocks[block] = rc.ObjectReleased
	case journal.RecordFreed:
		a.totals.Freed++
		if !known || cur != rc.ObjectReleased {
			a.violate(seq, block, "freed while %s", stateOrUnknown(cur, known))
			return
		}
		delete(a.blocks, block)
	default:
		a.violate(seq, block, "has unknown record type %d", t)
	}
}

func stateOrUnknown(s rc.State, known bool) string {
	if !known {
		return "untracked"
	}
	return s.String()
}

func (a *auditState) leaks() []uint64 {
	out := make([]uint64, 0, len(a.blocks))
	for id := range a.blocks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *auditState) result() Audit {
	return Audit{
		LastSeq:    a.seq,
		Blocks:     a.totals.Blocks,
		Alive:      a.totals.Alive,
		Released:   a.totals.Released,
		Freed:      a.totals.Freed,
		Leaks:      a.leaks(),
		Violations: append([]string(nil), a.violations...),
	}
}

func (a *auditState) snapshot() *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		Seq:        a.seq,
		MaxBlock:   a.maxBlock,
		Totals:     a.totals,
		Blocks:     make([]snapshot.BlockEntry, 0, len(a.blocks)),
		Violations: append([]string(nil), a.violations...),
	}
	for _, id := range a.leaks() {
		s.Blocks = append(s.Blocks, snapshot.BlockEntry{ID: id, State: a.blocks[id]})
	}
	return s
}

// recoverState rebuilds the audit state from the snapshot in snapDir and
// the journal records written after it.
func recoverState(snapDir, journalDir string) (*auditState, error) {
	snap, err := snapshot.Load(snapDir)
	if err != nil {
		return nil, err
	}
	st := newAuditState(snap)
	_, err = journal.Replay(journalDir, snap.Seq, func(r *journal.Record) error {
		block, err := r.BlockID()
		if err != nil {
			return err
		}
		st.apply(r.Seq, r.Type, block)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "replay journal")
	}
	return st, nil
}

// RunAudit verifies the persisted lifecycle record: the snapshot plus
// every journal record after it.
func RunAudit(snapDir, journalDir string) (Audit, error) {
	st, err := recoverState(snapDir, journalDir)
	if err != nil {
		return Audit{}, err
	}
	return st.result(), nil
}
