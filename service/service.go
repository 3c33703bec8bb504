package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"refkit/domain/rc"
	"refkit/infra/journal"
	"refkit/infra/ledger"
	"refkit/infra/memory"
	"refkit/infra/sequence"
	"refkit/snapshot"
)

type Options struct {
	Journal *journal.Journal
	// Ledger is optional; without it nothing is queued for broadcast.
	Ledger         *ledger.Ledger
	SnapshotDir    string
	BlockLimit     int64
	RetireRingSize uint64
	// Workload is optional; a zero value disables it.
	Workload WorkloadConfig
	Log      *zap.Logger
}

/*
Service owns the ownership workload and everything that records it:

  - the PoolAllocator handing out control blocks, observed by the Tracker
  - the RetireRing and object pool behind epoch reclamation
  - the snapshot writer that lets the journal be truncated

It is the only place these are wired together.
*/
type Service struct {
	journal  *journal.Journal
	ledger   *ledger.Ledger
	snapDir  string
	writer   *snapshot.Writer
	tracker  *Tracker
	alloc    *rc.PoolAllocator
	ring     *memory.RetireRing
	objects  *memory.Pool[Payload]
	deleter  rc.Deleter[Payload]
	workload *Workload
	log      *zap.Logger

	// snapMu keeps audits from reading a snapshot whose journal tail is
	// being truncated.
	snapMu    sync.RWMutex
	reclaimMu sync.Mutex
	reclaimed atomic.Uint64
}

// New recovers the audit state from the snapshot and journal, then wires
// the allocator so block IDs and sequence numbers resume above it.
func New(opts Options) (*Service, error) {
	if opts.Journal == nil {
		return nil, errors.New("service: journal is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ringSize := opts.RetireRingSize
	if ringSize == 0 {
		ringSize = 1 << 16
	}

	st, err := recoverState(opts.SnapshotDir, opts.Journal.Dir())
	if err != nil {
		return nil, errors.Wrap(err, "recover lifecycle state")
	}
	opts.Journal.ResumeAfter(st.seq)
	if n := len(st.blocks); n > 0 {
		log.Warn("blocks left unfreed by a previous run",
			zap.Int("count", n), zap.Uint64("seq", st.seq))
	}
	log.Info("lifecycle state recovered",
		zap.Uint64("seq", st.seq),
		zap.Uint64("max_block", st.maxBlock),
		zap.Int("violations", len(st.violations)))

	s := &Service{
		journal: opts.Journal,
		ledger:  opts.Ledger,
		snapDir: opts.SnapshotDir,
		writer:  &snapshot.Writer{Dir: opts.SnapshotDir},
		ring:    memory.NewRetireRing(ringSize),
		objects: memory.NewPool(func() *Payload { return &Payload{} }),
		log:     log,
	}
	s.tracker = newTracker(opts.Journal, opts.Ledger, st, log)
	s.alloc = rc.NewPoolAllocator(rc.PoolConfig{
		Limit:     opts.BlockLimit,
		Sequencer: sequence.New(st.maxBlock),
		Observer:  s.tracker,
	})
	s.deleter = rc.RetireDeleter[Payload]{
		Ring:     s.ring,
		Fallback: rc.PoolDeleter[Payload]{Pool: s.objects},
	}

	if opts.Workload != (WorkloadConfig{}) {
		s.workload, err = NewWorkload(opts.Workload, s.alloc, s.objects, s.deleter, log)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Share hands out a tracked handle over p. Released payloads are retired
// and recycled once no reader can observe them.
func (s *Service) Share(p *Payload) (*rc.Shared[Payload], error) {
	return rc.MakeShared[Payload](s.alloc, p, s.deleter)
}

// NewPayload takes a payload from the recycling pool.
func (s *Service) NewPayload() *Payload { return s.objects.Get() }

func (s *Service) Tracker() *Tracker { return s.tracker }

func (s *Service) Workload() *Workload { return s.workload }

// AdvanceEpoch bumps the global epoch and recycles every retired payload
// no active reader can still see. Safe to call from several goroutines.
func (s *Service) AdvanceEpoch() int {
	var readers []*memory.ReaderEpoch
	if s.workload != nil {
		readers = s.workload.Epochs()
	}
	s.reclaimMu.Lock()
	n := memory.AdvanceEpochAndReclaim(s.ring, s.objects, readers...)
	s.reclaimMu.Unlock()
	s.reclaimed.Add(uint64(n))
	return n
}

// TakeSnapshot persists the tracker state and truncates the journal
// segments it covers. It returns the snapshot seq and the number of
// segments removed.
func (s *Service) TakeSnapshot() (uint64, int, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	if err := s.journal.Sync(); err != nil {
		return 0, 0, errors.Wrap(err, "sync journal")
	}
	snap := s.tracker.Snapshot()
	snap.Created = time.Now()
	if err := s.writer.Write(snap); err != nil {
		return 0, 0, err
	}
	removed, err := s.journal.TruncateBefore(snap.Seq)
	if err != nil {
		return snap.Seq, removed, errors.Wrap(err, "truncate journal")
	}
	if s.ledger != nil {
		if err := s.ledger.Flush(); err != nil {
			return snap.Seq, removed, errors.Wrap(err, "flush ledger")
		}
	}
	return snap.Seq, removed, nil
}

// Audit verifies what is on disk: the snapshot plus the journal after it.
func (s *Service) Audit(ctx context.Context) (Audit, error) {
	if err := ctx.Err(); err != nil {
		return Audit{}, err
	}
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	if err := s.journal.Sync(); err != nil {
		return Audit{}, errors.Wrap(err, "sync journal")
	}
	return RunAudit(s.snapDir, s.journal.Dir())
}

func (s *Service) Leaks() []uint64 { return s.tracker.Leaks() }

type Stats struct {
	LiveBlocks  int64
	Allocated   uint64
	FreedBlocks uint64
	Retired     int
	Reclaimed   uint64
	Epoch       uint64
	Tracker     TrackerStats
	Workload    WorkloadStats
}

func (s *Service) Stats() Stats {
	st := Stats{
		LiveBlocks:  s.alloc.Live(),
		Allocated:   s.alloc.Allocated(),
		FreedBlocks: s.alloc.Freed(),
		Retired:     s.ring.Len(),
		Reclaimed:   s.reclaimed.Load(),
		Epoch:       memory.GlobalEpoch.Load(),
		Tracker:     s.tracker.Stats(),
	}
	if s.workload != nil {
		st.Workload = s.workload.Stats()
	}
	return st
}

type Intervals struct {
	Epoch    time.Duration
	Snapshot time.Duration
	Workload time.Duration
}

// Run drives the background jobs until ctx is done. A zero interval
// disables its job.
func (s *Service) Run(ctx context.Context, iv Intervals) {
	var wg sync.WaitGroup
	every := func(name string, d time.Duration, fn func()) {
		if d <= 0 {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(d)
			defer t.Stop()
			s.log.Info("job started", zap.String("job", name), zap.Duration("interval", d))
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					fn()
				}
			}
		}()
	}

	every("epoch", iv.Epoch, func() {
		if n := s.AdvanceEpoch(); n > 0 {
			s.log.Debug("reclaimed retired payloads", zap.Int("count", n))
		}
	})
	every("snapshot", iv.Snapshot, func() {
		seq, removed, err := s.TakeSnapshot()
		if err != nil {
			s.log.Warn("snapshot failed", zap.Error(err))
			return
		}
		s.log.Info("snapshot written", zap.Uint64("seq", seq), zap.Int("segments_removed", removed))
	})
	if s.workload != nil && iv.Workload > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.workload.Run(ctx, iv.Workload)
		}()
	}

	wg.Wait()
}

// Close stops the workload and recycles what is still retired.
func (s *Service) Close() {
	if s.workload != nil {
		s.workload.Close()
	}
	s.AdvanceEpoch()
}
