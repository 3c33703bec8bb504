package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"refkit/domain/rc"
	"refkit/infra/memory"
	"refkit/snapshot"
)

// Payload is the object managed by workload handles.
type Payload struct {
	Seq uint64
	Buf [64]byte
}

type WorkloadConfig struct {
	Workers    int
	Objects    int
	Iterations int
}

// Report summarizes one workload round.
type Report struct {
	Objects       int
	Tasks         int
	Upgrades      uint64
	Misses        uint64
	AllocFailures int
	// Unexpired counts weak handles whose object outlived the round.
	Unexpired int
	Elapsed   time.Duration
}

// Workload shares objects across an ants worker pool. Each task clones
// its own strong and weak handles, upgrades its weak handle, and reads the
// published payload inside an epoch read section without owning it. Tasks
// drop their strong handle halfway so later upgrades and reads race the
// last release.
type Workload struct {
	cfg     WorkloadConfig
	pool    *ants.Pool
	alloc   rc.Allocator
	objects *memory.Pool[Payload]
	deleter rc.Deleter[Payload]
	readers chan *snapshot.Reader
	epochs  []*memory.ReaderEpoch
	log     *zap.Logger

	seq      atomic.Uint64
	rounds   atomic.Uint64
	upgrades atomic.Uint64
	misses   atomic.Uint64
	peeks    atomic.Uint64
	torn     atomic.Uint64
}

// slot publishes an object's payload to readers that hold no handle. The
// last strong release clears it before the payload is retired, so a
// reader can only reach a retired payload if it loaded the pointer inside
// a read section that began earlier.
type slot struct {
	seq uint64
	ptr atomic.Pointer[Payload]
}

func (s *slot) load() *Payload { return s.ptr.Load() }

// intact reports whether p still holds the object published in s.
func (s *slot) intact(p *Payload) bool { return p.Seq == s.seq }

func NewWorkload(
	cfg WorkloadConfig,
	alloc rc.Allocator,
	objects *memory.Pool[Payload],
	deleter rc.Deleter[Payload],
	log *zap.Logger,
) (*Workload, error) {
	if cfg.Workers <= 0 || cfg.Objects <= 0 || cfg.Iterations <= 0 {
		return nil, errors.Newf("workload: workers, objects and iterations must be positive: %+v", cfg)
	}
	log = log.Named("workload")
	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error("workload task panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}

	// one reader per pool goroutine; tasks borrow them
	readers := make(chan *snapshot.Reader, cfg.Workers)
	epochs := make([]*memory.ReaderEpoch, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		r := snapshot.NewReader()
		readers <- r
		epochs = append(epochs, r.Epoch())
	}

	return &Workload{
		cfg:     cfg,
		pool:    pool,
		alloc:   alloc,
		objects: objects,
		deleter: deleter,
		readers: readers,
		epochs:  epochs,
		log:     log,
	}, nil
}

// Epochs are the reader epochs reclamation must wait for.
func (w *Workload) Epochs() []*memory.ReaderEpoch { return w.epochs }

// Round runs one pass: Objects shared objects, Workers tasks each.
// Allocation failures such as a block limit are counted, not fatal.
func (w *Workload) Round(ctx context.Context) (Report, error) {
	start := time.Now()
	upgrades0, misses0 := w.upgrades.Load(), w.misses.Load()
	rep := Report{}
	var wg sync.WaitGroup
	var firstErr error
	weaks := make([]*rc.Weak[Payload], 0, w.cfg.Objects)

	for i := 0; i < w.cfg.Objects && ctx.Err() == nil; i++ {
		sl, sp, err := w.publish(w.objects.Get())
		if err != nil {
			if errors.Is(err, rc.ErrAllocation) {
				rep.AllocFailures++
				continue
			}
			firstErr = err
			break
		}
		rep.Objects++
		weak := sp.Downgrade()
		weaks = append(weaks, weak)

		for k := 0; k < w.cfg.Workers; k++ {
			h, wk := sp.Clone(), weak.Clone()
			wg.Add(1)
			err := w.pool.Submit(func() {
				defer wg.Done()
				w.exercise(ctx, sl, h, wk)
			})
			if err != nil {
				wg.Done()
				h.Reset()
				wk.Reset()
				if firstErr == nil {
					firstErr = errors.Wrap(err, "submit task")
				}
				continue
			}
			rep.Tasks++
		}
		sp.Reset()
	}
	wg.Wait()

	for _, weak := range weaks {
		if !weak.Expired() {
			rep.Unexpired++
		}
		weak.Reset()
	}

	rep.Upgrades = w.upgrades.Load() - upgrades0
	rep.Misses = w.misses.Load() - misses0
	rep.Elapsed = time.Since(start)
	w.rounds.Add(1)
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return rep, firstErr
}

// publish shares p under a fresh sequence number and exposes it through a
// slot. On error ownership of p was never transferred and p is back in
// the pool.
func (w *Workload) publish(p *Payload) (*slot, *rc.Shared[Payload], error) {
	p.Seq = w.seq.Add(1)
	sl := &slot{seq: p.Seq}
	sp, err := rc.MakeShared(w.alloc, p, rc.DeleterFunc[Payload](func(p *Payload) {
		sl.ptr.Store(nil)
		w.deleter.Delete(p)
	}))
	if err != nil {
		w.objects.Put(p)
		return nil, nil, err
	}
	sl.ptr.Store(p)
	return sl, sp, nil
}

func (w *Workload) exercise(ctx context.Context, sl *slot, h *rc.Shared[Payload], wk *rc.Weak[Payload]) {
	r := <-w.readers
	defer func() { w.readers <- r }()
	defer wk.Reset()
	defer h.Reset()

	half := w.cfg.Iterations / 2
	for i := 0; i < w.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			return
		}
		if i == half {
			h.Reset()
		}
		if h.Valid() {
			c := h.Clone()
			c.Reset()
		}

		if sp, ok := wk.Upgrade(); ok {
			w.upgrades.Add(1)
			sp.Reset()
		} else {
			w.misses.Add(1)
		}
		w.peek(r, sl)
	}
}

// peek reads the published payload without owning it. Only the read
// section keeps it from being recycled underneath.
func (w *Workload) peek(r *snapshot.Reader, sl *slot) {
	r.View(func() {
		w.check(sl, sl.load())
	})
}

// check verifies a payload loaded from sl earlier in the same read
// section.
func (w *Workload) check(sl *slot, p *Payload) {
	if p == nil {
		return
	}
	w.peeks.Add(1)
	if !sl.intact(p) {
		w.torn.Add(1)
	}
}

// Run repeats rounds every interval until ctx is done.
func (w *Workload) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rep, err := w.Round(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Warn("round failed", zap.Error(err))
		}
		w.log.Debug("round finished",
			zap.Int("objects", rep.Objects),
			zap.Int("tasks", rep.Tasks),
			zap.Int("alloc_failures", rep.AllocFailures),
			zap.Int("unexpired", rep.Unexpired),
			zap.Duration("elapsed", rep.Elapsed))

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// WorkloadStats are cumulative over every round.
type WorkloadStats struct {
	Rounds   uint64
	Upgrades uint64
	Misses   uint64
	// Peeks counts unowned reads of a still published payload. Torn
	// counts those that found the payload already recycled, which only
	// happens if reclamation ignores the workload's reader epochs.
	Peeks   uint64
	Torn    uint64
	Running int
}

func (w *Workload) Stats() WorkloadStats {
	return WorkloadStats{
		Rounds:   w.rounds.Load(),
		Upgrades: w.upgrades.Load(),
		Misses:   w.misses.Load(),
		Peeks:    w.peeks.Load(),
		Torn:     w.torn.Load(),
		Running:  w.pool.Running(),
	}
}

func (w *Workload) Close() {
	w.pool.Release()
}
