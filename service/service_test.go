package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"refkit/domain/rc"
	"refkit/infra/journal"
	"refkit/infra/ledger"
)

type env struct {
	journalDir  string
	snapshotDir string
	journal     *journal.Journal
	ledger      *ledger.Ledger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{journalDir: t.TempDir(), snapshotDir: t.TempDir()}
	e.open(t)
	l, err := ledger.OpenWithOptions("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	e.ledger = l
	return e
}

func (e *env) open(t *testing.T) {
	t.Helper()
	j, err := journal.Open(journal.Config{Dir: e.journalDir, SegmentSize: 256})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	e.journal = j
}

func (e *env) service(t *testing.T, wl WorkloadConfig) *Service {
	t.Helper()
	s, err := New(Options{
		Journal:        e.journal,
		Ledger:         e.ledger,
		SnapshotDir:    e.snapshotDir,
		RetireRingSize: 64,
		Workload:       wl,
		Log:            zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewRequiresJournal(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestShareIsTracked(t *testing.T) {
	e := newEnv(t)
	s := e.service(t, WorkloadConfig{})

	sp, err := s.Share(s.NewPayload())
	require.NoError(t, err)
	id := sp.Block().ID()
	wk := sp.Downgrade()

	entry, err := e.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, rc.Alive, entry.State)
	assert.Equal(t, []uint64{id}, s.Leaks())

	sp.Reset()
	entry, err = e.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, rc.ObjectReleased, entry.State)
	assert.Equal(t, 1, s.Stats().Retired)

	wk.Reset()
	entry, err = e.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, rc.Freed, entry.State)
	assert.Empty(t, s.Leaks())

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Tracker.Alive)
	assert.Equal(t, uint64(1), st.Tracker.Released)
	assert.Equal(t, uint64(1), st.Tracker.Freed)
	assert.Equal(t, uint64(3), st.Tracker.LastSeq)
	assert.Zero(t, st.LiveBlocks)

	assert.Equal(t, 1, s.AdvanceEpoch())
	assert.Equal(t, uint64(1), s.Stats().Reclaimed)

	a, err := s.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, a.Clean(), a.Violations)
	assert.Equal(t, s.Tracker().Audit(), a)
}

func TestBlockLimitSurfacesAllocationError(t *testing.T) {
	e := newEnv(t)
	s, err := New(Options{
		Journal:     e.journal,
		SnapshotDir: e.snapshotDir,
		BlockLimit:  1,
		Log:         zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Share(s.NewPayload())
	require.NoError(t, err)
	_, err = s.Share(s.NewPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, rc.ErrAllocation))
	assert.True(t, errors.Is(err, rc.ErrBlockLimit))
	first.Reset()
}

func TestSnapshotTruncatesAndRecovers(t *testing.T) {
	e := newEnv(t)
	s := e.service(t, WorkloadConfig{})

	var held []*rc.Shared[Payload]
	for i := 0; i < 20; i++ {
		sp, err := s.Share(s.NewPayload())
		require.NoError(t, err)
		if i%4 == 0 {
			held = append(held, sp)
			continue
		}
		sp.Reset()
	}

	seq, removed, err := s.TakeSnapshot()
	require.NoError(t, err)
	assert.Equal(t, s.Tracker().Stats().LastSeq, seq)
	assert.Positive(t, removed)

	before, err := s.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, before.Clean(), before.Violations)
	assert.Len(t, before.Leaks, len(held))

	for _, sp := range held {
		sp.Reset()
	}
	after, err := s.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, after.Clean(), after.Violations)
	assert.Empty(t, after.Leaks)
	assert.Equal(t, uint64(20), after.Blocks)
	assert.Equal(t, uint64(20), after.Freed)

	// restart: block IDs and sequence numbers resume above the old run
	require.NoError(t, e.journal.Close())
	e.open(t)
	s2 := e.service(t, WorkloadConfig{})
	sp, err := s2.Share(s2.NewPayload())
	require.NoError(t, err)
	assert.Greater(t, sp.Block().ID(), uint64(20))
	sp.Reset()

	a, err := s2.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, a.Clean(), a.Violations)
	assert.Equal(t, uint64(21), a.Blocks)
	assert.Equal(t, after.LastSeq+3, a.LastSeq)
}

func TestRestartReportsOrphans(t *testing.T) {
	e := newEnv(t)
	s := e.service(t, WorkloadConfig{})
	sp, err := s.Share(s.NewPayload())
	require.NoError(t, err)
	orphan := sp.Block().ID()

	// simulate a crash: the handle is never reset
	require.NoError(t, e.journal.Close())
	e.open(t)
	s2 := e.service(t, WorkloadConfig{})
	assert.Equal(t, []uint64{orphan}, s2.Leaks())
}

func TestRunJobs(t *testing.T) {
	e := newEnv(t)
	s := e.service(t, WorkloadConfig{Workers: 2, Objects: 4, Iterations: 20})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, Intervals{
			Epoch:    time.Millisecond,
			Snapshot: 5 * time.Millisecond,
			Workload: time.Millisecond,
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.Workload.Rounds >= 2 && st.Reclaimed > 0
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	st := s.Stats()
	assert.Zero(t, st.Tracker.Failures)
	assert.Zero(t, st.Workload.Torn)

	a, err := s.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, a.Clean(), a.Violations)
}
