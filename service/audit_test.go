package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refkit/domain/rc"
	"refkit/infra/journal"
	"refkit/snapshot"
)

func TestAuditStateLifecycle(t *testing.T) {
	st := newAuditState(&snapshot.Snapshot{})
	st.apply(1, journal.RecordAlive, 1)
	st.apply(2, journal.RecordAlive, 2)
	st.apply(3, journal.RecordReleased, 1)
	st.apply(4, journal.RecordFreed, 1)
	st.apply(5, journal.RecordReleased, 2)

	a := st.result()
	assert.True(t, a.Clean(), a.Violations)
	assert.Equal(t, uint64(5), a.LastSeq)
	assert.Equal(t, uint64(2), a.Blocks)
	assert.Equal(t, uint64(2), a.Alive)
	assert.Equal(t, uint64(2), a.Released)
	assert.Equal(t, uint64(1), a.Freed)
	assert.Equal(t, []uint64{2}, a.Leaks)
	assert.Equal(t, uint64(2), st.maxBlock)
}

func TestAuditStateViolations(t *testing.T) {
	tests := []struct {
		name  string
		apply func(st *auditState)
	}{
		{"double alloc", func(st *auditState) {
			st.apply(1, journal.RecordAlive, 1)
			st.apply(2, journal.RecordAlive, 1)
		}},
		{"release unknown", func(st *auditState) {
			st.apply(1, journal.RecordReleased, 9)
		}},
		{"double release", func(st *auditState) {
			st.apply(1, journal.RecordAlive, 1)
			st.apply(2, journal.RecordReleased, 1)
			st.apply(3, journal.RecordReleased, 1)
		}},
		{"free while alive", func(st *auditState) {
			st.apply(1, journal.RecordAlive, 1)
			st.apply(2, journal.RecordFreed, 1)
		}},
		{"double free", func(st *auditState) {
			st.apply(1, journal.RecordAlive, 1)
			st.apply(2, journal.RecordReleased, 1)
			st.apply(3, journal.RecordFreed, 1)
			st.apply(4, journal.RecordFreed, 1)
		}},
		{"unknown type", func(st *auditState) {
			st.apply(1, journal.RecordType(99), 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newAuditState(&snapshot.Snapshot{})
			tt.apply(st)
			a := st.result()
			require.Len(t, a.Violations, 1)
			assert.False(t, a.Clean())
		})
	}
}

func TestAuditStateSnapshotRoundTrip(t *testing.T) {
	st := newAuditState(&snapshot.Snapshot{})
	st.apply(1, journal.RecordAlive, 3)
	st.apply(2, journal.RecordAlive, 4)
	st.apply(3, journal.RecordReleased, 4)
	st.apply(4, journal.RecordReleased, 8)

	snap := st.snapshot()
	assert.Equal(t, []snapshot.BlockEntry{
		{ID: 3, State: rc.Alive},
		{ID: 4, State: rc.ObjectReleased},
	}, snap.Blocks)

	again := newAuditState(snap)
	again.apply(5, journal.RecordFreed, 4)
	a := again.result()
	assert.Equal(t, uint64(5), a.LastSeq)
	assert.Equal(t, uint64(8), again.maxBlock)
	assert.Equal(t, []uint64{3}, a.Leaks)
	assert.Len(t, a.Violations, 1, "violation carried over from the snapshot")
}

func TestRunAuditFromDisk(t *testing.T) {
	jdir, sdir := t.TempDir(), t.TempDir()
	j, err := journal.Open(journal.Config{Dir: jdir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	for _, step := range []struct {
		t     journal.RecordType
		block uint64
	}{
		{journal.RecordAlive, 1},
		{journal.RecordAlive, 2},
		{journal.RecordReleased, 1},
		{journal.RecordFreed, 1},
	} {
		_, err := j.Log(step.t, step.block)
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	a, err := RunAudit(sdir, jdir)
	require.NoError(t, err)
	assert.True(t, a.Clean())
	assert.Equal(t, uint64(4), a.LastSeq)
	assert.Equal(t, []uint64{2}, a.Leaks)
}

func TestRecordTypeFor(t *testing.T) {
	_, ok := recordTypeFor(rc.Unallocated)
	assert.False(t, ok)
	rt, ok := recordTypeFor(rc.ObjectReleased)
	require.True(t, ok)
	assert.Equal(t, journal.RecordReleased, rt)
}
