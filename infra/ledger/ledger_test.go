package ledger

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refkit/domain/rc"
)

func openMem(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenWithOptions("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestEntryCodec(t *testing.T) {
	e := Entry{State: rc.ObjectReleased, Publish: Failed, Retries: 3, LastAttempt: 1234567}
	got, err := decodeEntry(encodeEntry(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = decodeEntry([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestKeyOrdering(t *testing.T) {
	assert.Less(t, string(keyFor(9)), string(keyFor(10)))
	id, err := parseKey(keyFor(18446744073709551615))
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), id)
}

func TestRecordAndGet(t *testing.T) {
	l := openMem(t)

	_, err := l.Get(1)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, l.Record(1, rc.Alive))
	e, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, rc.Alive, e.State)
	assert.Equal(t, Pending, e.Publish)

	require.NoError(t, l.Record(1, rc.ObjectReleased))
	e, err = l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, rc.ObjectReleased, e.State)
}

func TestMarkOnlyMatchingState(t *testing.T) {
	l := openMem(t)
	require.NoError(t, l.Record(5, rc.Alive))

	ok, err := l.MarkSent(5, rc.Alive)
	require.NoError(t, err)
	assert.True(t, ok)

	// a newer transition lands before the ack
	require.NoError(t, l.Record(5, rc.ObjectReleased))
	ok, err = l.MarkAcked(5, rc.Alive)
	require.NoError(t, err)
	assert.False(t, ok)

	e, err := l.Get(5)
	require.NoError(t, err)
	assert.Equal(t, Pending, e.Publish)

	_, err = l.MarkAcked(99, rc.Alive)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestScanPendingAndRetries(t *testing.T) {
	l := openMem(t)
	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, l.Record(id, rc.Alive))
	}
	_, err := l.MarkAcked(1, rc.Alive)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = l.MarkFailed(2, rc.Alive)
		require.NoError(t, err)
	}

	var ids []uint64
	require.NoError(t, l.ScanPending(3, func(id uint64, _ Entry) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []uint64{2, 3}, ids)

	ids = ids[:0]
	require.NoError(t, l.ScanPending(2, func(id uint64, _ Entry) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []uint64{3}, ids)

	e, err := l.Get(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), e.Retries)
	assert.NotZero(t, e.LastAttempt)
}

func TestScanByStateCountsDelete(t *testing.T) {
	l := openMem(t)
	require.NoError(t, l.Record(1, rc.Alive))
	require.NoError(t, l.Record(2, rc.ObjectReleased))
	require.NoError(t, l.Record(3, rc.Freed))
	require.NoError(t, l.Record(4, rc.Alive))

	var alive []uint64
	require.NoError(t, l.ScanByState(rc.Alive, func(id uint64, _ Entry) error {
		alive = append(alive, id)
		return nil
	}))
	assert.Equal(t, []uint64{1, 4}, alive)

	require.NoError(t, l.Delete(3))
	counts, err := l.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[rc.State]int{rc.Alive: 2, rc.ObjectReleased: 1}, counts)

	stop := errors.New("stop")
	err = l.Scan(func(uint64, Entry) error { return stop })
	assert.True(t, errors.Is(err, stop))
}

func TestReopenOnDisk(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.Record(7, rc.Freed))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())

	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()
	e, err := l.Get(7)
	require.NoError(t, err)
	assert.Equal(t, rc.Freed, e.State)
}

func TestScanPendingIncludesUnackedSent(t *testing.T) {
	l := openMem(t)
	require.NoError(t, l.Record(1, rc.Alive))
	_, err := l.MarkSent(1, rc.Alive)
	require.NoError(t, err)

	var ids []uint64
	require.NoError(t, l.ScanPending(1, func(id uint64, e Entry) error {
		assert.Equal(t, Sent, e.Publish)
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []uint64{1}, ids)
}

func TestPruneExhausted(t *testing.T) {
	l := openMem(t)
	require.NoError(t, l.Record(1, rc.Freed))
	require.NoError(t, l.Record(2, rc.Alive))
	require.NoError(t, l.Record(3, rc.Freed))
	for i := 0; i < 2; i++ {
		for _, id := range []uint64{1, 2} {
			_, err := l.MarkFailed(id, mustGet(t, l, id).State)
			require.NoError(t, err)
		}
	}
	_, err := l.MarkFailed(3, rc.Freed)
	require.NoError(t, err)

	pruned, err := l.PruneExhausted(2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, pruned)

	_, err = l.Get(1)
	assert.True(t, errors.Is(err, ErrNotFound))
	// live blocks and blocks with retries left stay
	assert.Equal(t, uint32(2), mustGet(t, l, 2).Retries)
	assert.Equal(t, uint32(1), mustGet(t, l, 3).Retries)

	pruned, err = l.PruneExhausted(2)
	require.NoError(t, err)
	assert.Empty(t, pruned)
}

func mustGet(t *testing.T, l *Ledger, id uint64) Entry {
	t.Helper()
	e, err := l.Get(id)
	require.NoError(t, err)
	return e
}
