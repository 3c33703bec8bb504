package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"refkit/domain/rc"
	"refkit/infra/journal"
)

func TestTrackerCountsOnlyJournaledTransitions(t *testing.T) {
	j, err := journal.Open(journal.Config{Dir: t.TempDir(), SegmentSize: 1 << 10})
	require.NoError(t, err)
	tr := newTracker(j, nil, nil, zap.NewNop())

	tr.Observe(rc.Event{Block: 1, From: rc.Unallocated, To: rc.Alive})
	require.NoError(t, j.Close())
	tr.Observe(rc.Event{Block: 1, From: rc.Alive, To: rc.ObjectReleased})

	st := tr.Stats()
	assert.Equal(t, uint64(1), st.Alive)
	assert.Zero(t, st.Released)
	assert.Equal(t, uint64(1), st.Failures)
	assert.Equal(t, uint64(1), st.LastSeq)
	assert.Equal(t, []uint64{1}, tr.Leaks())
}
