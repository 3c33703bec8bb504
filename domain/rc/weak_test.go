package rc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakFromEmptyShared(t *testing.T) {
	wp := NewWeak(&Shared[tracked]{})
	assert.True(t, wp.Expired())
	sp, ok := wp.Upgrade()
	assert.False(t, ok)
	assert.False(t, sp.Valid())
	assert.NotPanics(t, wp.Reset)
}

func TestWeakDoesNotExtendLifetime(t *testing.T) {
	sp, obj := newTracked(t, 1)
	wp := sp.Downgrade()
	assert.Equal(t, int64(1), wp.UseCount())

	sp.Reset()
	assert.Equal(t, int32(1), obj.released.Load())
	assert.True(t, wp.Expired())
	wp.Reset()
}

func TestWeakCloneMoveAssign(t *testing.T) {
	sp, _ := newTracked(t, 1)
	blk := sp.Block()

	w1 := sp.Downgrade()
	w2 := w1.Clone()
	assert.Equal(t, int64(3), blk.WeakCount())

	w3 := w2.Move()
	assert.True(t, w2.Expired())
	assert.Equal(t, int64(3), blk.WeakCount())

	w1.Assign(w1)
	assert.Equal(t, int64(3), blk.WeakCount())
	w1.Assign(w3)
	assert.Equal(t, int64(3), blk.WeakCount())

	w2.AssignMove(w3)
	assert.True(t, w3.Expired())
	assert.False(t, w2.Expired())
	assert.Equal(t, int64(3), blk.WeakCount())

	w1.Reset()
	w2.Reset()
	assert.Equal(t, int64(1), blk.WeakCount())
	sp.Reset()
	assert.Equal(t, Freed, blk.State())
}

func TestWeakOutlivesObjectThenFreesBlock(t *testing.T) {
	sp, _ := newTracked(t, 1)
	blk := sp.Block()
	w1 := sp.Downgrade()
	w2 := w1.Clone()

	sp.Reset()
	assert.Equal(t, ObjectReleased, blk.State())

	w1.Reset()
	assert.Equal(t, ObjectReleased, blk.State())
	w2.Reset()
	assert.Equal(t, Freed, blk.State())
}

// Upgrade must recover the managed pointer whatever deleter the block
// was built with.
func TestWeakUpgradeWithCustomDeleter(t *testing.T) {
	type payload struct{ data []byte }
	obj := &payload{data: []byte("x")}
	var deleted *payload

	sp, err := MakeShared(nil, obj, DeleterFunc[payload](func(p *payload) { deleted = p }))
	require.NoError(t, err)

	wp := sp.Downgrade()
	up, ok := wp.Upgrade()
	require.True(t, ok)
	assert.Same(t, obj, up.Get())

	sp.Reset()
	up.Reset()
	assert.Same(t, obj, deleted)
	wp.Reset()
}

func TestWeakSwap(t *testing.T) {
	a, objA := newTracked(t, 1)
	b, objB := newTracked(t, 2)
	wa, wb := a.Downgrade(), b.Downgrade()
	wa.Swap(wb)

	up, ok := wa.Upgrade()
	require.True(t, ok)
	assert.Same(t, objB, up.Get())
	up.Reset()

	up, ok = wb.Upgrade()
	require.True(t, ok)
	assert.Same(t, objA, up.Get())
	up.Reset()

	for _, h := range []*Shared[tracked]{a, b} {
		h.Reset()
	}
	wa.Reset()
	wb.Reset()
}
