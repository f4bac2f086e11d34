package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSizesToWholeBytes(t *testing.T) {
	b := New(9)
	require.Len(t, b, 2)
}

func TestSetGetRoundTrip(t *testing.T) {
	b := New(16)
	assert.False(t, b.Get(10))
	b.Set(10)
	assert.True(t, b.Get(10))
}

func TestSetIsIdempotentOr(t *testing.T) {
	b := New(8)
	b.Set(3)
	b.Set(3)
	assert.Equal(t, byte(1<<3), b[0])
}

func TestLittleEndianBitOrder(t *testing.T) {
	b := New(8)
	b.Set(0)
	assert.Equal(t, byte(0x01), b[0])
}

func TestClearZeroesWholeBitmap(t *testing.T) {
	b := New(16)
	b.Set(1)
	b.Set(9)
	b.Clear()
	assert.False(t, b.Get(1))
	assert.False(t, b.Get(9))
}

func TestCloneIsIndependent(t *testing.T) {
	b := New(8)
	b.Set(2)
	c := b.Clone()
	c.Set(5)
	assert.False(t, b.Get(5))
	assert.True(t, c.Get(5))
}

func TestCopyFromInstallsSnapshot(t *testing.T) {
	live := New(8)
	live.Set(7)
	snap := New(8)
	snap.Set(1)

	live.CopyFrom(snap)

	assert.False(t, live.Get(7))
	assert.True(t, live.Get(1))
}

func TestGetOutOfRangeIsFalse(t *testing.T) {
	b := New(8)
	assert.False(t, b.Get(100))
}

func TestSetOutOfRangeIsNoop(t *testing.T) {
	b := New(8)
	assert.NotPanics(t, func() { b.Set(100) })
}
