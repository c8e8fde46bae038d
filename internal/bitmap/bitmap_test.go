package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllMissing(t *testing.T) {
	m := New(4)
	assert.Equal(t, 4, m.Popcount())
	for k := 0; k < 4; k++ {
		assert.True(t, m.Test(k))
	}
}

func TestClearSet(t *testing.T) {
	m := New(4)
	m.Clear(2)
	assert.False(t, m.Test(2))
	assert.Equal(t, 3, m.Popcount())

	m.Set(2)
	assert.True(t, m.Test(2))
	assert.Equal(t, 4, m.Popcount())
}

func TestResetAllMissing(t *testing.T) {
	m := New(4)
	m.Clear(0)
	m.Clear(1)
	m.ResetAllMissing()
	assert.Equal(t, 4, m.Popcount())
}

func TestPackUnpackRoundTrip(t *testing.T) {
	m := New(4)
	m.Clear(0)
	m.Clear(1)
	m.Clear(3)
	// only block 2 missing -> bit 2 set -> 0b00000100
	packed := m.Pack()
	require.Len(t, packed, 1)
	assert.Equal(t, byte(0b00000100), packed[0])

	m2 := New(4)
	ok := m2.Unpack(packed)
	require.True(t, ok)
	assert.True(t, m2.Test(2))
	assert.False(t, m2.Test(0))
	assert.False(t, m2.Test(1))
	assert.False(t, m2.Test(3))
}

func TestUnpackWrongLength(t *testing.T) {
	m := New(32)
	ok := m.Unpack([]byte{0x01})
	assert.False(t, ok)
}

func TestPackedLenLargeWindow(t *testing.T) {
	m := New(32)
	assert.Len(t, m.Pack(), 4)
}

func TestAnyMissing(t *testing.T) {
	m := New(2)
	assert.True(t, m.AnyMissing())
	m.Clear(0)
	m.Clear(1)
	assert.False(t, m.AnyMissing())
}
