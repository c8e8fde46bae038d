// Package bitmap implements the missing-block tracker for a single LOT
// receive window.
//
// A bit is set iff the corresponding block index is still missing; the
// bitmap starts all-ones ("everything missing") and bits are cleared as
// blocks arrive. Packing is little-endian: bit k lives in byte k/8, bit
// k%8, and this layout is wire-visible — it must never change without a
// protocol version bump.
package bitmap

// MaxWindowSize is the largest window_size the wire bitmap can represent
// in 4 bytes (32 bits).
const MaxWindowSize = 32

// Map tracks which block indices of a window have not yet been received.
type Map struct {
	bits [MaxWindowSize / 8]byte
	size int
}

// New returns a Map sized for windowSize blocks, all marked missing.
// windowSize must be in [1, MaxWindowSize]; callers range-check at
// configuration time, not here.
func New(windowSize int) *Map {
	m := &Map{size: windowSize}
	m.ResetAllMissing()
	return m
}

// Size returns the window size this map was created for.
func (m *Map) Size() int {
	return m.size
}

// Test reports whether block index k is still missing. Behavior is
// undefined if k >= Size(); callers must range-check.
func (m *Map) Test(k int) bool {
	return m.bits[k/8]&(1<<uint(k%8)) != 0
}

// Clear marks block index k as received.
func (m *Map) Clear(k int) {
	m.bits[k/8] &^= 1 << uint(k%8)
}

// Set marks block index k as missing.
func (m *Map) Set(k int) {
	m.bits[k/8] |= 1 << uint(k%8)
}

// ResetAllMissing marks every block in the window as missing.
func (m *Map) ResetAllMissing() {
	for i := range m.bits {
		m.bits[i] = 0xFF
	}
}

// Popcount returns the number of blocks still marked missing.
func (m *Map) Popcount() int {
	n := 0
	for k := 0; k < m.size; k++ {
		if m.Test(k) {
			n++
		}
	}
	return n
}

// AnyMissing reports whether at least one block in the window is missing.
func (m *Map) AnyMissing() bool {
	return m.Popcount() > 0
}

// packedLen returns ceil(size/8), the number of bytes the wire
// representation occupies.
func packedLen(size int) int {
	return (size + 7) / 8
}

// Pack returns the wire representation: ceil(size/8) bytes, little-endian
// bit order (bit k of byte k/8).
func (m *Map) Pack() []byte {
	n := packedLen(m.size)
	out := make([]byte, n)
	copy(out, m.bits[:n])
	// Bits at or above size carry no block; send them as 0.
	if r := m.size % 8; r != 0 {
		out[n-1] &= byte(1<<uint(r)) - 1
	}
	return out
}

// Unpack overwrites m's bits from a wire representation of the expected
// length (ceil(size/8) bytes). It returns false if b has the wrong length.
func (m *Map) Unpack(b []byte) bool {
	n := packedLen(m.size)
	if len(b) != n {
		return false
	}
	m.ResetAllMissing()
	copy(m.bits[:n], b)
	return true
}
