package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDataRoundTrip(t *testing.T) {
	f := &DataFrame{
		SessionID: 1,
		BlockNum:  3,
		Flags:     MakeDataFlags(true, false, true),
		Data:      []byte("hello"),
	}
	b := EncodeData(f)
	require.Len(t, b, DataHeaderLen+5)

	got, err := DecodeData(b)
	require.NoError(t, err)
	assert.Equal(t, f.SessionID, got.SessionID)
	assert.Equal(t, f.BlockNum, got.BlockNum)
	assert.True(t, got.LastBlock())
	assert.True(t, got.OddWindow())
	assert.False(t, got.Resume())
	assert.Equal(t, []byte("hello"), got.Data)
}

func TestDecodeDataTooShort(t *testing.T) {
	_, err := DecodeData([]byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestEncodeDecodeAckRoundTripEmptyBitmap(t *testing.T) {
	f := &AckFrame{SessionID: 42, Error: Success}
	b := EncodeAck(f)
	require.Len(t, b, AckHeaderLen)

	got, err := DecodeAck(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), got.SessionID)
	assert.Equal(t, Success, got.Error)
	assert.Empty(t, got.Bitmap)
}

func TestEncodeDecodeAckRoundTripWithBitmap(t *testing.T) {
	f := &AckFrame{SessionID: 7, Error: Success, Bitmap: []byte{0b00000100}}
	b := EncodeAck(f)

	got, err := DecodeAck(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{0b00000100}, got.Bitmap)
}

func TestDecodeAckTooShort(t *testing.T) {
	_, err := DecodeAck([]byte{0, 0})
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestPeekSessionID(t *testing.T) {
	id, err := PeekSessionID([]byte{5, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, uint16(5), id)

	_, err = PeekSessionID([]byte{5, 0})
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestMakeDataFlagsReservedBitsSet(t *testing.T) {
	f := MakeDataFlags(false, false, false)
	assert.Equal(t, reservedFlagBits, f)
}

func TestUnknownFlagBitsPreserved(t *testing.T) {
	// A decoder must preserve unknown/reserved flag bits, not reject them.
	b := EncodeData(&DataFrame{SessionID: 1, BlockNum: 0, Flags: 0xFF, Data: nil})
	got, err := DecodeData(b)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), got.Flags)
}
