// Package codec implements the LOT wire frame layouts: DATA and ACK.
//
// Both frames are prefixed by a little-endian 16-bit session id. Field
// layouts, byte order, and flag bit positions are wire-visible and must be
// preserved exactly — see the header table in spec section 4.1.
package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Flag bits of the DATA frame's flags byte.
const (
	FlagLastBlock byte = 1 << 0
	FlagResume    byte = 1 << 1 // reserved; decoders must not reject it
	FlagOddWindow byte = 1 << 2
	// bits 3-7 reserved: senders set to 1, receivers ignore.
	reservedFlagBits byte = 0b11111000
)

// DataHeaderLen is the fixed DATA frame header size in bytes.
const DataHeaderLen = 5

// AckHeaderLen is the fixed ACK frame header size in bytes (excluding the
// optional trailing bitmap).
const AckHeaderLen = 3

// ErrInvalidPacket is returned when a frame is shorter than its minimum
// header length.
var ErrInvalidPacket = errors.New("codec: packet shorter than minimum header")

// WireError is the shared ACK error-code enumeration. Values 0-5 are the
// peer-observable codes; local-only errors are a separate type in package
// lot and never appear on the wire.
type WireError uint8

const (
	Success         WireError = 0
	MaxSessions     WireError = 1
	SessionNotFound WireError = 2
	SessionAborted  WireError = 3
	WrongWindow     WireError = 4
	InvalidPacket   WireError = 5
)

func (e WireError) String() string {
	switch e {
	case Success:
		return "Success"
	case MaxSessions:
		return "MaxSessions"
	case SessionNotFound:
		return "SessionNotFound"
	case SessionAborted:
		return "SessionAborted"
	case WrongWindow:
		return "WrongWindow"
	case InvalidPacket:
		return "InvalidPacket"
	default:
		return "Unknown"
	}
}

// DataFrame is the decoded representation of a DATA block.
type DataFrame struct {
	SessionID uint16
	BlockNum  uint16
	Flags     byte
	Data      []byte
}

// LastBlock reports whether this block carries the LAST_BLOCK flag.
func (f *DataFrame) LastBlock() bool { return f.Flags&FlagLastBlock != 0 }

// OddWindow reports whether this block's window color is Odd.
func (f *DataFrame) OddWindow() bool { return f.Flags&FlagOddWindow != 0 }

// Resume reports whether this block carries the reserved RESUME flag.
func (f *DataFrame) Resume() bool { return f.Flags&FlagResume != 0 }

// MakeDataFlags assembles a flags byte. Reserved bits 3-7 are set to 1 per
// spec.md section 4.1.
func MakeDataFlags(last, resume, odd bool) byte {
	var f byte = reservedFlagBits
	if last {
		f |= FlagLastBlock
	}
	if resume {
		f |= FlagResume
	}
	if odd {
		f |= FlagOddWindow
	}
	return f
}

// EncodeData encodes a DATA frame into a freshly-allocated byte slice.
func EncodeData(f *DataFrame) []byte {
	buf := make([]byte, DataHeaderLen+len(f.Data))
	binary.LittleEndian.PutUint16(buf[0:2], f.SessionID)
	binary.LittleEndian.PutUint16(buf[2:4], f.BlockNum)
	buf[4] = f.Flags
	copy(buf[5:], f.Data)
	return buf
}

// DecodeData parses a DATA frame. The returned Data slice aliases b; callers
// that retain it past the lifetime of b must copy it themselves.
func DecodeData(b []byte) (*DataFrame, error) {
	if len(b) < DataHeaderLen {
		return nil, errors.Wrap(ErrInvalidPacket, "data frame")
	}
	return &DataFrame{
		SessionID: binary.LittleEndian.Uint16(b[0:2]),
		BlockNum:  binary.LittleEndian.Uint16(b[2:4]),
		Flags:     b[4],
		Data:      b[5:],
	}, nil
}

// AckFrame is the decoded representation of an ACK.
type AckFrame struct {
	SessionID uint16
	Error     WireError
	// Bitmap is the optional trailing missing-block bitmap. A nil or
	// empty Bitmap together with Error == Success means "window fully
	// received, send next."
	Bitmap []byte
}

// EncodeAck encodes an ACK frame into a freshly-allocated byte slice.
func EncodeAck(f *AckFrame) []byte {
	buf := make([]byte, AckHeaderLen+len(f.Bitmap))
	binary.LittleEndian.PutUint16(buf[0:2], f.SessionID)
	buf[2] = byte(f.Error)
	copy(buf[3:], f.Bitmap)
	return buf
}

// DecodeAck parses an ACK frame. The returned Bitmap slice aliases b;
// callers that retain it past the lifetime of b must copy it themselves.
func DecodeAck(b []byte) (*AckFrame, error) {
	if len(b) < AckHeaderLen {
		return nil, errors.Wrap(ErrInvalidPacket, "ack frame")
	}
	f := &AckFrame{
		SessionID: binary.LittleEndian.Uint16(b[0:2]),
		Error:     WireError(b[2]),
	}
	if len(b) > AckHeaderLen {
		f.Bitmap = b[AckHeaderLen:]
	}
	return f, nil
}

// PeekSessionID reads the session id prefix shared by both frame kinds,
// without knowing which kind b is. It fails if b is shorter than 3 bytes,
// per the dispatcher's minimum-length rule in spec.md section 4.5.
func PeekSessionID(b []byte) (uint16, error) {
	if len(b) < 3 {
		return 0, errors.Wrap(ErrInvalidPacket, "frame shorter than session id + 1 byte")
	}
	return binary.LittleEndian.Uint16(b[0:2]), nil
}
