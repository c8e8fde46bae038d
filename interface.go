package lot

import "context"

// Connection is an opaque handle to the underlying link (a BLE GATT
// characteristic, a UDP socket, an in-memory loopback pair, ...). The
// engine never interprets it; it only passes it back to the
// NetworkInterface.
type Connection interface{}

// NetworkInterface is the abstract capability the engine consumes to move
// bytes across the unreliable, unordered, packet-oriented lower link
// (spec.md section 4.6). It is packet-oriented: every Send call corresponds
// to exactly one frame, and every invocation of the callback installed via
// SetRecvCallback delivers exactly one frame's bytes.
//
// The physical link itself — BLE GATT characteristic I/O, MQTT framing,
// JSON control toggling — is out of scope; see transport/ for concrete
// loopback and UDP bindings used by tests and the demo command.
type NetworkInterface interface {
	// Send performs a best-effort, ordered packet send and returns the
	// number of bytes accepted. A returned count less than len(b) is a
	// failure and the caller treats it as a local NetworkError.
	Send(ctx context.Context, conn Connection, b []byte) (int, error)

	// SetRecvCallback installs the inbound packet handler for conn. The
	// link invokes cb once per received packet, with exactly that
	// packet's bytes. Installing a new callback replaces any previous one.
	SetRecvCallback(conn Connection, cb func(b []byte))
}
