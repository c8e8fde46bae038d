// Package transport provides concrete lot.NetworkInterface bindings: an
// in-memory loopback pair for tests (with optional per-packet loss
// injection), and a UDP binding standing in for the BLE GATT link the
// production system targets.
package transport

import (
	"context"
	"sync"

	lot "github.com/lot-proto/lot"
)

// Action is the fault-injection verdict for one outbound packet.
type Action int

const (
	// Deliver passes the packet to the peer unchanged.
	Deliver Action = iota
	// Drop silently discards the packet, as if it never reached the peer.
	Drop
)

// Loopback is an in-memory, packet-oriented NetworkInterface. Packets are
// delivered to the peer on a dedicated goroutine so that a session
// reacting synchronously to its own send (for example, a receive session
// replying with an ACK from inside block ingest) never re-enters its own
// Context's mutex on the same goroutine.
type Loopback struct {
	peer  *Loopback
	inbox chan []byte
	done  chan struct{}

	mu     sync.Mutex
	cb     func([]byte)
	Filter func(b []byte) Action // optional; nil means Deliver everything
}

// NewLoopbackPair returns two ends of an in-memory link, each of which
// delivers packets sent on it to the other.
func NewLoopbackPair() (a, b *Loopback) {
	a = &Loopback{inbox: make(chan []byte, 256), done: make(chan struct{})}
	b = &Loopback{inbox: make(chan []byte, 256), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func (l *Loopback) deliverLoop() {
	for {
		select {
		case b := <-l.inbox:
			l.mu.Lock()
			cb := l.cb
			l.mu.Unlock()
			if cb != nil {
				cb(b)
			}
		case <-l.done:
			return
		}
	}
}

// Send implements lot.NetworkInterface.
func (l *Loopback) Send(ctx context.Context, _ lot.Connection, b []byte) (int, error) {
	if l.Filter != nil && l.Filter(b) == Drop {
		// The link accepted the packet for transmission; it is the
		// lower layer, not the sender, that lost it.
		return len(b), nil
	}
	cp := append([]byte(nil), b...)
	select {
	case l.peer.inbox <- cp:
		return len(b), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.done:
		return 0, nil
	}
}

// SetRecvCallback implements lot.NetworkInterface.
func (l *Loopback) SetRecvCallback(_ lot.Connection, cb func([]byte)) {
	l.mu.Lock()
	l.cb = cb
	l.mu.Unlock()
}

// Close stops the delivery goroutine. Safe to call once.
func (l *Loopback) Close() {
	close(l.done)
}
