package transport

import (
	"context"
	"net"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	lot "github.com/lot-proto/lot"
)

// UDP binds one lot.Context to a single peer address over a net.PacketConn.
// It stands in for the BLE GATT characteristic the production link targets:
// one connection, one peer, packets delivered best-effort and out of order.
// Each binding is tagged with an xid for log correlation; the id never
// appears on the wire.
type UDP struct {
	pc    net.PacketConn
	raddr net.Addr
	id    xid.ID
	log   logr.Logger

	mu   chan struct{} // binary semaphore guarding cb; see SetRecvCallback
	cb   func([]byte)
	done chan struct{}
}

// NewUDP wraps pc, filtering inbound packets to those from raddr, and starts
// the background read loop that feeds the installed receive callback.
func NewUDP(pc net.PacketConn, raddr net.Addr, log logr.Logger) *UDP {
	u := &UDP{
		pc:    pc,
		raddr: raddr,
		id:    xid.New(),
		log:   log,
		mu:    make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	u.mu <- struct{}{}
	go u.readLoop()
	return u
}

// ID returns the correlation id used in this binding's log lines.
func (u *UDP) ID() xid.ID { return u.id }

func (u *UDP) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, addr, err := u.pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			u.log.Error(err, "udp read failed", "connID", u.id.String())
			return
		}
		if u.raddr != nil && addr.String() != u.raddr.String() {
			u.log.V(1).Info("dropping packet from unexpected peer", "connID", u.id.String(), "from", addr.String())
			continue
		}

		<-u.mu
		cb := u.cb
		u.mu <- struct{}{}

		if cb != nil {
			cb(append([]byte(nil), buf[:n]...))
		}
	}
}

// Send implements lot.NetworkInterface.
func (u *UDP) Send(_ context.Context, _ lot.Connection, b []byte) (int, error) {
	return u.pc.WriteTo(b, u.raddr)
}

// SetRecvCallback implements lot.NetworkInterface.
func (u *UDP) SetRecvCallback(_ lot.Connection, cb func(b []byte)) {
	<-u.mu
	u.cb = cb
	u.mu <- struct{}{}
}

// Close stops the read loop and closes the underlying socket.
func (u *UDP) Close() error {
	close(u.done)
	return u.pc.Close()
}
