// Package lot implements the Large Object Transfer (LOT) protocol engine:
// a stop-and-wait, window-based, ARQ-style reliable transport that
// fragments arbitrarily large byte payloads into MTU-sized blocks, pushes
// them across an unreliable, unordered, packet-oriented lower link, and
// reassembles them on the peer.
//
// The physical link (BLE GATT characteristic I/O, MQTT framing, JSON
// control-plane toggling, pairing/advertising) is out of scope; callers
// supply a NetworkInterface implementation. See transport/ for loopback
// and UDP bindings.
package lot

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"

	"github.com/lot-proto/lot/internal/codec"
	"github.com/lot-proto/lot/internal/metrics"
)

var (
	errClosed          = errors.New("lot: context destroyed")
	errUnknownSession  = errors.New("lot: unknown session id")
	errNotResumable    = errors.New("lot: session is not resumable")
	errNothingToResume = errors.New("lot: session has no remaining data to resume")
)

// Context is the container of session tables, negotiated parameters, and
// the network interface for one logical connection (spec.md section 6).
// It is safe for concurrent use: all session-table mutations are
// serialized under a single mutex held across the handling of one event,
// per the concurrency model in spec.md section 5.
type Context struct {
	mu sync.Mutex

	cfg  Config
	conn Connection
	net  NetworkInterface

	sendTable []*sendSession
	recvTable []*recvSession

	closed bool
}

// New constructs a Context bound to conn over ni, with parameters
// negotiated via opts (spec.md section 6, init(params, num_send, num_recv)).
// Caller misuse — invalid parameter combinations — is returned
// synchronously; no session is opened.
func New(conn Connection, ni NetworkInterface, opts ...Option) (*Context, error) {
	if ni == nil {
		return nil, errInvalidConfig("network interface must not be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Context{
		cfg:       cfg,
		conn:      conn,
		net:       ni,
		sendTable: make([]*sendSession, cfg.NumSend),
		recvTable: make([]*recvSession, cfg.NumRecv),
	}

	ni.SetRecvCallback(conn, c.handleInbound)

	return c, nil
}

// Logger returns the context's configured structured logger.
func (c *Context) Logger() logr.Logger { return c.cfg.logger }

// Metrics returns the context's Prometheus collector registry, for the
// embedding application to register against its own prometheus.Registerer.
func (c *Context) Metrics() *metrics.Registry { return c.cfg.metrics }

// findFreeSendSlot returns the index of a free send slot, or -1 if the
// table is full. Must be called with c.mu held.
func (c *Context) findFreeSendSlot() int {
	for i, s := range c.sendTable {
		if s == nil || s.state.free() {
			return i
		}
	}
	return -1
}

// findFreeRecvSlot returns the index of a free receive slot, or -1 if the
// table is full. Must be called with c.mu held.
func (c *Context) findFreeRecvSlot() int {
	for i, s := range c.recvTable {
		if s == nil || s.state.free() {
			return i
		}
	}
	return -1
}

// Send begins transmitting object over a newly allocated send session. It
// finds a free send slot, fails with MaxSessions if none, otherwise opens
// the session, transmits window 0, and arms the retransmit timer. The
// returned SessionID is valid only when err is nil, per the "callers
// should receive the id only on Success" note in spec.md section 9.
func (c *Context) Send(ctx context.Context, object []byte) (SessionID, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return 0, newLocalError(InternalError, errClosed)
	}

	slot := c.findFreeSendSlot()
	if slot < 0 {
		c.mu.Unlock()
		return 0, &WireFailure{Code: codec.MaxSessions}
	}

	id := SessionID(slot + 1)
	ss := newSendSession(id, object, &c.cfg)
	ss.state = StateOpen
	c.sendTable[slot] = ss
	c.cfg.metrics.SessionsOpened.WithLabelValues("send").Inc()

	err := c.transmitWindow(ctx, ss)
	if err != nil {
		// Window 0 never went out: free the slot and report nothing, so the
		// caller has no id to act on and no spurious timer or on_complete
		// ever fires for a session it never learned about.
		c.sendTable[slot] = nil
		c.mu.Unlock()
		return 0, err
	}
	c.armRetransmitTimer(ss)
	c.mu.Unlock()

	return id, nil
}

// Resume re-emits the current window of a Resumable send session with the
// same offset and color, and rearms the retransmit timer. It is only valid
// when the session is Resumable and offset < object_len.
func (c *Context) Resume(ctx context.Context, id SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.lookupSend(id)
	if ss == nil {
		return newLocalError(InvalidParam, errUnknownSession)
	}
	if ss.state != StateResumable {
		return newLocalError(InvalidParam, errNotResumable)
	}
	if ss.offset >= ss.objectLen {
		return newLocalError(InvalidParam, errNothingToResume)
	}

	ss.state = StateOpen
	ss.retriesLeft = c.cfg.MaxRetries
	err := c.transmitWindow(ctx, ss)
	c.armRetransmitTimer(ss)
	return err
}

// Close forces dir/id to Closed, stops its timer, and frees its slot. It
// is idempotent.
func (c *Context) Close(ctx context.Context, dir Direction, id SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked(dir, id, nil)
}

// closeLocked implements Close; must be called with c.mu held. completion,
// if non-nil, is the error reported to on_complete; nil means Success.
func (c *Context) closeLocked(dir Direction, id SessionID, completion error) error {
	switch dir {
	case Send:
		ss := c.lookupSend(id)
		if ss == nil || ss.state == StateClosed {
			return nil
		}
		if ss.hasTimer {
			c.cfg.scheduler.Cancel(ss.timerTok)
			ss.hasTimer = false
		}
		ss.state = StateClosed
		ss.log.Info("send session closed", "result", closeResult(completion))
		c.cfg.metrics.SessionsClosed.WithLabelValues("send", closeResult(completion)).Inc()
		c.cfg.onComplete(Send, id, completion)
	case Recv:
		rs := c.lookupRecv(id)
		if rs == nil || rs.state == StateClosed {
			return nil
		}
		if rs.hasAckTimer {
			c.cfg.scheduler.Cancel(rs.ackTimerTok)
			rs.hasAckTimer = false
		}
		rs.state = StateClosed
		rs.log.Info("receive session closed", "result", closeResult(completion))
		c.cfg.metrics.SessionsClosed.WithLabelValues("recv", closeResult(completion)).Inc()
		c.cfg.onComplete(Recv, id, completion)
	}
	return nil
}

func closeResult(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

// Destroy aborts all sessions and releases timers. After Destroy, the
// Context must not be used.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for i, ss := range c.sendTable {
		if ss != nil && ss.state == StateOpen && ss.hasTimer {
			c.cfg.scheduler.Cancel(ss.timerTok)
		}
		c.sendTable[i] = nil
	}
	for i, rs := range c.recvTable {
		if rs != nil && rs.hasAckTimer {
			c.cfg.scheduler.Cancel(rs.ackTimerTok)
		}
		c.recvTable[i] = nil
	}
	c.closed = true
}

func (c *Context) lookupSend(id SessionID) *sendSession {
	if id == 0 || int(id) > len(c.sendTable) {
		return nil
	}
	return c.sendTable[id-1]
}

func (c *Context) lookupRecv(id SessionID) *recvSession {
	for _, rs := range c.recvTable {
		if rs != nil && rs.id == id {
			return rs
		}
	}
	return nil
}
