package lot

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lot-proto/lot/internal/codec"
)

var errPartialSend = errors.New("lot: network interface accepted fewer bytes than the frame length")

// transmitWindow emits the current window in full, starting at ss.offset
// (spec.md section 4.3, "Window transmission algorithm"). A partial send
// aborts the window and returns a local NetworkError; the session state is
// not changed here, and each caller decides how to handle the error.
func (c *Context) transmitWindow(ctx context.Context, ss *sendSession) error {
	n, includesLast := windowBlockCount(ss.offset, ss.objectLen, ss.windowSize, ss.blockSize)
	for k := 0; k < n; k++ {
		last := includesLast && k == n-1
		if err := c.sendBlock(ctx, ss, k, last); err != nil {
			return err
		}
		if last {
			break
		}
	}
	return nil
}

// retransmitMissing re-emits only the block indices listed in missing,
// preserving offset, color, and the LAST_BLOCK flag where applicable.
func (c *Context) retransmitMissing(ctx context.Context, ss *sendSession, missing []int) error {
	n, includesLast := windowBlockCount(ss.offset, ss.objectLen, ss.windowSize, ss.blockSize)
	for _, k := range missing {
		last := includesLast && k == n-1
		if err := c.sendBlock(ctx, ss, k, last); err != nil {
			return err
		}
	}
	c.cfg.metrics.BlocksRetransmitted.Add(float64(len(missing)))
	return nil
}

func (c *Context) sendBlock(ctx context.Context, ss *sendSession, k int, last bool) error {
	start, end := blockRange(ss.offset, k, ss.blockSize, ss.objectLen)
	flags := codec.MakeDataFlags(last, false, ss.color == Odd)
	frame := &codec.DataFrame{
		SessionID: uint16(ss.id),
		BlockNum:  uint16(k),
		Flags:     flags,
		Data:      ss.object[start:end],
	}
	b := codec.EncodeData(frame)
	n, err := c.net.Send(ctx, c.conn, b)
	if err != nil {
		return newLocalError(NetworkError, err)
	}
	if n < len(b) {
		return newLocalError(NetworkError, errPartialSend)
	}
	c.cfg.metrics.BlocksSent.Inc()
	return nil
}

// armRetransmitTimer (re)starts ss's retransmit timer at 2x timeout_ms.
func (c *Context) armRetransmitTimer(ss *sendSession) {
	if ss.hasTimer {
		c.cfg.scheduler.Cancel(ss.timerTok)
	}
	ss.hasTimer = true
	ss.timerTok = c.cfg.scheduler.Schedule(c.cfg.retransmitTimeout(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onRetransmitExpiry(ss)
	})
}

// onRetransmitExpiry implements spec.md section 4.3, "Retransmit timer
// expiry".
func (c *Context) onRetransmitExpiry(ss *sendSession) {
	if c.closed || ss.state != StateOpen {
		return
	}
	ss.hasTimer = false

	if ss.retriesLeft > 0 {
		ss.retriesLeft--
		ss.log.V(1).Info("retransmit timer expired, retrying window", "retriesLeft", ss.retriesLeft)
		_ = c.transmitWindow(context.Background(), ss)
		c.armRetransmitTimer(ss)
		return
	}

	ss.log.Info("retries exhausted, becoming resumable")
	ss.state = StateResumable
	c.cfg.metrics.RetriesExhausted.Inc()
	c.cfg.onComplete(Send, ss.id, newLocalError(Expired, nil))
}

// armAckTimer starts rs's one-shot delayed-ACK timer at timeout_ms.
func (c *Context) armAckTimer(rs *recvSession) {
	if rs.hasAckTimer {
		c.cfg.scheduler.Cancel(rs.ackTimerTok)
	}
	rs.hasAckTimer = true
	rs.ackTimerTok = c.cfg.scheduler.Schedule(c.cfg.Timeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onAckTimerExpiry(rs)
	})
}

// onAckTimerExpiry implements spec.md section 4.4, "ACK timer expiry": a
// fire-and-forget delayed ACK carrying the current missing-block bitmap.
func (c *Context) onAckTimerExpiry(rs *recvSession) {
	if c.closed || rs.state != StateOpen {
		return
	}
	if !rs.hasAckTimer || rs.blocksReceived == 0 {
		// Either Cancel lost the race against an already-fired timer, or
		// the window was reset (and a fresh one started) between this
		// callback being scheduled and now; either way there is nothing
		// current to ACK.
		rs.log.V(1).Info("ignoring stale ack timer fire")
		return
	}
	rs.hasAckTimer = false

	rs.log.V(1).Info("ack timer expired, sending delayed ack", "missing", rs.bitmap.Popcount())
	c.cfg.metrics.AckTimeouts.Inc()
	ack := &codec.AckFrame{
		SessionID: uint16(rs.id),
		Error:     codec.Success,
		Bitmap:    rs.bitmap.Pack(),
	}
	_, _ = c.net.Send(context.Background(), c.conn, codec.EncodeAck(ack))
}
