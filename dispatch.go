package lot

import (
	"context"

	"github.com/lot-proto/lot/internal/bitmap"
	"github.com/lot-proto/lot/internal/codec"
)

// handleInbound is the dispatcher's single entry-point for inbound packets
// (spec.md section 4.5). It is installed as the NetworkInterface's receive
// callback and runs on whatever goroutine the link delivers packets on;
// it acquires c.mu for the duration of handling one packet, serializing it
// with every other session-table mutation.
func (c *Context) handleInbound(b []byte) {
	id, err := codec.PeekSessionID(b)
	if err != nil {
		// Fewer than 3 bytes: nothing to reply to, just drop.
		return
	}
	sid := SessionID(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if ss := c.lookupSend(sid); ss != nil {
		if ss.state == StateOpen {
			c.handleAckBytes(ss, b)
		} else {
			c.replyWireError(sid, codec.SessionAborted, 0)
		}
		return
	}

	if rs := c.lookupRecv(sid); rs != nil {
		if rs.state == StateOpen || rs.state == StateResumable {
			c.handleDataBytes(rs, b)
		} else {
			c.replyWireError(sid, codec.SessionAborted, 0)
		}
		return
	}

	// Unknown id: try to open a new receive session.
	slot := c.findFreeRecvSlot()
	if slot < 0 {
		c.replyWireError(sid, codec.SessionNotFound, 0)
		return
	}
	rs := newRecvSession(sid, &c.cfg)
	rs.state = StateOpen
	c.recvTable[slot] = rs
	c.cfg.metrics.SessionsOpened.WithLabelValues("recv").Inc()
	c.handleDataBytes(rs, b)
}

// replyWireError sends a bare ACK carrying a peer-observable error code
// and no bitmap, per spec.md section 4.5.
func (c *Context) replyWireError(id SessionID, code codec.WireError, _ int) {
	ack := &codec.AckFrame{SessionID: uint16(id), Error: code}
	_, _ = c.net.Send(context.Background(), c.conn, codec.EncodeAck(ack))
}

// --- send-side: ACK-driven progression (spec.md section 4.3) ---

func (c *Context) handleAckBytes(ss *sendSession, b []byte) {
	ack, err := codec.DecodeAck(b)
	if err != nil {
		// Malformed frame addressed to an open send session: treat as a
		// protocol violation against this session.
		c.failSend(ss, &WireFailure{Code: codec.InvalidPacket})
		return
	}
	c.handleAck(ss, ack)
}

func (c *Context) handleAck(ss *sendSession, ack *codec.AckFrame) {
	// 1. Stop the retransmit timer.
	if ss.hasTimer {
		c.cfg.scheduler.Cancel(ss.timerTok)
		ss.hasTimer = false
	}
	// 2. Reset retries.
	ss.retriesLeft = c.cfg.MaxRetries

	switch {
	case ack.Error == codec.Success && len(ack.Bitmap) > 0:
		bm := bitmap.New(ss.windowSize)
		if !bm.Unpack(ack.Bitmap) {
			c.failSend(ss, &WireFailure{Code: codec.InvalidPacket})
			return
		}
		n, _ := windowBlockCount(ss.offset, ss.objectLen, ss.windowSize, ss.blockSize)
		var missing []int
		for k := 0; k < n; k++ {
			if bm.Test(k) {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			_ = c.retransmitMissing(context.Background(), ss, missing)
		} else {
			c.advanceOrComplete(ss)
		}

	case ack.Error == codec.Success:
		c.advanceOrComplete(ss)

	case ack.Error == codec.WrongWindow:
		// The peer already moved past this window; our ACK for it was
		// lost. Advance as if we'd received a full ACK for it.
		c.advanceWindow(ss)

	default:
		c.failSend(ss, &WireFailure{Code: ack.Error})
		return
	}

	if ss.state == StateOpen {
		c.armRetransmitTimer(ss)
	}
}

// advanceOrComplete implements the full-ACK branch of step 3: complete the
// transfer if the current window included the last block, else advance.
func (c *Context) advanceOrComplete(ss *sendSession) {
	_, includesLast := windowBlockCount(ss.offset, ss.objectLen, ss.windowSize, ss.blockSize)
	if includesLast {
		ss.offset = ss.objectLen
		c.cfg.metrics.WindowsCompleted.WithLabelValues("send").Inc()
		_ = c.closeLocked(Send, ss.id, nil)
		return
	}
	c.advanceWindow(ss)
}

// advanceWindow moves offset forward by one full window, toggles color,
// and emits the next window.
func (c *Context) advanceWindow(ss *sendSession) {
	ss.offset += ss.windowSize * ss.blockSize
	ss.color = ss.color.Toggle()
	c.cfg.metrics.WindowsCompleted.WithLabelValues("send").Inc()
	if err := c.transmitWindow(context.Background(), ss); err != nil {
		// A failed network send here is only logged; the session is not
		// failed, and the retransmit timer that handleAck arms afterwards
		// re-emits the window.
		ss.log.V(1).Info("advanceWindow: transmit failed, relying on retransmit timer", "error", err)
	}
}

// failSend marks ss Closed and reports err via on_complete.
func (c *Context) failSend(ss *sendSession, err error) {
	_ = c.closeLocked(Send, ss.id, err)
}

// --- receive-side: block ingest (spec.md section 4.4) ---

func (c *Context) handleDataBytes(rs *recvSession, b []byte) {
	df, err := codec.DecodeData(b)
	if err != nil {
		c.replyWireError(rs.id, codec.InvalidPacket, 0)
		_ = c.closeLocked(Recv, rs.id, &WireFailure{Code: codec.InvalidPacket})
		return
	}
	c.ingestBlock(rs, df)
}

func (c *Context) ingestBlock(rs *recvSession, df *codec.DataFrame) {
	// 1. Window-color mismatch: peer is replaying the previous window.
	if df.OddWindow() != (rs.color == Odd) {
		rs.log.V(1).Info("wrong window color, replying WrongWindow", "blockNum", df.BlockNum)
		c.replyWireError(rs.id, codec.WrongWindow, 0)
		return
	}

	// 2. Out-of-range block number: protocol violation, non-resumable close.
	blockNum := int(df.BlockNum)
	if blockNum >= rs.windowSize {
		rs.log.Info("out-of-range block number, closing", "blockNum", blockNum, "windowSize", rs.windowSize)
		c.replyWireError(rs.id, codec.InvalidPacket, 0)
		_ = c.closeLocked(Recv, rs.id, &WireFailure{Code: codec.InvalidPacket})
		return
	}

	// 3. Duplicate within the current window: silently drop.
	if !rs.bitmap.Test(blockNum) {
		rs.log.V(1).Info("dropping duplicate block", "blockNum", blockNum)
		c.cfg.metrics.DuplicateBlocks.Inc()
		return
	}

	// 4. Accept the block.
	firstOfWindow := rs.blocksReceived == 0
	rs.bitmap.Clear(blockNum)
	start := blockNum * rs.blockSize
	n := copy(rs.buffer[start:], df.Data)
	if start+n > rs.bufferLen {
		rs.bufferLen = start + n
	}
	rs.blocksReceived++
	c.cfg.metrics.BlocksReceived.Inc()

	// 5. Last-block flag narrows the expected window size.
	if df.LastBlock() {
		rs.windowBlocksExpected = blockNum + 1
		rs.lastWindow = true
	}

	// 6. Arm the delayed-ACK timer on the first block of the window.
	if firstOfWindow {
		c.armAckTimer(rs)
	}

	// 7. Window complete: deliver, ACK, advance.
	if rs.blocksReceived == rs.windowBlocksExpected {
		if rs.hasAckTimer {
			c.cfg.scheduler.Cancel(rs.ackTimerTok)
			rs.hasAckTimer = false
		}

		payload := append([]byte(nil), rs.buffer[:rs.bufferLen]...)
		more := !rs.lastWindow
		c.cfg.onReceive(rs.id, payload, more)

		rs.offset += rs.bufferLen
		lastWindow := rs.lastWindow
		rs.resetWindow(&c.cfg)
		c.cfg.metrics.WindowsCompleted.WithLabelValues("recv").Inc()

		ack := &codec.AckFrame{SessionID: uint16(rs.id), Error: codec.Success}
		_, _ = c.net.Send(context.Background(), c.conn, codec.EncodeAck(ack))

		if lastWindow {
			_ = c.closeLocked(Recv, rs.id, nil)
		}
	}
}
