package lot

import (
	"github.com/go-logr/logr"

	"github.com/lot-proto/lot/internal/timer"
	"github.com/lot-proto/lot/internal/xlog"
)

// sendSession is one in-flight outgoing transfer (spec.md section 3). It
// holds its own id, not a pointer to its owning Context; the dispatcher
// (Context) performs all lookups and drives the state machine by passing
// the session in, following the arena-of-small-ids redesign note in
// spec.md section 9.
type sendSession struct {
	id    SessionID
	state State

	object    []byte // borrowed from the caller; never copied, never mutated
	objectLen int
	offset    int // bytes acknowledged through the previous window

	windowSize int
	blockSize  int
	color      WindowColor

	retriesLeft int
	hasTimer    bool
	timerTok    timer.Token

	log logr.Logger
}

func newSendSession(id SessionID, object []byte, cfg *Config) *sendSession {
	return &sendSession{
		id:          id,
		state:       StateInit,
		object:      object,
		objectLen:   len(object),
		offset:      0,
		windowSize:  cfg.WindowSize,
		blockSize:   cfg.blockSize,
		color:       Even,
		retriesLeft: cfg.MaxRetries,
		log:         xlog.WithSession(cfg.logger, "send", uint16(id)),
	}
}

// windowBlockCount returns the number of blocks the window starting at
// offset carries, and whether that window reaches the end of the object.
func windowBlockCount(offset, objectLen, windowSize, blockSize int) (n int, includesLast bool) {
	remaining := objectLen - offset
	if remaining <= 0 {
		// Empty object or an already-fully-acked offset: a single
		// zero-length LAST_BLOCK frame closes the transfer.
		if offset == 0 && objectLen == 0 {
			return 1, true
		}
		return 0, true
	}
	n = (remaining + blockSize - 1) / blockSize
	includesLast = true
	if n > windowSize {
		n = windowSize
		includesLast = false
	}
	return n, includesLast
}

// blockRange returns the byte range of block k within the current window,
// clipped to objectLen.
func blockRange(offset, k, blockSize, objectLen int) (start, end int) {
	start = offset + k*blockSize
	end = start + blockSize
	if end > objectLen {
		end = objectLen
	}
	if start > objectLen {
		start = objectLen
	}
	return start, end
}
