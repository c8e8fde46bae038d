package lot

import (
	"github.com/go-logr/logr"

	"github.com/lot-proto/lot/internal/bitmap"
	"github.com/lot-proto/lot/internal/timer"
	"github.com/lot-proto/lot/internal/xlog"
)

// recvSession is one incoming transfer (spec.md section 3).
type recvSession struct {
	id    SessionID
	state State

	buffer    []byte // capacity = windowSize * blockSize
	bufferLen int

	offset int // bytes delivered to the application across completed windows

	windowSize           int
	blockSize            int
	blocksReceived       int
	windowBlocksExpected int
	lastWindow           bool
	bitmap               *bitmap.Map
	color                WindowColor
	hasAckTimer          bool
	ackTimerTok          timer.Token

	log logr.Logger
}

func newRecvSession(id SessionID, cfg *Config) *recvSession {
	return &recvSession{
		id:                   id,
		state:                StateInit,
		buffer:               make([]byte, cfg.WindowSize*cfg.blockSize),
		windowSize:           cfg.WindowSize,
		blockSize:            cfg.blockSize,
		windowBlocksExpected: cfg.WindowSize,
		bitmap:               bitmap.New(cfg.WindowSize),
		color:                Even,
		log:                  xlog.WithSession(cfg.logger, "recv", uint16(id)),
	}
}

// resetWindow clears all per-window state after a window has been fully
// delivered, per spec.md section 4.4 step 7.
func (rs *recvSession) resetWindow(cfg *Config) {
	rs.bufferLen = 0
	rs.blocksReceived = 0
	rs.windowBlocksExpected = cfg.WindowSize
	rs.lastWindow = false
	rs.bitmap.ResetAllMissing()
	rs.color = rs.color.Toggle()
}
