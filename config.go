package lot

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/lot-proto/lot/internal/bitmap"
	"github.com/lot-proto/lot/internal/metrics"
	"github.com/lot-proto/lot/internal/timer"
	"github.com/lot-proto/lot/internal/xlog"
)

// headerLen is the DATA frame header size (spec.md section 4.1): 5 bytes.
const headerLen = 5

// defaults mirror typical BLE-GATT-notification sizes: a 23-byte ATT MTU
// leaves 18 bytes of payload per block once the 5-byte header is removed.
const (
	defaultMTU        = 23
	defaultWindowSize = 4
	defaultTimeout    = 100 * time.Millisecond
	defaultMaxRetries = 3
	defaultSendSlots  = 4
	defaultRecvSlots  = 4
)

// Config holds the immutable, per-context transfer parameters negotiated
// at init time (spec.md section 3, "Transfer parameters").
type Config struct {
	MTU         int
	WindowSize  int
	Timeout     time.Duration
	MaxRetries  int
	NumSend     int
	NumRecv     int
	blockSize   int
	logger      logr.Logger
	metrics     *metrics.Registry
	scheduler   timer.Scheduler
	onReceive   func(id SessionID, data []byte, more bool)
	onComplete  func(dir Direction, id SessionID, err error)
}

// Option configures a Context at construction time, in the teacher's
// functional-option idiom (see SenderOptions/ReceiverOptions).
type Option func(*Config)

// WithMTU sets the link payload bound in bytes. Must be >= header_len + 1.
func WithMTU(mtu int) Option { return func(c *Config) { c.MTU = mtu } }

// WithWindowSize sets the number of blocks per window. Must be in [1, 32]
// so the missing-block bitmap fits in 4 bytes.
func WithWindowSize(n int) Option { return func(c *Config) { c.WindowSize = n } }

// WithTimeout sets the receiver's ACK delay; the sender's retransmit
// period is 2x this value (spec.md section 3).
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

// WithMaxRetries sets the number of retransmissions attempted before a
// send session becomes Resumable.
func WithMaxRetries(n int) Option { return func(c *Config) { c.MaxRetries = n } }

// WithSendSlots sets the fixed capacity of the send session table.
func WithSendSlots(n int) Option { return func(c *Config) { c.NumSend = n } }

// WithRecvSlots sets the fixed capacity of the receive session table.
func WithRecvSlots(n int) Option { return func(c *Config) { c.NumRecv = n } }

// WithLogger installs a logr.Logger; defaults to xlog.NewProduction().
func WithLogger(l logr.Logger) Option { return func(c *Config) { c.logger = l } }

// WithMetrics installs a metrics.Registry; defaults to a fresh, unregistered
// registry under the "lot" namespace.
func WithMetrics(r *metrics.Registry) Option { return func(c *Config) { c.metrics = r } }

// WithScheduler installs a timer.Scheduler; defaults to timer.NewWall().
func WithScheduler(s timer.Scheduler) Option { return func(c *Config) { c.scheduler = s } }

// WithOnReceive installs the callback invoked once per completed receive
// window; more=false signals end of object.
func WithOnReceive(fn func(id SessionID, data []byte, more bool)) Option {
	return func(c *Config) { c.onReceive = fn }
}

// WithOnComplete installs the callback invoked when any session
// terminates, successfully or not.
func WithOnComplete(fn func(dir Direction, id SessionID, err error)) Option {
	return func(c *Config) { c.onComplete = fn }
}

func defaultConfig() Config {
	return Config{
		MTU:        defaultMTU,
		WindowSize: defaultWindowSize,
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
		NumSend:    defaultSendSlots,
		NumRecv:    defaultRecvSlots,
	}
}

// validate checks the combination of options recognized by init (spec.md
// section 6, "Configuration options") and fills in derived fields and
// defaults for anything left unset.
func (c *Config) validate() error {
	if c.MTU < headerLen+1 {
		return errInvalidConfig("mtu must be at least header_len + 1")
	}
	if c.WindowSize < 1 || c.WindowSize > bitmap.MaxWindowSize {
		return errInvalidConfig("window_size must be in [1, 32]")
	}
	if c.Timeout <= 0 {
		return errInvalidConfig("timeout_ms must be positive")
	}
	if c.MaxRetries < 0 {
		return errInvalidConfig("max_retries must be nonnegative")
	}
	if c.NumSend < 1 || c.NumRecv < 1 {
		return errInvalidConfig("num_send and num_recv must be at least 1")
	}

	c.blockSize = c.MTU - headerLen

	if c.logger.IsZero() {
		c.logger = xlog.NewProduction()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewRegistry("lot")
	}
	if c.scheduler == nil {
		c.scheduler = timer.NewWall()
	}
	if c.onReceive == nil {
		c.onReceive = func(SessionID, []byte, bool) {}
	}
	if c.onComplete == nil {
		c.onComplete = func(Direction, SessionID, error) {}
	}
	return nil
}

// retransmitTimeout is the sender's retransmit period: 2x timeout_ms,
// per spec.md section 3.
func (c *Config) retransmitTimeout() time.Duration {
	return 2 * c.Timeout
}
