package lot

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lot-proto/lot/internal/codec"
)

// LocalErrorCode enumerates the local-only error tier (spec.md section 7):
// these never appear on the wire. They are returned synchronously from
// New/Send/Resume, and reported to on_complete as Expired.
type LocalErrorCode uint8

const (
	NoMemory LocalErrorCode = iota
	NetworkError
	Expired
	InvalidParam
	InternalError
)

func (c LocalErrorCode) String() string {
	switch c {
	case NoMemory:
		return "NoMemory"
	case NetworkError:
		return "NetworkError"
	case Expired:
		return "Expired"
	case InvalidParam:
		return "InvalidParam"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// LocalError is the error type for local-only failures: caller misuse and
// network errors are returned synchronously from New/Send/Resume, and
// retransmit-timer expiry is reported to on_complete.
type LocalError struct {
	Code LocalErrorCode
	Err  error // underlying cause, may be nil
}

func (e *LocalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lot: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("lot: %s", e.Code)
}

func (e *LocalError) Unwrap() error { return e.Err }

func newLocalError(code LocalErrorCode, cause error) *LocalError {
	return &LocalError{Code: code, Err: cause}
}

// WireFailure is the error type carrying a peer-observable wire error code.
// It is reported to on_complete when a session is terminated by an error
// code received in an ACK or by a protocol violation, and returned
// synchronously from Send as MaxSessions when no send slot is free
// (spec.md section 7, "protocol violations" and "exhaustion").
type WireFailure struct {
	Code codec.WireError
}

func (e *WireFailure) Error() string {
	return fmt.Sprintf("lot: peer reported %s", e.Code)
}

// errInvalidConfig wraps a configuration validation failure; always
// returned synchronously from New, never via a callback.
func errInvalidConfig(msg string) error {
	return newLocalError(InvalidParam, errors.New(msg))
}
