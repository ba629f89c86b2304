package protocol

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrTimeout is wrapped by a TransportError when the peer did not answer in time.
var ErrTimeout = errors.New("timed out")

// TransportError reports that the socket failed us: a timeout, a reset, a
// short read during a bulk transfer or a refused dial. It is never retried here.
type TransportError struct {
	Op  string // "dial", "read", "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline expiring.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// ProtocolError reports that the peer sent something this side cannot accept:
// a malformed frame, an unexpected kind or a length mismatch.
type ProtocolError struct {
	Reason  string
	Err     error
	NAKSent bool // the peer has already been told with a NAK
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// PeerNotified reports whether err is a ProtocolError that was already
// answered with a NAK, so the caller must not send another.
func PeerNotified(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.NAKSent
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// asTransport converts a raw socket error into a TransportError, leaving
// protocol errors untouched.
func asTransport(op string, err error) error {
	if err == nil || IsProtocol(err) || IsTransport(err) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Op: op, Err: errors.Wrap(ErrTimeout, err.Error())}
	}
	return &TransportError{Op: op, Err: err}
}
