package client

import (
	"fmt"

	"github.com/pkg/errors"

	"sdr-rpc/device"
	"sdr-rpc/message"
	"sdr-rpc/protocol"
	"sdr-rpc/registry"
)

// ErrUnsupportedOperation is returned for operations that cannot run across
// the network, such as callback-driven async reads.
var ErrUnsupportedOperation = errors.New("operation not supported by remote device")

// ErrRateLimited matches calls the server refused for exceeding its rate limit.
var ErrRateLimited = errors.New("rate limited")

// RemoteCallError is a failure reported by the server, as opposed to a
// failure to reach it. errors.Is and errors.As map it back to the error the
// server saw: registry.ErrPermissionDenied, registry.ErrInvalidArgument,
// *device.DeviceError, *protocol.ProtocolError or protocol.ErrTimeout.
type RemoteCallError struct {
	Name      string
	Code      message.Code
	Message   string
	Transient bool
}

func newRemoteCallError(name string, resp *message.Message) *RemoteCallError {
	code := resp.Code
	if code == "" {
		code = message.CodeInternal
	}
	return &RemoteCallError{Name: name, Code: code, Message: resp.Error, Transient: resp.Transient}
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote %s: %s: %s", e.Name, e.Code, e.Message)
}

func (e *RemoteCallError) Is(target error) bool {
	switch target {
	case registry.ErrPermissionDenied:
		return e.Code == message.CodePermissionDenied
	case registry.ErrInvalidArgument:
		return e.Code == message.CodeInvalidArgument
	case protocol.ErrTimeout:
		return e.Code == message.CodeTimeout
	case ErrRateLimited:
		return e.Code == message.CodeRateLimited
	}
	return false
}

func (e *RemoteCallError) As(target any) bool {
	switch t := target.(type) {
	case **device.DeviceError:
		if e.Code != message.CodeDeviceError {
			return false
		}
		*t = &device.DeviceError{Op: e.Name, Err: errors.New(e.Message), Transient: e.Transient}
		return true
	case **protocol.ProtocolError:
		if e.Code != message.CodeProtocolError {
			return false
		}
		*t = &protocol.ProtocolError{Reason: e.Message}
		return true
	}
	return false
}
