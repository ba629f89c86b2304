package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotOpen is wrapped by the DeviceError returned when a closed handle is used.
var ErrNotOpen = errors.New("device not open")

// ErrNoDevice is wrapped when no device matches an index or serial number.
var ErrNoDevice = errors.New("no such device")

// ErrBusy is wrapped by the DeviceError returned when an async read is
// started while another is running on the same handle.
var ErrBusy = errors.New("async read already running")

// DeviceError reports a failure inside the device layer, such as a USB
// transfer error. Transient errors may succeed if the call is repeated.
type DeviceError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a DeviceError marked transient.
func IsTransient(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Transient
}

func opError(op string, err error) error {
	return &DeviceError{Op: op, Err: err}
}
