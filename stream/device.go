package stream

import (
	"sdr-rpc/device"
)

// DefaultBufferSize is the number of bytes, or samples, per streamed buffer.
const DefaultBufferSize = 128 * 1024

// Bytes streams raw buffers of n bytes from dev's async read.
func Bytes(dev device.Device, n int, opt ...Option) *Bridge[[]byte] {
	if n <= 0 {
		n = DefaultBufferSize
	}
	return New[[]byte](func(emit func([]byte)) error {
		return dev.ReadBytesAsync(emit, n)
	}, dev.CancelReadAsync, opt...)
}

// Samples streams buffers of n complex samples, converted from 2n bytes.
func Samples(dev device.Device, n int, opt ...Option) *Bridge[[]complex128] {
	if n <= 0 {
		n = DefaultBufferSize
	}
	return New[[]complex128](func(emit func([]complex128)) error {
		return dev.ReadBytesAsync(func(b []byte) {
			emit(device.PackedBytesToIQ(b))
		}, 2*n)
	}, dev.CancelReadAsync, opt...)
}
