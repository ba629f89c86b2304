package client

import (
	"context"
	"sync/atomic"
	"time"

	"sdr-rpc/device"
)

// RemoteDevice drives a device on a server through the device.Device
// interface, so code written for a local tuner runs unchanged against a
// remote one. Settings go through properties, as a local caller would use them.
//
// Open and Close only track local state; the server owns the real handle.
type RemoteDevice struct {
	c       *Client
	timeout time.Duration
	opened  atomic.Bool
}

var _ device.Device = (*RemoteDevice)(nil)

// NewRemoteDevice wraps c. Each call is bounded by timeout; zero means only
// the connection read timeout applies.
func NewRemoteDevice(c *Client, timeout time.Duration) *RemoteDevice {
	d := &RemoteDevice{c: c, timeout: timeout}
	d.opened.Store(true)
	return d
}

func (d *RemoteDevice) ctx() (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d.timeout)
}

func (d *RemoteDevice) get(name string, reply any) error {
	ctx, cancel := d.ctx()
	defer cancel()
	return d.c.GetProperty(ctx, name, reply)
}

func (d *RemoteDevice) set(name string, value any) error {
	ctx, cancel := d.ctx()
	defer cancel()
	return d.c.SetProperty(ctx, name, value)
}

func (d *RemoteDevice) method(name string, arg any, reply any) error {
	ctx, cancel := d.ctx()
	defer cancel()
	return d.c.CallMethod(ctx, name, arg, reply)
}

func (d *RemoteDevice) Open(int) error {
	d.opened.Store(true)
	return nil
}

func (d *RemoteDevice) Close() error {
	d.opened.Store(false)
	return d.c.Close()
}

// IsOpen reports whether Close has been called.
func (d *RemoteDevice) IsOpen() bool { return d.opened.Load() }

func (d *RemoteDevice) CenterFreq() (hz float64, err error) {
	err = d.get("fc", &hz)
	return
}

func (d *RemoteDevice) SetCenterFreq(hz float64) error { return d.set("fc", hz) }

func (d *RemoteDevice) SampleRate() (hz float64, err error) {
	err = d.get("rs", &hz)
	return
}

func (d *RemoteDevice) SetSampleRate(hz float64) error { return d.set("rs", hz) }

func (d *RemoteDevice) Bandwidth() (hz int, err error) {
	err = d.get("bandwidth", &hz)
	return
}

func (d *RemoteDevice) SetBandwidth(hz int) error { return d.set("bandwidth", hz) }

func (d *RemoteDevice) Gain() (db float64, err error) {
	err = d.get("gain", &db)
	return
}

func (d *RemoteDevice) SetGain(g device.Gain) error {
	if g.Auto {
		return d.set("gain", "auto")
	}
	return d.set("gain", g.DB)
}

func (d *RemoteDevice) FreqCorrection() (ppm int, err error) {
	err = d.get("freq_correction", &ppm)
	return
}

func (d *RemoteDevice) SetFreqCorrection(ppm int) error { return d.set("freq_correction", ppm) }

func (d *RemoteDevice) Gains() (gains []int, err error) {
	err = d.method("get_gains", nil, &gains)
	return
}

func (d *RemoteDevice) TunerType() (device.Tuner, error) {
	var t int
	if err := d.method("get_tuner_type", nil, &t); err != nil {
		return device.TunerUnknown, err
	}
	return device.Tuner(t), nil
}

func (d *RemoteDevice) SetDirectSampling(mode device.DirectSampling) error {
	return d.method("set_direct_sampling", int(mode), nil)
}

func (d *RemoteDevice) ReadBytes(n int) ([]byte, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	return d.c.ReadBytes(ctx, n)
}

func (d *RemoteDevice) ReadSamples(n int) ([]complex128, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	return d.c.ReadSamples(ctx, n)
}

// ReadBytesAsync is not available over the network.
func (d *RemoteDevice) ReadBytesAsync(func([]byte), int) error { return ErrUnsupportedOperation }

// CancelReadAsync is not available over the network.
func (d *RemoteDevice) CancelReadAsync() error { return ErrUnsupportedOperation }
