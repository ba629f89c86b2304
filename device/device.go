// Package device defines the tuner capability set the RPC layer drives and a
// dummy implementation that needs no hardware.
package device

import (
	"fmt"
	"strings"
)

// Defaults applied when a device is opened.
const (
	DefaultCenterFreq = 80e6
	DefaultSampleRate = 1.024e6
	DefaultReadSize   = 1024
)

// Device is the capability set of one SDR tuner handle.
//
// Gains are reported in tenths of a dB, as the driver does. Gain and
// SetGain work in dB. ReadBytesAsync blocks, calling cb once per buffer,
// until CancelReadAsync is called or the device fails.
type Device interface {
	Open(index int) error
	Close() error

	CenterFreq() (float64, error)
	SetCenterFreq(hz float64) error
	SampleRate() (float64, error)
	SetSampleRate(hz float64) error
	Bandwidth() (int, error)
	SetBandwidth(hz int) error
	Gain() (float64, error)
	SetGain(g Gain) error
	FreqCorrection() (int, error)
	SetFreqCorrection(ppm int) error
	Gains() ([]int, error)
	TunerType() (Tuner, error)
	SetDirectSampling(mode DirectSampling) error

	ReadBytes(n int) ([]byte, error)
	ReadSamples(n int) ([]complex128, error)
	ReadBytesAsync(cb func([]byte), n int) error
	CancelReadAsync() error
}

// LocalControls are settings a locally attached tuner offers that are not
// exposed over the network.
type LocalControls interface {
	// SetAGCMode toggles the RTL2832 digital AGC, independent of tuner gain mode.
	SetAGCMode(enabled bool) error
	SetBiasTee(enabled bool) error
	SetDithering(enabled bool) error
}

// SerialLookup finds the index of an attached device by its USB serial number.
type SerialLookup interface {
	IndexBySerial(serial string) (int, error)
}

// Gain is a requested tuner gain: either automatic (AGC) or a value in dB
// that the device rounds to its nearest supported step.
type Gain struct {
	Auto bool
	DB   float64
}

// AutoGain enables the tuner's automatic gain control.
var AutoGain = Gain{Auto: true}

// GainDB requests a manual gain of db dB.
func GainDB(db float64) Gain { return Gain{DB: db} }

func (g Gain) String() string {
	if g.Auto {
		return "auto"
	}
	return fmt.Sprintf("%gdB", g.DB)
}

// Tuner identifies the tuner chip, numbered as the driver numbers it.
type Tuner int

const (
	TunerUnknown Tuner = iota
	TunerE4000
	TunerFC0012
	TunerFC0013
	TunerFC2580
	TunerR820T
	TunerR828D
)

var tunerNames = [...]string{"UNKNOWN", "E4000", "FC0012", "FC0013", "FC2580", "R820T", "R828D"}

func (t Tuner) String() string {
	if t < 0 || int(t) >= len(tunerNames) {
		return fmt.Sprintf("Tuner(%d)", int(t))
	}
	return tunerNames[t]
}

// DirectSampling selects which ADC branch bypasses the tuner.
type DirectSampling int

const (
	DirectSamplingOff DirectSampling = iota
	DirectSamplingI
	DirectSamplingQ
)

// ParseDirectSampling accepts "i", "q" or "off" in any case.
func ParseDirectSampling(s string) (DirectSampling, error) {
	switch strings.ToLower(s) {
	case "off":
		return DirectSamplingOff, nil
	case "i":
		return DirectSamplingI, nil
	case "q":
		return DirectSamplingQ, nil
	}
	return 0, fmt.Errorf("unknown direct sampling mode %q", s)
}

// Valid reports whether m is one of the three modes the driver accepts.
func (m DirectSampling) Valid() bool {
	return m >= DirectSamplingOff && m <= DirectSamplingQ
}

func (m DirectSampling) String() string {
	switch m {
	case DirectSamplingOff:
		return "off"
	case DirectSamplingI:
		return "i"
	case DirectSamplingQ:
		return "q"
	}
	return fmt.Sprintf("DirectSampling(%d)", int(m))
}
