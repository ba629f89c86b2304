package device

import "time"

// DefaultSerial is the serial number most tuners ship with.
const DefaultSerial = "00000001"

// DefaultGains are the dummy's supported gains in tenths of a dB.
var DefaultGains = []int{0, 25, 50, 75, 100, 125, 150, 175, 200, 225, 250, 275}

type dummyOptions struct {
	gains       []int
	tuner       Tuner
	readLatency time.Duration
	pacing      time.Duration
	seed        uint64
	serials     []string
}

// DummyOption configures a Dummy.
type DummyOption func(*dummyOptions)

// WithGains replaces the supported gain list. Values are tenths of a dB and
// must be ascending; an empty list is ignored.
func WithGains(gains []int) DummyOption {
	return func(o *dummyOptions) {
		if len(gains) > 0 {
			o.gains = append([]int(nil), gains...)
		}
	}
}

// WithTuner sets the reported tuner type.
func WithTuner(t Tuner) DummyOption {
	return func(o *dummyOptions) { o.tuner = t }
}

// WithReadLatency delays every synchronous read by d.
func WithReadLatency(d time.Duration) DummyOption {
	return func(o *dummyOptions) { o.readLatency = d }
}

// WithPacing fixes the delay between async buffers. By default it is derived
// from the buffer size and sample rate.
func WithPacing(d time.Duration) DummyOption {
	return func(o *dummyOptions) { o.pacing = d }
}

// WithSeed seeds the random byte source.
func WithSeed(seed uint64) DummyOption {
	return func(o *dummyOptions) { o.seed = seed }
}

// WithSerials sets the serial numbers of the emulated devices, one per index.
// By default a single device with serial "00000001" is attached.
func WithSerials(serials ...string) DummyOption {
	return func(o *dummyOptions) {
		if len(serials) > 0 {
			o.serials = append([]string(nil), serials...)
		}
	}
}

func buildDummyOptions(opt []DummyOption) dummyOptions {
	o := dummyOptions{
		gains:   DefaultGains,
		tuner:   TunerR820T,
		serials: []string{DefaultSerial},
		seed:    uint64(time.Now().UnixNano()),
	}
	for _, fn := range opt {
		fn(&o)
	}
	return o
}
