package device

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrInjected is wrapped by failures scheduled with Dummy.FailNext.
var ErrInjected = errors.New("injected fault")

// Dummy emulates a tuner without talking to hardware. Reads return random
// bytes; async reads are paced to roughly match the sample rate.
// All methods are safe for concurrent use.
type Dummy struct {
	mu   sync.Mutex
	opts dummyOptions
	rng  *rand.Rand

	opened     bool
	index      int
	centerFreq float64
	sampleRate float64
	bandwidth  int
	gain       int // tenths of a dB
	agc        bool
	freqCorr   int
	direct     DirectSampling
	rtlAGC     bool
	biasTee    bool
	dithering  bool

	async  *asyncRun
	faults map[string]*fault
}

var (
	_ Device        = (*Dummy)(nil)
	_ LocalControls = (*Dummy)(nil)
	_ SerialLookup  = (*Dummy)(nil)
)

type asyncRun struct {
	stop chan struct{}
	once sync.Once
}

func (r *asyncRun) cancel() { r.once.Do(func() { close(r.stop) }) }

type fault struct {
	remaining int
	transient bool
}

// NewDummy returns a closed dummy device.
func NewDummy(opt ...DummyOption) *Dummy {
	o := buildDummyOptions(opt)
	return &Dummy{
		opts:   o,
		rng:    rand.New(rand.NewPCG(o.seed, o.seed^0x5dee)),
		faults: make(map[string]*fault),
	}
}

// FailNext makes the next times calls of op fail with a DeviceError.
// op is the wire name of the operation, e.g. "read_bytes" or "set_gain".
func (d *Dummy) FailNext(op string, times int, transient bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if times <= 0 {
		delete(d.faults, op)
		return
	}
	d.faults[op] = &fault{remaining: times, transient: transient}
}

// Index returns the index the device was opened with.
func (d *Dummy) Index() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index
}

// IsOpen reports whether Open has been called without a matching Close.
func (d *Dummy) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Open resets the device to its defaults. Opening an open device is allowed.
func (d *Dummy) Open(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("open"); err != nil {
		return err
	}
	if index < 0 || index >= len(d.opts.serials) {
		return opError("open", errors.Wrapf(ErrNoDevice, "index %d", index))
	}
	d.opened = true
	d.index = index
	d.centerFreq = DefaultCenterFreq
	d.sampleRate = DefaultSampleRate
	d.bandwidth = 0
	d.gain = 0
	d.agc = true
	d.freqCorr = 0
	d.direct = DirectSamplingOff
	d.rtlAGC = false
	d.biasTee = false
	d.dithering = true
	return nil
}

// IndexBySerial returns the index of the first device with the given serial.
func (d *Dummy) IndexBySerial(serial string) (int, error) {
	for i, s := range d.opts.serials {
		if s == serial {
			return i, nil
		}
	}
	return 0, opError("index_by_serial", errors.Wrapf(ErrNoDevice, "serial %q", serial))
}

// Serials returns the serial numbers of the emulated devices by index.
func (d *Dummy) Serials() []string {
	return append([]string(nil), d.opts.serials...)
}

func (d *Dummy) SetAGCMode(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_agc_mode"); err != nil {
		return err
	}
	d.rtlAGC = enabled
	return nil
}

func (d *Dummy) SetBiasTee(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_bias_tee"); err != nil {
		return err
	}
	d.biasTee = enabled
	return nil
}

func (d *Dummy) SetDithering(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_dithering"); err != nil {
		return err
	}
	d.dithering = enabled
	return nil
}

// LocalState reports the RTL2832 AGC, bias tee and PLL dithering settings.
func (d *Dummy) LocalState() (agcMode, biasTee, dithering bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rtlAGC, d.biasTee, d.dithering
}

// Close cancels any running async read. Closing a closed device is a no-op.
func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	d.opened = false
	if d.async != nil {
		d.async.cancel()
	}
	return nil
}

func (d *Dummy) CenterFreq() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_center_freq"); err != nil {
		return 0, err
	}
	return d.centerFreq, nil
}

func (d *Dummy) SetCenterFreq(hz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_center_freq"); err != nil {
		return err
	}
	if hz <= 0 {
		return opError("set_center_freq", errors.Errorf("could not set center_freq to %g Hz", hz))
	}
	d.centerFreq = hz
	return nil
}

func (d *Dummy) SampleRate() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_sample_rate"); err != nil {
		return 0, err
	}
	return d.sampleRate, nil
}

func (d *Dummy) SetSampleRate(hz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_sample_rate"); err != nil {
		return err
	}
	if hz <= 0 {
		return opError("set_sample_rate", errors.Errorf("could not set sample_rate to %g Hz", hz))
	}
	d.sampleRate = hz
	return nil
}

func (d *Dummy) Bandwidth() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_bandwidth"); err != nil {
		return 0, err
	}
	return d.bandwidth, nil
}

// SetBandwidth sets the tuner bandwidth. 0 selects automatic bandwidth.
func (d *Dummy) SetBandwidth(hz int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_bandwidth"); err != nil {
		return err
	}
	if hz < 0 {
		return opError("set_bandwidth", errors.Errorf("could not set tuner bandwidth to %d Hz", hz))
	}
	d.bandwidth = hz
	return nil
}

func (d *Dummy) Gain() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_gain"); err != nil {
		return 0, err
	}
	return float64(d.gain) / 10, nil
}

// SetGain enables AGC or selects the supported gain nearest to g.DB.
func (d *Dummy) SetGain(g Gain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_gain"); err != nil {
		return err
	}
	if g.Auto {
		d.agc = true
		return nil
	}
	if math.IsNaN(g.DB) || math.IsInf(g.DB, 0) {
		return opError("set_gain", errors.Errorf("could not set gain to %v", g.DB))
	}
	d.agc = false
	d.gain = nearestGain(d.opts.gains, g.DB)
	return nil
}

// AGC reports whether automatic gain control is enabled.
func (d *Dummy) AGC() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.agc
}

func nearestGain(gains []int, db float64) int {
	best := gains[0]
	for _, g := range gains[1:] {
		if math.Abs(10*db-float64(g)) < math.Abs(10*db-float64(best)) {
			best = g
		}
	}
	return best
}

func (d *Dummy) FreqCorrection() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_freq_correction"); err != nil {
		return 0, err
	}
	return d.freqCorr, nil
}

func (d *Dummy) SetFreqCorrection(ppm int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_freq_correction"); err != nil {
		return err
	}
	d.freqCorr = ppm
	return nil
}

// Gains returns the supported gains in tenths of a dB, ascending.
func (d *Dummy) Gains() ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_gains"); err != nil {
		return nil, err
	}
	return append([]int(nil), d.opts.gains...), nil
}

func (d *Dummy) TunerType() (Tuner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("get_tuner_type"); err != nil {
		return TunerUnknown, err
	}
	return d.opts.tuner, nil
}

func (d *Dummy) SetDirectSampling(mode DirectSampling) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("set_direct_sampling"); err != nil {
		return err
	}
	if !mode.Valid() {
		return opError("set_direct_sampling", errors.Errorf("invalid direct sampling mode %d", int(mode)))
	}
	d.direct = mode
	return nil
}

// DirectSamplingMode returns the mode last set.
func (d *Dummy) DirectSamplingMode() DirectSampling {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.direct
}

// ReadBytes returns n random bytes after the configured read latency.
func (d *Dummy) ReadBytes(n int) ([]byte, error) {
	if d.opts.readLatency > 0 {
		time.Sleep(d.opts.readLatency)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked("read_bytes", n)
}

// ReadSamples reads 2n bytes and converts them to n complex samples.
func (d *Dummy) ReadSamples(n int) ([]complex128, error) {
	if d.opts.readLatency > 0 {
		time.Sleep(d.opts.readLatency)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.readLocked("read_samples", 2*n)
	if err != nil {
		return nil, err
	}
	return PackedBytesToIQ(buf), nil
}

func (d *Dummy) readLocked(op string, n int) ([]byte, error) {
	if err := d.check(op); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, opError(op, errors.Errorf("invalid read size %d", n))
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(d.rng.UintN(256))
	}
	return buf, nil
}

// ReadBytesAsync calls cb with buffers of n bytes until CancelReadAsync or
// Close is called, or a read fails. It returns nil after a cancel.
// Only one async read may run per device.
func (d *Dummy) ReadBytesAsync(cb func([]byte), n int) error {
	d.mu.Lock()
	if err := d.check("read_bytes_async"); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.async != nil {
		d.mu.Unlock()
		return opError("read_bytes_async", ErrBusy)
	}
	run := &asyncRun{stop: make(chan struct{})}
	d.async = run
	pace := d.opts.pacing
	if pace == 0 {
		pace = time.Duration(float64(n) / 2 / d.sampleRate * float64(time.Second))
	}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.async == run {
			d.async = nil
		}
		d.mu.Unlock()
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-run.stop:
			return nil
		case <-timer.C:
		}

		buf, err := d.ReadBytes(n)
		if err != nil {
			return err
		}
		select {
		case <-run.stop:
			return nil
		default:
		}
		cb(buf)
		timer.Reset(pace)
	}
}

// CancelReadAsync stops a running ReadBytesAsync. It is a no-op otherwise.
func (d *Dummy) CancelReadAsync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.async != nil {
		d.async.cancel()
	}
	return nil
}

// check returns a scheduled fault for op, or ErrNotOpen on a closed device.
// d.mu must be held.
func (d *Dummy) check(op string) error {
	if err := d.injected(op); err != nil {
		return err
	}
	if !d.opened {
		return opError(op, ErrNotOpen)
	}
	return nil
}

func (d *Dummy) injected(op string) error {
	f, ok := d.faults[op]
	if !ok {
		return nil
	}
	f.remaining--
	if f.remaining <= 0 {
		delete(d.faults, op)
	}
	return &DeviceError{Op: op, Err: ErrInjected, Transient: f.transient}
}
