package registry

import (
	"sdr-rpc/device"
	"sdr-rpc/protocol"
)

// SDR returns the registry of tuner operations exposed to remote callers.
// A single read may not ask for more than protocol.DefaultMaxBulkSize bytes.
func SDR() *Registry {
	return SDRWithReadLimit(protocol.DefaultMaxBulkSize)
}

// SDRWithReadLimit is SDR with reads capped at maxBytes per call. Larger
// requests are refused as invalid arguments before the device is touched.
func SDRWithReadLimit(maxBytes int) *Registry {
	r, err := New(sdrMethods(maxBytes), sdrProperties())
	if err != nil {
		panic(err)
	}
	return r
}

func sdrProperties() []Property {
	return []Property{
		{Name: "center_freq", Getter: "get_center_freq", Setter: "set_center_freq"},
		{Name: "fc", Getter: "get_center_freq", Setter: "set_center_freq"},
		{Name: "sample_rate", Getter: "get_sample_rate", Setter: "set_sample_rate"},
		{Name: "rs", Getter: "get_sample_rate", Setter: "set_sample_rate"},
		{Name: "gain", Getter: "get_gain", Setter: "set_gain"},
		{Name: "freq_correction", Getter: "get_freq_correction", Setter: "set_freq_correction"},
		{Name: "bandwidth", Getter: "get_bandwidth", Setter: "set_bandwidth"},
	}
}

func sdrMethods(maxBytes int) []Method {
	return []Method{
		{Name: "get_center_freq", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			return dev.CenterFreq()
		}},
		{Name: "set_center_freq", Args: []ArgType{Float}, Invoke: func(dev device.Device, arg any) (any, error) {
			return nil, dev.SetCenterFreq(arg.(float64))
		}},
		{Name: "get_sample_rate", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			return dev.SampleRate()
		}},
		{Name: "set_sample_rate", Args: []ArgType{Float}, Invoke: func(dev device.Device, arg any) (any, error) {
			return nil, dev.SetSampleRate(arg.(float64))
		}},
		{Name: "get_bandwidth", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			return dev.Bandwidth()
		}},
		{Name: "set_bandwidth", Args: []ArgType{Count}, Invoke: func(dev device.Device, arg any) (any, error) {
			return nil, dev.SetBandwidth(arg.(int))
		}},
		{Name: "get_gain", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			return dev.Gain()
		}},
		{Name: "set_gain", Args: []ArgType{Float, AutoGain}, Invoke: func(dev device.Device, arg any) (any, error) {
			if g, ok := arg.(device.Gain); ok {
				return nil, dev.SetGain(g)
			}
			return nil, dev.SetGain(device.GainDB(arg.(float64)))
		}},
		{Name: "get_freq_correction", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			return dev.FreqCorrection()
		}},
		{Name: "set_freq_correction", Args: []ArgType{Int}, Invoke: func(dev device.Device, arg any) (any, error) {
			return nil, dev.SetFreqCorrection(arg.(int))
		}},
		{Name: "get_gains", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			return dev.Gains()
		}},
		{Name: "get_tuner_type", Result: ResultInline, Invoke: func(dev device.Device, _ any) (any, error) {
			t, err := dev.TunerType()
			return int(t), err
		}},
		{Name: "set_direct_sampling", Args: []ArgType{Int, SamplingMode}, Invoke: func(dev device.Device, arg any) (any, error) {
			if mode, ok := arg.(device.DirectSampling); ok {
				return nil, dev.SetDirectSampling(mode)
			}
			return nil, dev.SetDirectSampling(device.DirectSampling(arg.(int)))
		}},
		{Name: "read_bytes", Args: []ArgType{MaxCount(maxBytes), Default(device.DefaultReadSize)}, Result: ResultBulk, Invoke: func(dev device.Device, arg any) (any, error) {
			return dev.ReadBytes(arg.(int))
		}},
		// Samples travel as packed bytes; the caller converts them.
		{Name: "read_samples", Args: []ArgType{MaxCount(maxBytes / 2), Default(device.DefaultReadSize)}, Result: ResultBulk, Invoke: func(dev device.Device, arg any) (any, error) {
			return dev.ReadBytes(2 * arg.(int))
		}},
	}
}
