package registry

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"

	"sdr-rpc/device"
	"sdr-rpc/protocol"
)

func TestSDRWhitelist(t *testing.T) {
	r := SDR()

	for _, name := range []string{
		"get_center_freq", "set_center_freq", "get_sample_rate", "set_sample_rate",
		"get_bandwidth", "set_bandwidth", "get_gain", "set_gain",
		"get_freq_correction", "set_freq_correction", "get_gains", "get_tuner_type",
		"set_direct_sampling", "read_bytes", "read_samples",
	} {
		if !r.IsMethodAllowed(name) {
			t.Errorf("method %s should be allowed", name)
		}
	}
	if got := len(r.Methods()); got != 15 {
		t.Errorf("expected 15 methods, got %d", got)
	}
	for _, name := range []string{"center_freq", "fc", "sample_rate", "rs", "gain", "freq_correction", "bandwidth"} {
		if !r.IsPropertyAllowed(name) {
			t.Errorf("property %s should be allowed", name)
		}
	}

	for _, name := range []string{"close", "open", "__init__", "read_bytes_async", "Close", ""} {
		if r.IsMethodAllowed(name) {
			t.Errorf("method %q must not be allowed", name)
		}
		if _, err := r.Method(name); !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Method(%q): expected ErrPermissionDenied, got %v", name, err)
		}
	}
	if _, _, err := r.ResolveProperty("device_opened"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestResolvePropertyAlias(t *testing.T) {
	r := SDR()
	g1, s1, err := r.ResolveProperty("fc")
	if err != nil {
		t.Fatal(err)
	}
	g2, s2, _ := r.ResolveProperty("center_freq")
	if g1 != g2 || s1 != s2 {
		t.Fatal("fc and center_freq should resolve to the same methods")
	}
	if g1.Name != "get_center_freq" || s1.Name != "set_center_freq" {
		t.Fatalf("resolved %s/%s", g1.Name, s1.Name)
	}
}

func TestCoerce(t *testing.T) {
	r := SDR()

	cases := []struct {
		method string
		raw    string
		want   any
	}{
		{"set_center_freq", `6000000`, 6e6},
		{"set_center_freq", `6e6`, 6e6},
		{"set_gain", `10.0`, 10.0},
		{"set_gain", `"auto"`, device.AutoGain},
		{"set_bandwidth", `2000000.0`, 2000000},
		{"set_freq_correction", `-12`, -12},
		{"set_direct_sampling", `2`, 2},
		{"set_direct_sampling", `"i"`, device.DirectSamplingI},
		{"read_bytes", `4096`, 4096},
		{"read_bytes", `null`, device.DefaultReadSize},
		{"read_samples", ``, device.DefaultReadSize},
		{"get_gains", ``, nil},
		{"get_gains", `null`, nil},
	}
	for _, c := range cases {
		m, err := r.Method(c.method)
		if err != nil {
			t.Fatal(err)
		}
		got, err := m.Coerce(json.RawMessage(c.raw))
		if err != nil {
			t.Errorf("%s(%s): %v", c.method, c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s(%s) = %#v, want %#v", c.method, c.raw, got, c.want)
		}
	}
}

func TestCoerceRejects(t *testing.T) {
	r := SDR()

	cases := []struct {
		method string
		raw    string
	}{
		{"set_center_freq", `"fast"`},
		{"set_center_freq", `null`},
		{"set_gain", `"loud"`},
		{"set_gain", `[10]`},
		{"set_bandwidth", `1.5`},
		{"set_freq_correction", `"3"`},
		{"set_direct_sampling", `"x"`},
		{"read_bytes", `-1`},
		{"read_bytes", `{"n":1}`},
		{"get_gains", `1`},
	}
	for _, c := range cases {
		m, _ := r.Method(c.method)
		if _, err := m.Coerce(json.RawMessage(c.raw)); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s(%s): expected ErrInvalidArgument, got %v", c.method, c.raw, err)
		}
	}
}

func TestReadSizeLimit(t *testing.T) {
	limit := protocol.DefaultMaxBulkSize
	r := SDR()

	cases := []struct {
		method string
		n      int
		ok     bool
	}{
		{"read_bytes", limit, true},
		{"read_bytes", limit + 1, false},
		{"read_bytes", 80 << 20, false},
		{"read_samples", limit / 2, true},
		{"read_samples", limit/2 + 1, false},
	}
	for _, c := range cases {
		m, _ := r.Method(c.method)
		raw, _ := json.Marshal(c.n)
		v, err := m.Coerce(raw)
		if c.ok {
			if err != nil || v.(int) != c.n {
				t.Errorf("%s(%d): got %v, %v", c.method, c.n, v, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s(%d): expected ErrInvalidArgument, got %v", c.method, c.n, err)
		}
	}

	small := SDRWithReadLimit(100)
	m, _ := small.Method("read_samples")
	if _, err := m.Coerce(json.RawMessage(`51`)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("read_samples(51) with a 100-byte limit: expected ErrInvalidArgument, got %v", err)
	}
	if v, err := m.Coerce(json.RawMessage(`50`)); err != nil || v.(int) != 50 {
		t.Errorf("read_samples(50) with a 100-byte limit: got %v, %v", v, err)
	}
}

func TestInvoke(t *testing.T) {
	r := SDR()
	dev := device.NewDummy()
	if err := dev.Open(0); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	call := func(name, raw string) any {
		t.Helper()
		m, err := r.Method(name)
		if err != nil {
			t.Fatal(err)
		}
		arg, err := m.Coerce(json.RawMessage(raw))
		if err != nil {
			t.Fatal(err)
		}
		v, err := m.Invoke(dev, arg)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return v
	}

	call("set_gain", `10.0`)
	if got := call("get_gain", ``); got != 10.0 {
		t.Fatalf("get_gain = %v", got)
	}
	call("set_gain", `"auto"`)
	if !dev.AGC() {
		t.Fatal("auto gain not applied")
	}
	call("set_direct_sampling", `"q"`)
	if dev.DirectSamplingMode() != device.DirectSamplingQ {
		t.Fatal("direct sampling not applied")
	}
	if got := call("get_tuner_type", ``); got != int(device.TunerR820T) {
		t.Fatalf("get_tuner_type = %v", got)
	}
	if b := call("read_samples", `100`).([]byte); len(b) != 200 {
		t.Fatalf("read_samples(100) returned %d bytes", len(b))
	}
	if b := call("read_bytes", `null`).([]byte); len(b) != device.DefaultReadSize {
		t.Fatalf("read_bytes() returned %d bytes", len(b))
	}
}

func TestNewValidates(t *testing.T) {
	noop := func(device.Device, any) (any, error) { return nil, nil }

	_, err := New([]Method{{Name: "get_x", Result: ResultInline, Invoke: noop}},
		[]Property{{Name: "x", Getter: "get_x", Setter: "set_x"}})
	if err == nil {
		t.Fatal("expected error for missing setter")
	}

	_, err = New([]Method{{Name: "a", Invoke: noop}, {Name: "a", Invoke: noop}}, nil)
	if err == nil {
		t.Fatal("expected error for duplicate method")
	}

	_, err = New([]Method{
		{Name: "get_x", Args: []ArgType{Int}, Result: ResultInline, Invoke: noop},
		{Name: "set_x", Args: []ArgType{Int}, Invoke: noop},
	}, []Property{{Name: "x", Getter: "get_x", Setter: "set_x"}})
	if err == nil {
		t.Fatal("expected error for getter taking an argument")
	}
}
