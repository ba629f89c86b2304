package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"sdr-rpc/device"
	"sdr-rpc/message"
	"sdr-rpc/middleware"
	"sdr-rpc/protocol"
	"sdr-rpc/registry"
	"sdr-rpc/server"
)

func startServer(t *testing.T, dev device.Device, mws ...middleware.Middleware) (*server.Server, string) {
	t.Helper()
	svr := server.NewServer(dev, registry.SDR(), server.WithLogger(zaptest.NewLogger(t)))
	for _, mw := range mws {
		svr.Use(mw)
	}
	if err := svr.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	go svr.Serve(context.Background())
	t.Cleanup(func() { svr.Close() })
	return svr, svr.Addr().String()
}

func newClient(t *testing.T, addr string, opt ...Option) *Client {
	t.Helper()
	c := NewClient(addr, append([]Option{WithLogger(zaptest.NewLogger(t))}, opt...)...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestScenario(t *testing.T) {
	_, addr := startServer(t, device.NewDummy())
	c := newClient(t, addr)
	ctx := context.Background()

	if err := c.SetProperty(ctx, "sample_rate", 2_000_000); err != nil {
		t.Fatal(err)
	}
	if err := c.SetProperty(ctx, "center_freq", 6_000_000); err != nil {
		t.Fatal(err)
	}
	if err := c.SetProperty(ctx, "gain", 10.0); err != nil {
		t.Fatal(err)
	}

	var gains []int
	if err := c.CallMethod(ctx, "get_gains", nil, &gains); err != nil {
		t.Fatal(err)
	}
	if len(gains) == 0 {
		t.Fatal("expected supported gains")
	}
	for i := 1; i < len(gains); i++ {
		if gains[i] <= gains[i-1] {
			t.Fatalf("gains not ascending: %v", gains)
		}
	}

	samples, err := c.ReadSamples(ctx, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1024 {
		t.Fatalf("expected 1024 samples, got %d", len(samples))
	}
}

func TestPropertyRoundTrip(t *testing.T) {
	_, addr := startServer(t, device.NewDummy())
	c := newClient(t, addr, WithKeepAlive(1))
	ctx := context.Background()

	cases := []struct {
		name string
		set  any
		want float64
	}{
		{"center_freq", 6e6, 6e6},
		{"fc", 433.92e6, 433.92e6},
		{"sample_rate", 2.048e6, 2.048e6},
		{"rs", 1e6, 1e6},
		{"gain", 10.0, 10.0},
		{"gain", 12.0, 12.5}, // nearest supported step
		{"freq_correction", -17, -17},
		{"bandwidth", 200000, 200000},
	}
	for _, tc := range cases {
		if err := c.SetProperty(ctx, tc.name, tc.set); err != nil {
			t.Fatalf("set %s: %v", tc.name, err)
		}
		var got float64
		if err := c.GetProperty(ctx, tc.name, &got); err != nil {
			t.Fatalf("get %s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: set %v, got %v, want %v", tc.name, tc.set, got, tc.want)
		}
	}
}

func TestReadBytesSizes(t *testing.T) {
	_, addr := startServer(t, device.NewDummy())
	c := newClient(t, addr, WithKeepAlive(1))

	for _, n := range []int{1024, 4096, 65536, 131072} {
		b, err := c.ReadBytes(context.Background(), n)
		if err != nil {
			t.Fatalf("read_bytes(%d): %v", n, err)
		}
		if len(b) != n {
			t.Fatalf("read_bytes(%d): got %d bytes", n, len(b))
		}

		samples, err := c.ReadSamples(context.Background(), n)
		if err != nil {
			t.Fatalf("read_samples(%d): %v", n, err)
		}
		if len(samples) != n {
			t.Fatalf("read_samples(%d): got %d samples", n, len(samples))
		}
		for i, s := range samples {
			if real(s) < -1 || real(s) > 1 || imag(s) < -1 || imag(s) > 1 {
				t.Fatalf("read_samples(%d): sample %d out of range: %v", n, i, s)
			}
		}
	}
}

// recordingDevice remembers the size of every synchronous read.
type recordingDevice struct {
	*device.Dummy
	mu    sync.Mutex
	sizes []int
}

func (d *recordingDevice) ReadBytes(n int) ([]byte, error) {
	d.mu.Lock()
	d.sizes = append(d.sizes, n)
	d.mu.Unlock()
	return d.Dummy.ReadBytes(n)
}

func (d *recordingDevice) reads() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.sizes...)
}

func TestOversizedReadRefused(t *testing.T) {
	dev := &recordingDevice{Dummy: device.NewDummy()}
	_, addr := startServer(t, dev)
	c := newClient(t, addr)
	ctx := context.Background()

	if _, err := c.ReadBytes(ctx, 80<<20); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Fatalf("read_bytes(80 MiB): expected invalid argument, got %v", err)
	}
	if _, err := c.ReadSamples(ctx, 40<<20); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Fatalf("read_samples(40 Mi): expected invalid argument, got %v", err)
	}
	if got := dev.reads(); len(got) != 0 {
		t.Fatalf("device was asked for %v", got)
	}

	// A read within the limit still reaches the device.
	if _, err := c.ReadBytes(ctx, 16); err != nil {
		t.Fatal(err)
	}
	if got := dev.reads(); len(got) != 1 || got[0] != 16 {
		t.Fatalf("device reads: %v", got)
	}
}

func TestRemoteErrors(t *testing.T) {
	dev := device.NewDummy()
	_, addr := startServer(t, dev)
	c := newClient(t, addr)
	ctx := context.Background()

	err := c.CallMethod(ctx, "close", nil, nil)
	if !errors.Is(err, registry.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	var rce *RemoteCallError
	if !errors.As(err, &rce) || rce.Name != "close" {
		t.Fatalf("expected RemoteCallError for close, got %v", err)
	}
	if err := c.GetProperty(ctx, "dev_p", nil); !errors.Is(err, registry.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for property, got %v", err)
	}

	if err := c.CallMethod(ctx, "set_center_freq", "fast", nil); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	dev.FailNext("get_tuner_type", 1, true)
	err = c.CallMethod(ctx, "get_tuner_type", nil, nil)
	var de *device.DeviceError
	if !errors.As(err, &de) || !de.Transient {
		t.Fatalf("expected transient DeviceError, got %v", err)
	}
	if errors.Is(err, registry.ErrPermissionDenied) {
		t.Fatal("device error must not match permission denied")
	}
}

func TestRateLimited(t *testing.T) {
	_, addr := startServer(t, device.NewDummy(), middleware.RateLimitMiddleware(0.001, 1))
	c := newClient(t, addr)

	if err := c.CallMethod(context.Background(), "get_gain", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.CallMethod(context.Background(), "get_gain", nil, nil); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSilentServerTimeout(t *testing.T) {
	// Accepts connections and never answers
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c := newClient(t, l.Addr().String(), WithReadTimeout(200*time.Millisecond))

	start := time.Now()
	err = c.CallMethod(context.Background(), "get_gain", nil, nil)
	var te *protocol.TransportError
	if !errors.As(err, &te) || !te.Timeout() {
		t.Fatalf("expected timed out TransportError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("call took %v", elapsed)
	}
}

func TestUnexpectedReplyKind(t *testing.T) {
	// Answers every request with another request
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		raw, err := l.Accept()
		if err != nil {
			return
		}
		conn := protocol.NewConn(raw)
		defer conn.Close()
		if _, err := conn.Receive(); err != nil {
			return
		}
		conn.Send(message.New(message.KindMethodCall, "get_gain", nil))
	}()

	c := newClient(t, l.Addr().String())
	err = c.CallMethod(context.Background(), "get_gain", nil, nil)
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		t.Fatalf("a request-kind reply is not a remote failure: %v", err)
	}
}

func TestServerCloseMidCall(t *testing.T) {
	svr, addr := startServer(t, device.NewDummy(device.WithReadLatency(2*time.Second)))
	c := newClient(t, addr)

	done := make(chan error, 1)
	go func() {
		_, err := c.ReadSamples(context.Background(), 1024)
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	svr.Close()

	select {
	case err := <-done:
		if !protocol.IsTransport(err) {
			t.Fatalf("expected TransportError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight call hung after server close")
	}
}

func TestDialFailure(t *testing.T) {
	l, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := l.Addr().String()
	l.Close()

	c := newClient(t, addr, WithDialTimeout(time.Second))
	if err := c.CallMethod(context.Background(), "get_gain", nil, nil); !protocol.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestKeepAlive(t *testing.T) {
	_, addr := startServer(t, device.NewDummy())
	c := newClient(t, addr, WithKeepAlive(1))

	for i := 0; i < 5; i++ {
		if err := c.CallMethod(context.Background(), "get_gain", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if c.pool.Idle() != 1 {
		t.Fatalf("expected one kept-alive connection, got %d", c.pool.Idle())
	}

	// A refused call leaves the connection usable
	if err := c.CallMethod(context.Background(), "open", nil, nil); err == nil {
		t.Fatal("expected refusal")
	}
	if c.pool.Idle() != 1 {
		t.Fatal("connection dropped after a NAK")
	}
}

func TestUnsupportedAsync(t *testing.T) {
	c := NewClient("")
	if c.Addr() != DefaultAddr {
		t.Fatalf("default addr: %s", c.Addr())
	}
	if err := c.ReadBytesAsync(func([]byte) {}, 16); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
	if err := c.ReadSamplesAsync(func([]complex128) {}, 16); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestRemoteDevice(t *testing.T) {
	local := device.NewDummy()
	_, addr := startServer(t, local)

	var dev device.Device = NewRemoteDevice(newClient(t, addr, WithKeepAlive(1)), 5*time.Second)

	if err := dev.SetCenterFreq(100e6); err != nil {
		t.Fatal(err)
	}
	if fc, err := dev.CenterFreq(); err != nil || fc != 100e6 {
		t.Fatalf("CenterFreq = %v, %v", fc, err)
	}
	if err := dev.SetGain(device.GainDB(20)); err != nil {
		t.Fatal(err)
	}
	if g, _ := dev.Gain(); g != 20 {
		t.Fatalf("Gain = %v", g)
	}
	if err := dev.SetGain(device.AutoGain); err != nil {
		t.Fatal(err)
	}
	if !local.AGC() {
		t.Fatal("auto gain did not reach the device")
	}
	if err := dev.SetDirectSampling(device.DirectSamplingI); err != nil {
		t.Fatal(err)
	}
	if local.DirectSamplingMode() != device.DirectSamplingI {
		t.Fatal("direct sampling did not reach the device")
	}
	if tuner, err := dev.TunerType(); err != nil || tuner != device.TunerR820T {
		t.Fatalf("TunerType = %v, %v", tuner, err)
	}
	if s, err := dev.ReadSamples(256); err != nil || len(s) != 256 {
		t.Fatalf("ReadSamples = %d, %v", len(s), err)
	}
	if err := dev.ReadBytesAsync(func([]byte) {}, 16); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
}
