// Command sdrstream streams samples from a local tuner and prints the
// relative power of each buffer until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sdr-rpc/device"
	"sdr-rpc/stream"
)

func main() {
	index := flag.Int("d", 0, "Device index")
	serial := flag.String("s", "", "Select the device by serial number instead of index")
	size := flag.Int("n", stream.DefaultBufferSize, "Samples per buffer")
	capacity := flag.Int("queue", stream.DefaultCapacity, "Buffers held before dropping")
	count := flag.Int64("count", 0, "Stop after this many buffers (0 = until interrupted)")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	biasTee := flag.Bool("bias-tee", false, "Enable the bias tee")
	rtlAGC := flag.Bool("rtl-agc", false, "Enable the RTL2832 digital AGC")
	dither := flag.Bool("dither", true, "Enable PLL dithering")
	lag := flag.Duration("lag", 0, "Artificial delay per buffer, to exercise dropping")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if *debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev := device.NewDummy()
	idx := *index
	if *serial != "" {
		var err error
		if idx, err = dev.IndexBySerial(*serial); err != nil {
			logger.Fatal("find device", zap.String("serial", *serial), zap.Error(err))
		}
	}
	if err := dev.Open(idx); err != nil {
		logger.Fatal("open device", zap.Error(err))
	}
	defer dev.Close()
	if err := configure(dev, *rtlAGC, *biasTee, *dither); err != nil {
		logger.Fatal("configure device", zap.Error(err))
	}

	s := stream.Samples(dev, *size,
		stream.WithCapacity(*capacity),
		stream.WithMaxBuffers(*count),
		stream.WithMaxDuration(*duration),
		stream.WithLogger(logger))
	if err := s.Start(); err != nil {
		logger.Fatal("start stream", zap.Error(err))
	}

	n := 0
	for buf := range s.All(ctx) {
		fmt.Printf("%6d  %7.2f dB\n", n, relativePower(buf))
		n++
		time.Sleep(*lag)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		logger.Error("stream stopped with error", zap.Error(err))
	}
	logger.Info("done",
		zap.Int("buffers", n),
		zap.Int64("dropped", s.Dropped()),
		zap.Int64("discarded", s.Discarded()))
}

func configure(dev device.LocalControls, rtlAGC, biasTee, dither bool) error {
	if err := dev.SetAGCMode(rtlAGC); err != nil {
		return err
	}
	if err := dev.SetBiasTee(biasTee); err != nil {
		return err
	}
	return dev.SetDithering(dither)
}

func relativePower(iq []complex128) float64 {
	if len(iq) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range iq {
		sum += real(s)*real(s) + imag(s)*imag(s)
	}
	return 10 * math.Log10(sum/float64(len(iq)))
}
