// Command sdrclient configures a remote tuner and reads a block of samples.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sdr-rpc/client"
)

func main() {
	addr := flag.String("a", "127.0.0.1", "Server address")
	port := flag.Int("p", 1235, "Server port")
	fc := flag.Float64("fc", 6e6, "Center frequency in Hz")
	rs := flag.Float64("rs", 2e6, "Sample rate in Hz")
	gain := flag.String("gain", "10", `Gain in dB, or "auto"`)
	n := flag.Int("n", 1024, "Number of samples to read")
	keepAlive := flag.Bool("keep-alive", false, "Reuse one connection for all calls")
	timeout := flag.Duration("timeout", 20*time.Second, "Read timeout")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := zap.NewNop()
	if *debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	opts := []client.Option{client.WithLogger(logger), client.WithReadTimeout(*timeout)}
	if *keepAlive {
		opts = append(opts, client.WithKeepAlive(1))
	}
	cli := client.NewClient(net.JoinHostPort(*addr, strconv.Itoa(*port)), opts...)
	defer cli.Close()

	if err := run(context.Background(), cli, *fc, *rs, *gain, *n); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli *client.Client, fc, rs float64, gain string, n int) error {
	if err := cli.SetProperty(ctx, "sample_rate", rs); err != nil {
		return err
	}
	if err := cli.SetProperty(ctx, "center_freq", fc); err != nil {
		return err
	}
	var g any = gain
	if gain != "auto" {
		db, err := strconv.ParseFloat(gain, 64)
		if err != nil {
			return fmt.Errorf("gain: %w", err)
		}
		g = db
	}
	if err := cli.SetProperty(ctx, "gain", g); err != nil {
		return err
	}

	var gains []int
	if err := cli.CallMethod(ctx, "get_gains", nil, &gains); err != nil {
		return err
	}
	var tuner int
	if err := cli.CallMethod(ctx, "get_tuner_type", nil, &tuner); err != nil {
		return err
	}
	var gotGain float64
	if err := cli.GetProperty(ctx, "gain", &gotGain); err != nil {
		return err
	}

	samples, err := cli.ReadSamples(ctx, n)
	if err != nil {
		return err
	}
	var power float64
	for _, s := range samples {
		power += real(s)*real(s) + imag(s)*imag(s)
	}
	power /= float64(len(samples))

	fmt.Printf("tuner:        %d\n", tuner)
	fmt.Printf("gains:        %v\n", gains)
	fmt.Printf("gain:         %.1f dB\n", gotGain)
	fmt.Printf("samples read: %d\n", len(samples))
	fmt.Printf("mean power:   %.2f dB\n", 10*math.Log10(power))
	return nil
}
