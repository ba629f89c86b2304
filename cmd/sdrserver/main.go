// Command sdrserver exposes a tuner to remote clients over TCP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sdr-rpc/device"
	"sdr-rpc/middleware"
	"sdr-rpc/registry"
	"sdr-rpc/server"
)

func main() {
	addr := flag.String("a", "127.0.0.1", "Address to bind to")
	port := flag.Int("p", 1235, "Port to listen on")
	index := flag.Int("d", 0, "Device index")
	serial := flag.String("s", "", "Select the device by serial number instead of index")
	rateLimit := flag.Float64("rate", 0, "Requests per second allowed (0 = unlimited)")
	burst := flag.Int("burst", 10, "Rate limiter burst size")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	retries := flag.Int("retries", 2, "Retries for transient device errors")
	shutdownTimeout := flag.Duration("shutdown-timeout", 5*time.Second, "Time allowed for in-flight requests on shutdown")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, net.JoinHostPort(*addr, strconv.Itoa(*port)), *index, *serial, *rateLimit, *burst, *timeout, *retries, *shutdownTimeout); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, addr string, index int, serial string, rateLimit float64, burst int, timeout time.Duration, retries int, shutdownTimeout time.Duration) error {
	dev := device.NewDummy()
	if serial != "" {
		i, err := dev.IndexBySerial(serial)
		if err != nil {
			return err
		}
		index = i
	}

	svr := server.NewServer(dev, registry.SDR(),
		server.WithLogger(logger),
		server.WithDeviceIndex(index))

	svr.Use(middleware.LoggingMiddleware(logger))
	if rateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(rateLimit, burst))
	}
	svr.Use(middleware.TimeoutMiddleware(timeout))
	if retries > 0 {
		svr.Use(middleware.RetryMiddleware(logger, retries, 50*time.Millisecond))
	}

	if err := svr.Listen("tcp", addr); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svr.Serve(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
		return svr.Shutdown(shutdownTimeout)
	})
	return g.Wait()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
