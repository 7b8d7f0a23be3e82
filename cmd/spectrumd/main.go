package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roman-kulish/spectrum-waterfall/internal/producer"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var addr string
	var frameRate float64
	var verbose bool
	flag.StringVar(&addr, "addr", producer.DefaultAddr, "Listen address")
	flag.Float64Var(&frameRate, "frame-rate", producer.FrameRateHz, "Frames per second streamed to each client")
	flag.BoolVar(&verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	opts := &slog.HandlerOptions{}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))

	if frameRate <= 0 {
		logger.Error("frame rate must be positive")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, addr, frameRate, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, frameRate float64, logger *slog.Logger) error {
	server := &http.Server{
		Addr: addr,
		Handler: producer.NewServer(
			producer.WithLogger(logger),
			producer.WithFrameRate(frameRate)),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("spectrum producer listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
