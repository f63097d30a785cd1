package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// SignalContext returns a copy of [parent] that is canceled on the first
// SIGINT or SIGTERM, or when the returned cancel func is called.
// The cancel func must be called to release the signal handler.
func SignalContext(parent context.Context, log *zap.Logger) (context.Context, context.CancelFunc) {
	signalsChan := make(chan os.Signal, 1)
	signal.Notify(signalsChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(parent)
	go cancelOnSignal(ctx, log, signalsChan, cancel)
	return ctx, func() {
		signal.Stop(signalsChan)
		cancel()
	}
}

// Blocks until [signalChan] receives a signal or [ctx] is done, then
// calls [cancel].
func cancelOnSignal(
	ctx context.Context,
	log *zap.Logger,
	signalChan <-chan os.Signal,
	cancel context.CancelFunc,
) {
	select {
	case sig := <-signalChan:
		log.Info("got OS signal", zap.Stringer("signal", sig))
	case <-ctx.Done():
	}
	cancel()
}
