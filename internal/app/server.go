package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

// Start serves HTTP until SIGINT or SIGTERM arrives or the listener fails.
// The returned channel is closed when the application should stop.
func (a *App) Start() <-chan struct{} {
	done := make(chan struct{})
	sigCtx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("http server listening", "address", a.httpServer.Addr)

		err := a.httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "error", err)
			stop()
		}
	}()

	go func() {
		<-sigCtx.Done()
		stop()
		slog.Info("shutdown requested")
		close(done)
	}()

	return done
}

// ShutdownTimeout bounds Stop.
func (a *App) ShutdownTimeout() time.Duration {
	if d := a.config.GetSecond("app.server.http.shutdown_timeout_seconds"); d > 0 {
		return d
	}
	return defaultShutdownTimeout
}

// Stop drains in-flight requests and pending audit deliveries, then closes
// the shared resources in order.
func (a *App) Stop(ctx context.Context) {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to close resources", "name", "HTTP Server", "error", err)
	}

	if err := a.goroutine.WaitContext(ctx); err != nil {
		slog.ErrorContext(ctx, "background work finished with error", "error", err, "dropped", a.goroutine.Dropped())
	}

	a.cancel()

	for _, closer := range a.closers {
		if err := closer.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", closer.name, "error", err)
		}
	}

	slog.InfoContext(ctx, "application stopped")
}
