// Package httpserver runs an HTTP handler with graceful shutdown, shared by
// the relay, signaling and LAN servers.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/dropwire/dropwire/pkg/logging"
)

// Run serves handler on addr until ctx is cancelled, then drains in-flight
// requests for up to the grace period.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L().WithField("addr", addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
