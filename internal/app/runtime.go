package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const testModeEnv = "GLASSFLOW_TEST_MODE"

// InTestMode reports whether binaries should return before touching Postgres
// or Redis. The flag is set by importing the module's testing package.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}

// Serve runs srv until ctx is cancelled, then drains connections for up to
// grace. A listener failure is returned immediately.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger, grace time.Duration) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("http draining", slog.String("addr", srv.Addr), slog.Duration("grace", grace))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
