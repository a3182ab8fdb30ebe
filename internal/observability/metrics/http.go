package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ObserveHTTPRequest counts one API request; 5xx responses also count as errors.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	with(func(r *registry) {
		r.httpRequests.add(1, handler, method, strconv.Itoa(status))
		if status >= http.StatusInternalServerError {
			r.httpErrors.add(1, handler, method)
		}
		r.httpLatency.observe(duration.Seconds(), handler, method)
	})
}

// StartServer serves /metrics on addr until ctx is cancelled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
