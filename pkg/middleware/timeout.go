package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds each request with a deadline. Handlers that miss it get
// their context cancelled and the client receives a 504, unless the
// handler already started writing a response.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			ww := &trackedWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(ww, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if !ww.wrote() {
					slog.Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", timeout,
					)
					http.Error(w, `{"error":"request timeout"}`, http.StatusGatewayTimeout)
				}
			}
		})
	}
}

// trackedWriter remembers whether the handler wrote anything, so the
// timeout path does not stack a second response onto a partial one.
type trackedWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	written bool
}

func (w *trackedWriter) WriteHeader(code int) {
	w.mu.Lock()
	w.written = true
	w.mu.Unlock()
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackedWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	w.written = true
	w.mu.Unlock()
	return w.ResponseWriter.Write(b)
}

func (w *trackedWriter) wrote() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
