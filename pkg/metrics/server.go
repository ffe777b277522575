package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const listenerShutdownTimeout = 5 * time.Second

// Listener exposes a gatherer on /metrics for processes that have no API
// router of their own, such as the relay and the maintenance worker.
type Listener struct {
	server *http.Server
}

func NewListener(addr string, gatherer prometheus.Gatherer) *Listener {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &Listener{server: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (l *Listener) Handler() http.Handler {
	return l.server.Handler
}

// Run serves until ctx is done, then shuts the listener down.
func (l *Listener) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listenerShutdownTimeout)
		defer cancel()
		return l.server.Shutdown(shutdownCtx)
	}
}
