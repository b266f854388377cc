package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"evater/api/internal/handle"
)

// NewRouter wires the public API. The returned router can take extra
// routes, the Telegram webhook for one.
func NewRouter(h *handle.Handle, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestLogger(log))

	r.HandleFunc("/", h.Root).Methods("GET")
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")

	// Full paths on the root router: a PathPrefix subrouter answers a method
	// mismatch with 404 instead of 405.
	r.HandleFunc("/api/gen_question", h.GenQuestion).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/gen_answer", h.GenAnswer).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/tests/{id}", h.GetTest).Methods("GET", "OPTIONS")
	return r
}

// Start serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
