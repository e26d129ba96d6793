package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/andrebq/doorman/internal/logutil"
)

// Serve listens on bind until ctx is cancelled, then shuts the server
// down gracefully.
func Serve(ctx context.Context, bind string, handler http.Handler) error {
	server := newServer(bind, handler)
	return run(ctx, server, server.ListenAndServe)
}

// ServeTLS is like Serve but only accepts TLS connections using the given
// certificate and key files.
func ServeTLS(ctx context.Context, bind, certFile, keyFile string, handler http.Handler) error {
	server := newServer(bind, handler)
	return run(ctx, server, func() error {
		return server.ListenAndServeTLS(certFile, keyFile)
	})
}

func newServer(bind string, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		Addr:              bind,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute * 5,
	}
}

func run(ctx context.Context, server *http.Server, listen func() error) error {
	err := make(chan error, 1)
	done := make(chan struct{})
	go serveInBackground(ctx, server, listen, err, done)
	<-done
	return <-err
}

func serveInBackground(ctx context.Context, server *http.Server, listen func() error, firstErr chan<- error, done chan<- struct{}) {
	log := logutil.GetOrDefault(ctx).With().Str("server.addr", server.Addr).Logger()
	defer close(done)
	serverCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		defer close(firstErr)
		log.Info().Msg("Starting HTTP server")
		err := listen()
		if errors.Is(err, http.ErrServerClosed) {
			log.Info().Msg("Server closed")
			// shutdown called,
			// ignore the error
			return
		} else if err != nil {
			select {
			case firstErr <- err:
			default:
			}
			return
		}
	}()
	select {
	case <-serverCtx.Done():
	case <-ctx.Done():
		log.Info().Msg("Initiating shutdown process")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Minute)
		defer cancelShutdown()
		server.Shutdown(shutdownCtx)
		log.Info().Msg("Shutdown completed")
	}
}
