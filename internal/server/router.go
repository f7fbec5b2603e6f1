// Package server renders deck screenshots over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/root4loot/deckshot/internal/cache"
	"github.com/root4loot/deckshot/pkg/capture"
	"github.com/root4loot/deckshot/pkg/log"
)

// Capturer runs one capture attempt.
type Capturer interface {
	Run(ctx context.Context, req capture.Request) capture.Result
}

// RequestBuilder turns a target URL and output path into a capture request.
type RequestBuilder func(target, output string, extra ...capture.Option) (capture.Request, error)

type Deps struct {
	Capturer    Capturer
	Build       RequestBuilder
	Cache       cache.Cache   // Optional
	CacheTTL    time.Duration // Zero keeps entries forever
	Timeout     time.Duration // Bound on one render including queueing
	Concurrency int           // Renders in flight
	BaseURL     string        // Deck builder URL prefix
	Preset      string        // Part of the cache key
	Imprint     bool          // Draw the deck code under the image
	TempDir     string        // Where renders are written before they are served
	Log         log.Logger
}

func NewRouter(d Deps) http.Handler {
	h := newHandler(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.Health)
	r.Get("/deck", h.GetDeck)
	r.Post("/message", h.PostMessage)

	return r
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, l log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		l.Info("HTTP server listening", log.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	l.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
