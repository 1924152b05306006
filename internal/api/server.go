// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/loyalty/internal/ledger"
)

// Awarder credits points. Satisfied by *award.Engine.
type Awarder interface {
	Award(ctx context.Context, req ledger.AwardRequest) (ledger.AwardResult, error)
}

// BalanceReader serves balance reads. Satisfied by *reconcile.Reader.
type BalanceReader interface {
	Balance(ctx context.Context, customerID, programID string) (ledger.Balance, error)
}

// Ledger is the store surface used by the read and admin endpoints.
// Satisfied by *store.Store.
type Ledger interface {
	GetCard(ctx context.Context, id string) (ledger.Card, error)
	ListActivity(ctx context.Context, cardID string, limit int) ([]ledger.Activity, error)
	Enroll(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error)
	SetEnrollmentStatus(ctx context.Context, customerID, programID string, status ledger.EnrollmentStatus, at time.Time) error
}

// Server routes HTTP requests to the ledger.
type Server struct {
	router  *chi.Mux
	awarder Awarder
	reader  BalanceReader
	ledger  Ledger
	clock   ledger.Clock
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for enrollment timestamps.
func WithClock(c ledger.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer builds the router.
func NewServer(awarder Awarder, reader BalanceReader, l Ledger, opts ...Option) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		awarder: awarder,
		reader:  reader,
		ledger:  l,
		clock:   ledger.SystemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(s.requestLog)
	s.router.Use(chimw.Recoverer)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/awards", s.handleAward)
		r.Get("/customers/{customerID}/programs/{programID}/balance", s.handleBalance)
		r.Get("/cards/{cardID}/activity", s.handleActivity)
		r.Post("/enrollments", s.handleEnroll)
		r.Post("/enrollments/status", s.handleEnrollmentStatus)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()))
	})
}
