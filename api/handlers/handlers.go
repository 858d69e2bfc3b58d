// Package handlers exposes the marketplace HTTP API: work listings, lineage
// queries, royalty distribution and claims, and revenue attribution for
// completed pay transactions.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atelierlabs/atelier/api/config"
	"github.com/atelierlabs/atelier/api/metrics"
	"github.com/atelierlabs/atelier/royalty"
	"github.com/atelierlabs/atelier/royalty/pgstore"
)

var (
	log    *slog.Logger
	store  *pgstore.Store
	engine *royalty.Engine
)

// Setup wires the handlers to the global PostgreSQL pool. Must be called
// after config.LoadPostgres and before serving requests.
func Setup(logger *slog.Logger) error {
	if config.PgPool == nil {
		return fmt.Errorf("postgres pool is not initialized")
	}

	s, err := pgstore.New(pgstore.Config{
		Logger: logger,
		Pool:   config.PgPool,
	})
	if err != nil {
		return fmt.Errorf("failed to create royalty store: %w", err)
	}

	e, err := royalty.New(royalty.Config{
		Logger:   logger,
		Registry: s,
		Lineage:  s,
		Events:   s,
	})
	if err != nil {
		return fmt.Errorf("failed to create royalty engine: %w", err)
	}

	log = logger
	store = s
	engine = e
	return nil
}

// NewRouter builds the API router.
func NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", Readyz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", GetVersion)
		r.Get("/works", ListWorks)
		r.Get("/works/{id}", GetWork)
		r.Get("/lineage/{workId}", GetLineage)
		r.Get("/royalty/summary", GetRoyaltySummary)
		r.Get("/earnings/stats", GetEarningsStats)
		r.Get("/earnings/transactions", GetEarningsTransactions)

		// Mutating endpoints share the write rate limiter.
		r.Group(func(r chi.Router) {
			r.Use(WriteRateLimitMiddleware)
			r.Post("/works/sync", SyncWork)
			r.Patch("/works/{id}/revoke", RevokeWork)
			r.Post("/transactions/pay", ExecutePayment)
			r.Post("/royalty/distribute", DistributeRoyalty)
			r.Post("/royalty/claim", ClaimRoyalty)
		})
	})

	return r
}

// Readyz reports whether the database is reachable.
func Readyz(w http.ResponseWriter, r *http.Request) {
	if config.PgPool == nil {
		http.Error(w, "database not initialized", http.StatusServiceUnavailable)
		return
	}
	if err := config.PgPool.Ping(r.Context()); err != nil {
		log.Debug("readyz: database not reachable", "error", err)
		http.Error(w, "database not reachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
