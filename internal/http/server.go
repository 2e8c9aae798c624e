// Package http exposes the JSON API: transaction listing and mutations,
// splits, category suggestions, category and payee management, chart
// projections and token-authenticated bulk import.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tallyo/internal/auth"
	"tallyo/internal/cache"
	"tallyo/internal/log"
	"tallyo/internal/services"
	"tallyo/internal/storage"
)

// Options tunes the server; zero values fall back to defaults.
type Options struct {
	RateLimitPerMinute int
	ListLimit          int
	CacheSize          int
	CacheTTL           time.Duration
	CacheCleanup       time.Duration
}

type Server struct {
	http.Server

	repo          *storage.SQLiteRepository
	transactions  *services.TransactionService
	reports       *services.ReportService
	importer      *services.ImportService
	authenticator *auth.Authenticator

	rateLimiter *rateLimiter
	listLimit   int

	// report projections cached per user, dropped on any write
	cacheManager   *cache.Manager
	statsCache     *cache.LRUCache[storage.SummaryStats]
	breakdownCache *cache.LRUCache[[]storage.CategoryBreakdownRow]

	logger     *log.Logger
	structured *log.StructuredLogger

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, repo *storage.SQLiteRepository, tx *services.TransactionService, rep *services.ReportService, imp *services.ImportService, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	limit := opts.RateLimitPerMinute
	if limit <= 0 {
		limit = 60
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	cleanup := opts.CacheCleanup
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		repo:          repo,
		transactions:  tx,
		reports:       rep,
		importer:      imp,
		authenticator: auth.NewAuthenticator(repo),
		rateLimiter:   newRateLimiter(limit),
		listLimit:     opts.ListLimit,
		logger:        logger.WithComponent(log.ComponentHTTP),
		structured:    log.NewStructuredLogger(logger),
	}

	s.cacheManager = cache.NewManager(logger)
	s.statsCache = cache.NewLRUCache[storage.SummaryStats](cacheSize, cacheTTL)
	s.breakdownCache = cache.NewLRUCache[[]storage.CategoryBreakdownRow](cacheSize, cacheTTL)
	s.cacheManager.Register(s.statsCache)
	s.cacheManager.Register(s.breakdownCache)
	s.cacheManager.StartCleanup(cleanup)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.protect(s.authed(s.handleListTransactions)))
	mux.HandleFunc("GET /api/transactions/unreviewed-count", s.protect(s.authed(s.handleUnreviewedCount)))
	mux.HandleFunc("POST /api/transactions", s.protect(s.authed(s.handleCreateTransaction)))
	mux.HandleFunc("POST /api/transactions/{id}/category", s.protect(s.authed(s.handleSetCategory)))
	mux.HandleFunc("POST /api/transactions/{id}/reviewed", s.protect(s.authed(s.handleSetReviewed)))
	mux.HandleFunc("POST /api/transactions/{id}/description", s.protect(s.authed(s.handleSetDescription)))
	mux.HandleFunc("POST /api/transactions/{id}/vendor", s.protect(s.authed(s.handleSetDisplayVendor)))
	mux.HandleFunc("POST /api/transactions/{id}/split", s.protect(s.authed(s.handleSplit)))
	mux.HandleFunc("GET /api/transactions/{id}/suggest-category", s.protect(s.authed(s.handleSuggestCategory)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.protect(s.authed(s.handleDeleteTransaction)))

	mux.HandleFunc("GET /api/categories", s.protect(s.authed(s.handleListCategories)))
	mux.HandleFunc("POST /api/categories", s.protect(s.authed(s.handleCreateCategory)))
	mux.HandleFunc("POST /api/categories/{id}", s.protect(s.authed(s.handleUpdateCategory)))
	mux.HandleFunc("DELETE /api/categories/{id}", s.protect(s.authed(s.handleDeleteCategory)))

	mux.HandleFunc("GET /api/payees", s.protect(s.authed(s.handleListPayees)))
	mux.HandleFunc("POST /api/payees", s.protect(s.authed(s.handleCreatePayee)))
	mux.HandleFunc("GET /api/payees/{id}", s.protect(s.authed(s.handleGetPayee)))
	mux.HandleFunc("POST /api/payees/{id}/keywords", s.protect(s.authed(s.handleAddPayeeKeyword)))
	mux.HandleFunc("DELETE /api/payees/{id}/keywords", s.protect(s.authed(s.handleRemovePayeeKeyword)))

	mux.HandleFunc("GET /api/charts/category-breakdown", s.protect(s.authed(s.handleCategoryBreakdown)))
	mux.HandleFunc("GET /api/charts/income-vs-expense", s.protect(s.authed(s.handleIncomeVsExpense)))
	mux.HandleFunc("GET /api/charts/monthly-expense", s.protect(s.authed(s.handleMonthlyExpense)))
	mux.HandleFunc("GET /api/charts/stats", s.protect(s.authed(s.handleStats)))

	mux.HandleFunc("POST /api/transactions/import", s.protect(s.handleImport))

	// request-scoped logger for handlers reaching through the context
	s.Server.Handler = log.Middleware(s.logger)(mux)

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
