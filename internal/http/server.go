// Package http exposes the ledger over a JSON API: transaction posting,
// entity CRUD, and monthly reports.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"finledger/internal/core"
	"finledger/internal/engine"
	"finledger/internal/reports"
)

// EntityStore is the plumbing CRUD surface the non-engine handlers use.
type EntityStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (core.User, error)
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (core.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]core.Account, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error)
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, year, month int) ([]core.Transaction, error)
}

type Server struct {
	http.Server

	engine  *engine.Engine
	store   EntityStore
	reports *reports.Service
}

func NewServer(addr string, eng *engine.Engine, store EntityStore, reportSvc *reports.Service) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		engine:  eng,
		store:   store,
		reports: reportSvc,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleHealth)

	mux.HandleFunc("POST /api/transactions", s.withLogging(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.withLogging(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/{id}", s.withLogging(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.withLogging(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withLogging(s.handleDeleteTransaction))

	mux.HandleFunc("POST /api/users", s.withLogging(s.handleCreateUser))
	mux.HandleFunc("GET /api/users/{id}", s.withLogging(s.handleGetUser))
	mux.HandleFunc("POST /api/accounts", s.withLogging(s.handleCreateAccount))
	mux.HandleFunc("GET /api/accounts/{id}", s.withLogging(s.handleGetAccount))
	mux.HandleFunc("GET /api/accounts", s.withLogging(s.handleListAccounts))
	mux.HandleFunc("POST /api/categories", s.withLogging(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories", s.withLogging(s.handleListCategories))
	mux.HandleFunc("POST /api/budgets", s.withLogging(s.handleCreateBudget))

	mux.HandleFunc("GET /api/reports/monthly", s.withLogging(s.handleMonthlyReport))

	return s
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withLogging tags each request with an id and logs method, path, status,
// and duration.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		slog.InfoContext(r.Context(), "Request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
