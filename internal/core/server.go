// Package core provides the operator HTTP API of the reminder daemon. It
// exposes health, the latest sweep report, manual sweeps and per-device
// ledger history behind a chi router with the usual cross-cutting
// middleware: panic recovery, request ids, request logging and the ops key
// check.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"iptvpanel/internal/scheduler"
	"iptvpanel/internal/types"
)

// defaultRequestTimeout covers a manual sweep over a large panel.
const defaultRequestTimeout = 10 * time.Minute

// TaskRunner executes scheduled tasks under the job lock.
type TaskRunner interface {
	Run(ctx context.Context, p scheduler.TaskPayload) (*scheduler.RunResult, error)
}

// ReportSource returns the most recent sweep report held in memory.
type ReportSource interface {
	LastReport() *types.SweepReport
}

// LedgerReader reads a device's ledger history.
type LedgerReader interface {
	History(ctx context.Context, hardwareID string, limit int) ([]types.LedgerEntry, error)
}

// Deps are the services the ops API calls into.
type Deps struct {
	Runner       TaskRunner
	Reports      ReportSource
	Ledger       LedgerReader
	HealthProbes []HealthProbe
	// APIKeyHash is a bcrypt hash of the operator key. Empty disables
	// POST endpoints and leaves the read endpoints open.
	APIKeyHash     string
	RequestTimeout time.Duration
}

// Server is the ops API.
type Server struct {
	Logger       *slog.Logger
	Runner       TaskRunner
	Reports      ReportSource
	Ledger       LedgerReader
	HealthProbes []HealthProbe

	apiKeyHash     []byte
	requestTimeout time.Duration
	router         *chi.Mux
}

// NewServer validates deps and mounts all routes.
func NewServer(deps Deps, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if deps.Runner == nil || deps.Reports == nil || deps.Ledger == nil {
		return nil, errors.New("runner, report source and ledger must not be nil")
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		Logger:         logger,
		Runner:         deps.Runner,
		Reports:        deps.Reports,
		Ledger:         deps.Ledger,
		HealthProbes:   deps.HealthProbes,
		requestTimeout: deps.RequestTimeout,
		router:         chi.NewRouter(),
	}
	if deps.APIKeyHash != "" {
		if err := validateKeyHash(deps.APIKeyHash); err != nil {
			return nil, fmt.Errorf("ops api key hash: %w", err)
		}
		s.apiKeyHash = []byte(deps.APIKeyHash)
	} else {
		logger.Warn("ops api key hash not configured, manual sweeps are disabled")
	}

	s.mountRoutes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) mountRoutes() {
	r := s.router
	r.Use(s.Recoverer)
	r.Use(ContextTimeoutMiddleware(s.requestTimeout))
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(s.Logger, []string{OpsKeyHeader, "Authorization"}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "no such route", nil))
	})

	r.Get("/health", s.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.RequireOpsKey(false))
			r.Get("/sweeps/latest", s.HandleLatestSweep)
			r.Get("/ledger/{hardwareID}", s.HandleLedgerHistory)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.RequireOpsKey(true))
			r.Post("/sweeps", s.HandleRunSweep)
			r.Post("/ledger/purge", s.HandlePurgeLedger)
		})
	})
}
