package core

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"iptvpanel/internal/scheduler"
	"iptvpanel/internal/types"
)

// sweepRequest is the optional body of POST /v1/sweeps.
type sweepRequest struct {
	ReferenceDate string `json:"reference_date"`
	DryRun        bool   `json:"dry_run"`
}

// purgeRequest is the optional body of POST /v1/ledger/purge.
type purgeRequest struct {
	ReferenceDate string `json:"reference_date"`
}

// HandleLatestSweep serves GET /v1/sweeps/latest.
func (s *Server) HandleLatestSweep(w http.ResponseWriter, r *http.Request) {
	report := s.Reports.LastReport()
	if report == nil {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundReport, "no sweep has completed since startup", nil))
		return
	}
	Data(w, r, http.StatusOK, report)
}

// HandleRunSweep serves POST /v1/sweeps. The sweep runs synchronously
// under the day's job lock; a concurrent run answers 409.
func (s *Server) HandleRunSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	res, err := s.Runner.Run(r.Context(), scheduler.TaskPayload{
		Task:          scheduler.TaskReminderSweep,
		ReferenceDate: req.ReferenceDate,
		DryRun:        req.DryRun,
	})
	if err != nil {
		s.Logger.WarnContext(r.Context(), "manual sweep failed", "error", err)
		Error(w, r, err)
		return
	}
	Data(w, r, http.StatusOK, res)
}

// HandlePurgeLedger serves POST /v1/ledger/purge.
func (s *Server) HandlePurgeLedger(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	res, err := s.Runner.Run(r.Context(), scheduler.TaskPayload{
		Task:          scheduler.TaskPurgeLedger,
		ReferenceDate: req.ReferenceDate,
	})
	if err != nil {
		s.Logger.WarnContext(r.Context(), "manual ledger purge failed", "error", err)
		Error(w, r, err)
		return
	}
	Data(w, r, http.StatusOK, res)
}

// HandleLedgerHistory serves GET /v1/ledger/{hardwareID}?limit=N.
func (s *Server) HandleLedgerHistory(w http.ResponseWriter, r *http.Request) {
	hw := types.NormalizeHardwareID(chi.URLParam(r, "hardwareID"))
	if hw == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "hardware id is required", nil))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "limit must be a positive integer", nil))
			return
		}
		limit = n
	}

	entries, err := s.Ledger.History(r.Context(), hw, limit)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "ledger history lookup failed", "hardware_id", hw, "error", err)
		Error(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.LedgerEntry{}
	}
	Data(w, r, http.StatusOK, map[string]any{
		"hardware_id": hw,
		"entries":     entries,
	})
}
