// Package http exposes the consolidation and period lifecycle endpoints.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/fabrica-erp/fabrica/internal/consol"
	"github.com/fabrica-erp/fabrica/internal/periods"
	"github.com/fabrica-erp/fabrica/internal/platform/httpx"
	"github.com/fabrica-erp/fabrica/internal/shared"
)

const historyPageLimit = 50

type consolService interface {
	GetSnapshot(ctx context.Context, tenantID int64, month string) (consol.Snapshot, error)
	Recalculate(ctx context.Context, tenantID int64, month string, userID int64, force bool) (consol.Snapshot, error)
}

type periodService interface {
	Close(ctx context.Context, tenantID int64, month string, actorID int64) error
	Reopen(ctx context.Context, tenantID int64, month string, actorID int64) error
	History(ctx context.Context, tenantID int64, month string, limit int) ([]periods.Transition, error)
}

// Handler wires the consolidation snapshot and period lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	consol    consolService
	periods   periodService
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the consolidation handler. Mutating endpoints are
// rate limited per client IP.
func NewHandler(logger *slog.Logger, consolSvc consolService, periodSvc periodService) *Handler {
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		consol:    consolSvc,
		periods:   periodSvc,
		validate:  validator.New(),
		rateLimit: limiter,
	}
}

// MountRoutes registers the consolidation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consolidation/{tenantID}/{month}", func(r chi.Router) {
		r.Get("/", h.getSnapshot)
		r.Get("/history", h.history)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/recalculate", h.recalculate)
			r.Post("/close", h.closePeriod)
			r.Post("/reopen", h.reopenPeriod)
		})
	})
}

type recalculateRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
	Force  bool  `json:"force"`
}

type actorRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type statusResponse struct {
	Status string `json:"status"`
	Month  string `json:"month"`
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID, month, ok := h.params(w, r)
	if !ok {
		return
	}
	snapshot, err := h.consol.GetSnapshot(r.Context(), tenantID, month)
	if err != nil {
		h.respondError(w, "get snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	tenantID, month, ok := h.params(w, r)
	if !ok {
		return
	}
	var req recalculateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id must be a positive integer")
		return
	}
	snapshot, err := h.consol.Recalculate(r.Context(), tenantID, month, req.UserID, req.Force)
	if err != nil {
		h.respondError(w, "recalculate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "close", h.periods.Close)
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reopen", h.periods.Reopen)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64, string, int64) error) {
	tenantID, month, ok := h.params(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id must be a positive integer")
		return
	}
	if err := fn(r.Context(), tenantID, month, req.UserID); err != nil {
		h.respondError(w, action, err)
		return
	}
	status := "closed"
	if action == "reopen" {
		status = "open"
	}
	httpx.JSON(w, http.StatusOK, statusResponse{Status: status, Month: month})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	tenantID, month, ok := h.params(w, r)
	if !ok {
		return
	}
	transitions, err := h.periods.History(r.Context(), tenantID, month, historyPageLimit)
	if err != nil {
		h.respondError(w, "history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transitions)
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant id must be a positive integer")
		return 0, "", false
	}
	month := chi.URLParam(r, "month")
	if err := shared.ValidateMonth(month); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "month must use the YYYY-MM format")
		return 0, "", false
	}
	return tenantID, month, true
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, consol.ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", "period is closed; reopen it or pass force")
	case errors.Is(err, periods.ErrAlreadyClosed):
		httpx.Problem(w, http.StatusConflict, "Already Closed", "period is already closed")
	case errors.Is(err, periods.ErrAlreadyOpen):
		httpx.Problem(w, http.StatusConflict, "Already Open", "period is already open")
	case errors.Is(err, periods.ErrNoConsolidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Consolidation", "no consolidation snapshot exists for this month")
	case errors.Is(err, consol.ErrUnknownTenant):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Tenant", "tenant does not exist")
	case errors.Is(err, shared.ErrInvalidMonth):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "month must use the YYYY-MM format")
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
