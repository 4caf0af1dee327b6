// Package http exposes the margin report and distribution config endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fabrica-erp/fabrica/internal/margins"
	"github.com/fabrica-erp/fabrica/internal/platform/httpx"
	"github.com/fabrica-erp/fabrica/internal/shared"
)

type marginService interface {
	ComputeMargins(ctx context.Context, tenantID int64, month string) (margins.Report, error)
}

type configStore interface {
	Rules(ctx context.Context, tenantID int64) ([]margins.Rule, error)
	Links(ctx context.Context, tenantID int64) ([]margins.CategoryLink, error)
}

// Handler wires the per-product margin endpoints.
type Handler struct {
	logger  *slog.Logger
	margins marginService
	config  configStore
}

// NewHandler constructs the margins handler.
func NewHandler(logger *slog.Logger, marginSvc marginService, config configStore) *Handler {
	return &Handler{logger: logger, margins: marginSvc, config: config}
}

// MountRoutes registers the margin endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/margins/{tenantID}", func(r chi.Router) {
		r.Get("/distribution", h.getDistribution)
		r.Get("/{month}", h.getReport)
	})
}

type distributionResponse struct {
	Rules []margins.Rule         `json:"rules"`
	Links []margins.CategoryLink `json:"links"`
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}
	month := chi.URLParam(r, "month")
	if err := shared.ValidateMonth(month); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "month must use the YYYY-MM format")
		return
	}
	report, err := h.margins.ComputeMargins(r.Context(), tenantID, month)
	if err != nil {
		h.logger.Error("compute margins", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) getDistribution(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}
	rules, err := h.config.Rules(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("list distribution rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	links, err := h.config.Links(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("list category links", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, distributionResponse{Rules: rules, Links: links})
}

func (h *Handler) tenantParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant id must be a positive integer")
		return 0, false
	}
	return tenantID, true
}
