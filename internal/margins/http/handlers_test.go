package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-erp/fabrica/internal/margins"
)

type fakeMargins struct {
	report margins.Report
	err    error
}

func (f *fakeMargins) ComputeMargins(context.Context, int64, string) (margins.Report, error) {
	return f.report, f.err
}

type fakeConfig struct {
	rules []margins.Rule
	links []margins.CategoryLink
	err   error
}

func (f *fakeConfig) Rules(context.Context, int64) ([]margins.Rule, error) { return f.rules, f.err }
func (f *fakeConfig) Links(context.Context, int64) ([]margins.CategoryLink, error) {
	return f.links, f.err
}

func newTestRouter(marginSvc *fakeMargins, config *fakeConfig) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, marginSvc, config)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestGetReport(t *testing.T) {
	svc := &fakeMargins{report: margins.Report{
		TenantID: 7,
		Month:    "2026-08",
		Mode:     margins.ModeUniform,
		Warnings: []string{"no distribution configured; spreading indirect cost by share of units produced"},
	}}
	r := newTestRouter(svc, &fakeConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/margins/7/2026-08", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"mode":"uniform"`)
	require.Contains(t, rec.Body.String(), "no distribution configured")
}

func TestGetReportRejectsBadParams(t *testing.T) {
	r := newTestRouter(&fakeMargins{}, &fakeConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/margins/abc/2026-08", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/margins/7/2026-13", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReportMapsServiceError(t *testing.T) {
	r := newTestRouter(&fakeMargins{err: errors.New("production offline")}, &fakeConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/margins/7/2026-08", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetDistribution(t *testing.T) {
	config := &fakeConfig{
		rules: []margins.Rule{{ID: 1, TenantID: 7, IndirectCategory: "energy", CategoryID: 10, CategoryName: "Bloques"}},
		links: []margins.CategoryLink{{ProductID: 1, CategoryID: 10, CategoryName: "Bloques"}},
	}
	r := newTestRouter(&fakeMargins{}, config)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/margins/7/distribution", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"indirect_category":"energy"`)
	require.Contains(t, rec.Body.String(), `"links"`)
}
