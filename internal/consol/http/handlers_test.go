package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-erp/fabrica/internal/consol"
	"github.com/fabrica-erp/fabrica/internal/periods"
)

type fakeConsol struct {
	snapshot consol.Snapshot
	err      error
	lastArgs struct {
		tenantID int64
		month    string
		userID   int64
		force    bool
	}
}

func (f *fakeConsol) GetSnapshot(_ context.Context, tenantID int64, month string) (consol.Snapshot, error) {
	f.lastArgs.tenantID = tenantID
	f.lastArgs.month = month
	return f.snapshot, f.err
}

func (f *fakeConsol) Recalculate(_ context.Context, tenantID int64, month string, userID int64, force bool) (consol.Snapshot, error) {
	f.lastArgs.tenantID = tenantID
	f.lastArgs.month = month
	f.lastArgs.userID = userID
	f.lastArgs.force = force
	return f.snapshot, f.err
}

type fakePeriods struct {
	err         error
	transitions []periods.Transition
}

func (f *fakePeriods) Close(context.Context, int64, string, int64) error  { return f.err }
func (f *fakePeriods) Reopen(context.Context, int64, string, int64) error { return f.err }
func (f *fakePeriods) History(context.Context, int64, string, int) ([]periods.Transition, error) {
	return f.transitions, f.err
}

func newTestRouter(consolSvc *fakeConsol, periodSvc *fakePeriods) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, consolSvc, periodSvc)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestGetSnapshot(t *testing.T) {
	svc := &fakeConsol{snapshot: consol.EmptySnapshot(7, "2026-08")}
	r := newTestRouter(svc, &fakePeriods{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/7/2026-08/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), svc.lastArgs.tenantID)
	require.Equal(t, "2026-08", svc.lastArgs.month)
	require.Contains(t, rec.Body.String(), `"exists":false`)
}

func TestGetSnapshotRejectsBadParams(t *testing.T) {
	r := newTestRouter(&fakeConsol{}, &fakePeriods{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/0/2026-08/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/7/08-2026/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecalculatePassesThrough(t *testing.T) {
	svc := &fakeConsol{snapshot: consol.Snapshot{TenantID: 7, Month: "2026-08", Exists: true}}
	r := newTestRouter(svc, &fakePeriods{})

	body := strings.NewReader(`{"user_id": 3, "force": true}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/recalculate", body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(3), svc.lastArgs.userID)
	require.True(t, svc.lastArgs.force)
}

func TestRecalculateValidatesBody(t *testing.T) {
	r := newTestRouter(&fakeConsol{}, &fakePeriods{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/recalculate", strings.NewReader(`{"force": true}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/recalculate", strings.NewReader(`not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecalculateClosedPeriodConflicts(t *testing.T) {
	svc := &fakeConsol{err: consol.ErrPeriodClosed}
	r := newTestRouter(svc, &fakePeriods{})

	body := strings.NewReader(`{"user_id": 3}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/recalculate", body))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Period Closed")
}

func TestCloseMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"already closed", periods.ErrAlreadyClosed, http.StatusConflict},
		{"no consolidation", periods.ErrNoConsolidation, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeConsol{}, &fakePeriods{err: tc.err})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/close", strings.NewReader(`{"user_id": 3}`)))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCloseAndReopenReportStatus(t *testing.T) {
	r := newTestRouter(&fakeConsol{}, &fakePeriods{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/close", strings.NewReader(`{"user_id": 3}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"closed"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consolidation/7/2026-08/reopen", strings.NewReader(`{"user_id": 3}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"open"`)
}

func TestHistoryListsTransitions(t *testing.T) {
	svc := &fakePeriods{transitions: []periods.Transition{
		{ID: 1, TenantID: 7, Month: "2026-08", FromStatus: periods.StatusOpen, ToStatus: periods.StatusClosed, ActorID: 3},
	}}
	r := newTestRouter(&fakeConsol{}, svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/7/2026-08/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"to_status":"CLOSED"`)
}
