package e2e

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/fabrica-erp/fabrica/internal/consol"
	jobmetrics "github.com/fabrica-erp/fabrica/internal/jobs"
	_ "github.com/fabrica-erp/fabrica/internal/testing/guard"
	"github.com/fabrica-erp/fabrica/jobs"
)

type stubRecalculator struct {
	calls []struct {
		tenant int64
		month  string
	}
	err error
}

func (s *stubRecalculator) Recalculate(_ context.Context, tenantID int64, month string, _ int64, _ bool) (consol.Snapshot, error) {
	s.calls = append(s.calls, struct {
		tenant int64
		month  string
	}{tenant: tenantID, month: month})
	return consol.Snapshot{TenantID: tenantID, Month: month, Exists: true}, s.err
}

type stubTenants struct {
	ids []int64
}

func (s *stubTenants) ActiveTenantIDs(_ context.Context) ([]int64, error) {
	return append([]int64(nil), s.ids...), nil
}

func TestConsolidateRefreshJob(t *testing.T) {
	tenants := &stubTenants{ids: []int64{11, 22, 33}}
	service := &stubRecalculator{}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := jobs.NewConsolidateRefreshJob(service, tenants, nil, metrics)
	task, err := jobs.NewConsolidateRefreshTask(0, "2026-02")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("job handle: %v", err)
	}
	if len(service.calls) != 3 {
		t.Fatalf("expected 3 refresh calls, got %d", len(service.calls))
	}
	for _, call := range service.calls {
		if call.month != "2026-02" {
			t.Fatalf("expected month 2026-02, got %s", call.month)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "fabrica_jobs_total", map[string]string{"job": jobs.TaskConsolidateRefresh, "status": "success"}, 1) {
		t.Fatalf("expected fabrica_jobs_total increment for consolidate refresh")
	}
	if !metricExists(families, "fabrica_job_duration_seconds") {
		t.Fatalf("expected fabrica_job_duration_seconds to be recorded")
	}
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
