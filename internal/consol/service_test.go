package consol

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/integration"
)

type fakeStore struct {
	snapshots map[string]Snapshot
	getErr    error
	upsertErr error
	upserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[string]Snapshot)}
}

func storeKey(tenantID int64, month string) string {
	return fmt.Sprintf("%d:%s", tenantID, month)
}

func (f *fakeStore) Get(ctx context.Context, tenantID int64, month string) (Snapshot, error) {
	if f.getErr != nil {
		return Snapshot{}, f.getErr
	}
	snap, ok := f.snapshots[storeKey(tenantID, month)]
	if !ok {
		return EmptySnapshot(tenantID, month), nil
	}
	return snap, nil
}

func (f *fakeStore) Upsert(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if f.upsertErr != nil {
		return Snapshot{}, f.upsertErr
	}
	f.upserts++
	key := storeKey(snap.TenantID, snap.Month)
	if existing, ok := f.snapshots[key]; ok {
		snap.IsClosed = existing.IsClosed
	} else {
		snap.IsClosed = false
	}
	snap.Exists = true
	f.snapshots[key] = snap
	return snap, nil
}

type fakeReader struct {
	name  string
	total decimal.Decimal
	err   error
	calls int
}

func (f *fakeReader) Name() string { return f.name }

func (f *fakeReader) Read(ctx context.Context, tenantID int64, month string) (integration.Summary, error) {
	f.calls++
	if f.err != nil {
		return integration.Summary{}, f.err
	}
	return integration.Summary{Total: f.total, Details: map[string]string{"domain": f.name}}, nil
}

type fakeSales struct {
	summary integration.SalesSummary
	err     error
	calls   int
}

func (f *fakeSales) Summarize(ctx context.Context, tenantID int64, month string) (integration.SalesSummary, error) {
	f.calls++
	if f.err != nil {
		return integration.SalesSummary{}, f.err
	}
	return f.summary, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testReaders() []integration.Reader {
	return []integration.Reader{
		&fakeReader{name: integration.DomainPayroll, total: dec("1000")},
		&fakeReader{name: integration.DomainPurchases, total: dec("2500.50")},
		&fakeReader{name: integration.DomainIndirect, total: dec("300")},
		&fakeReader{name: integration.DomainProduction, total: dec("1200.25")},
		&fakeReader{name: integration.DomainMaintenance, total: dec("99.25")},
	}
}

func testSales() *fakeSales {
	return &fakeSales{summary: integration.SalesSummary{
		TotalRevenue: dec("8000"),
		TotalCost:    dec("4100"),
		GrossMargin:  dec("3900"),
	}}
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	}
}

func TestRecalculateDerivesTotals(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testReaders(), testSales(), nil)
	svc.WithClock(fixedClock())

	snap, err := svc.Recalculate(context.Background(), 1, "2024-02", 7, false)
	if err != nil {
		t.Fatalf("Recalculate() error = %v", err)
	}
	if want := dec("5100"); !snap.TotalCost.Equal(want) {
		t.Fatalf("TotalCost = %s, want %s", snap.TotalCost, want)
	}
	if !snap.TotalCost.Equal(snap.Costs.Sum()) {
		t.Fatalf("TotalCost %s != sum of components %s", snap.TotalCost, snap.Costs.Sum())
	}
	if want := dec("8000"); !snap.TotalRevenue.Equal(want) {
		t.Fatalf("TotalRevenue = %s, want %s", snap.TotalRevenue, want)
	}
	if want := dec("2900"); !snap.NetResult.Equal(want) {
		t.Fatalf("NetResult = %s, want %s", snap.NetResult, want)
	}
	if !snap.NetResult.Equal(snap.TotalRevenue.Sub(snap.TotalCost)) {
		t.Fatalf("NetResult not conserved")
	}
	if snap.CalculatedBy != 7 {
		t.Fatalf("CalculatedBy = %d, want 7", snap.CalculatedBy)
	}
	if snap.SchemaVersion != SchemaVersion {
		t.Fatalf("SchemaVersion = %q", snap.SchemaVersion)
	}
	if len(snap.Details) != 6 {
		t.Fatalf("expected 6 detail payloads, got %d", len(snap.Details))
	}
}

func TestRecalculateIsIdempotentInEffect(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testReaders(), testSales(), nil)
	svc.WithClock(fixedClock())

	first, err := svc.Recalculate(context.Background(), 1, "2024-02", 7, false)
	if err != nil {
		t.Fatalf("first Recalculate() error = %v", err)
	}
	second, err := svc.Recalculate(context.Background(), 1, "2024-02", 7, false)
	if err != nil {
		t.Fatalf("second Recalculate() error = %v", err)
	}
	if !first.TotalCost.Equal(second.TotalCost) ||
		!first.TotalRevenue.Equal(second.TotalRevenue) ||
		!first.NetResult.Equal(second.NetResult) ||
		!first.Costs.Sum().Equal(second.Costs.Sum()) {
		t.Fatalf("repeated recalculation changed monetary fields: %+v vs %+v", first, second)
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("expected exactly one stored snapshot, got %d", len(store.snapshots))
	}
}

func TestRecalculateRejectsClosedPeriod(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testReaders(), testSales(), nil)
	svc.WithClock(fixedClock())

	before, err := svc.Recalculate(context.Background(), 1, "2024-02", 7, false)
	if err != nil {
		t.Fatalf("seed Recalculate() error = %v", err)
	}
	key := storeKey(1, "2024-02")
	locked := store.snapshots[key]
	locked.IsClosed = true
	store.snapshots[key] = locked

	readers := testReaders()
	sales := testSales()
	svc = NewService(store, readers, sales, nil)
	svc.WithClock(fixedClock())

	if _, err := svc.Recalculate(context.Background(), 1, "2024-02", 9, false); !errors.Is(err, ErrPeriodClosed) {
		t.Fatalf("Recalculate() error = %v, want ErrPeriodClosed", err)
	}
	for _, r := range readers {
		if fr := r.(*fakeReader); fr.calls != 0 {
			t.Fatalf("reader %s was invoked despite lock", fr.name)
		}
	}
	if sales.calls != 0 {
		t.Fatalf("sales reader was invoked despite lock")
	}
	after := store.snapshots[key]
	if !after.TotalCost.Equal(before.TotalCost) || !after.CalculatedAt.Equal(before.CalculatedAt) || after.CalculatedBy != before.CalculatedBy {
		t.Fatalf("locked snapshot was modified")
	}

	forced, err := svc.Recalculate(context.Background(), 1, "2024-02", 9, true)
	if err != nil {
		t.Fatalf("forced Recalculate() error = %v", err)
	}
	if !forced.IsClosed {
		t.Fatalf("forced recalculation must preserve the closed flag")
	}
	if forced.CalculatedBy != 9 {
		t.Fatalf("forced recalculation did not update provenance")
	}
}

func TestRecalculateAbortsOnUpstreamFailure(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testReaders(), testSales(), nil)
	svc.WithClock(fixedClock())

	before, err := svc.Recalculate(context.Background(), 1, "2024-02", 7, false)
	if err != nil {
		t.Fatalf("seed Recalculate() error = %v", err)
	}

	readers := testReaders()
	readers[2] = &fakeReader{name: integration.DomainIndirect, err: errors.New("upstream down")}
	svc = NewService(store, readers, testSales(), nil)
	svc.WithClock(fixedClock())

	if _, err := svc.Recalculate(context.Background(), 1, "2024-02", 8, false); err == nil {
		t.Fatalf("expected upstream failure to propagate")
	}
	after := store.snapshots[storeKey(1, "2024-02")]
	if !after.CalculatedAt.Equal(before.CalculatedAt) || after.CalculatedBy != before.CalculatedBy {
		t.Fatalf("failed recalculation must leave previous snapshot untouched")
	}
	if store.upserts != 1 {
		t.Fatalf("expected no upsert after failure, got %d", store.upserts)
	}
}

func TestGetSnapshotEmptyStateContract(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testReaders(), testSales(), nil)

	snap, err := svc.GetSnapshot(context.Background(), 42, "2030-01")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snap.Exists {
		t.Fatalf("expected Exists=false for never-consolidated month")
	}
	if snap.IsClosed {
		t.Fatalf("expected IsClosed=false for empty snapshot")
	}
	if !snap.TotalCost.IsZero() || !snap.TotalRevenue.IsZero() || !snap.NetResult.IsZero() {
		t.Fatalf("expected all-zero totals, got %+v", snap)
	}
	if snap.TenantID != 42 || snap.Month != "2030-01" {
		t.Fatalf("empty snapshot must echo the requested key")
	}
}

func TestRecalculateValidatesInput(t *testing.T) {
	svc := NewService(newFakeStore(), testReaders(), testSales(), nil)
	if _, err := svc.Recalculate(context.Background(), 0, "2024-02", 1, false); err == nil {
		t.Fatalf("expected tenant validation error")
	}
	if _, err := svc.Recalculate(context.Background(), 1, "2024-2", 1, false); err == nil {
		t.Fatalf("expected month validation error")
	}
}
