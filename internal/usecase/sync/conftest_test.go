package sync

import (
	"context"
	"time"

	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/domain/batch"
)

// --- Mocks ---

// mockFetcher serves records per requested window.
type mockFetcher struct {
	recordsFn func(w domain.Window) []domain.UsageRecord
	fetchErr  error
	org       domain.Organization
	orgErr    error
	windows   []domain.Window
}

func (m *mockFetcher) FetchUsage(_ context.Context, w domain.Window, visit func(domain.UsageRecord) error) error {
	m.windows = append(m.windows, w)
	if m.fetchErr != nil {
		return m.fetchErr
	}
	if m.recordsFn == nil {
		return nil
	}
	for _, rec := range m.recordsFn(w) {
		if err := visit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockFetcher) GetOrganization(context.Context) (domain.Organization, error) {
	return m.org, m.orgErr
}

// mockIndexer records upserted documents; bulkFn overrides the outcome.
type mockIndexer struct {
	bulkFn      func(docs []domain.CostDocument) (batch.Summary, error)
	upserted    []domain.CostDocument
	batches     int
	resetCalled bool
	ensured     bool
	ensureErr   error
}

func (m *mockIndexer) Ensure(context.Context) error {
	m.ensured = true
	return m.ensureErr
}

func (m *mockIndexer) Reset(context.Context) error {
	m.resetCalled = true
	return nil
}

func (m *mockIndexer) BulkUpsert(_ context.Context, docs []domain.CostDocument) (batch.Summary, error) {
	m.batches++
	m.upserted = append(m.upserted, docs...)
	if m.bulkFn != nil {
		return m.bulkFn(docs)
	}
	return batch.Summary{Succeeded: len(docs)}, nil
}

// mockCheckpoints is an in-memory checkpoint store recording every write.
type mockCheckpoints struct {
	stored       *domain.Checkpoint
	lookbackDays int
	writes       []domain.Checkpoint
	writeErr     error
}

func (m *mockCheckpoints) Read(_ context.Context, now time.Time) (domain.Checkpoint, error) {
	if m.stored == nil {
		return m.Default(now), nil
	}
	return *m.stored, nil
}

func (m *mockCheckpoints) Write(_ context.Context, cp domain.Checkpoint) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, cp)
	m.stored = &cp
	return nil
}

func (m *mockCheckpoints) Default(now time.Time) domain.Checkpoint {
	days := m.lookbackDays
	if days == 0 {
		days = 30
	}
	return domain.DefaultCheckpoint(now, days)
}

// --- Fixtures ---

var syncNow = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

func checkpointAt(t time.Time) *domain.Checkpoint {
	return &domain.Checkpoint{LastSyncedThrough: t, LastRunStatus: domain.RunStatusOK}
}

// recordsPerWindow returns n records evenly spread over the window start.
func recordsPerWindow(n int) func(w domain.Window) []domain.UsageRecord {
	return func(w domain.Window) []domain.UsageRecord {
		out := make([]domain.UsageRecord, n)
		for i := range out {
			out[i] = domain.UsageRecord{
				DeploymentID: "dep-1",
				ResourceID:   "res-" + string(rune('a'+i%26)),
				Metric:       domain.MetricCapacity,
				WindowStart:  w.Start.Add(time.Duration(i) * time.Minute),
				WindowEnd:    w.Start.Add(time.Duration(i+1) * time.Minute),
				Quantity:     1,
				Unit:         domain.UnitHours,
				Cost:         0.25,
			}
		}
		return out
	}
}

func newTestService(f *mockFetcher, ix *mockIndexer, cps *mockCheckpoints, opts Options) *Service {
	return New(f, ix, cps, opts, nil, nil).WithClock(func() time.Time { return syncNow })
}
