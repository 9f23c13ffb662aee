package sync

import (
	"testing"
	"time"

	"github.com/kailas-cloud/costdex/internal/domain"
)

var (
	transformOrg  = domain.Organization{ID: "org-123", Name: "Acme Corp"}
	transformTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
)

func baseRecord() domain.UsageRecord {
	return domain.UsageRecord{
		DeploymentID:   "dep-1",
		DeploymentName: "prod-cluster",
		ResourceID:     "res-1",
		Metric:         domain.MetricCapacity,
		WindowStart:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:      time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		Quantity:       8,
		Unit:           domain.UnitHours,
		UnitCost:       0.5,
		Cost:           4,
	}
}

func TestTransform_Complete(t *testing.T) {
	doc := Transform(baseRecord(), transformOrg, "run-1", transformTime, nil)

	if doc.Kind != domain.KindUsage {
		t.Errorf("Kind = %q", doc.Kind)
	}
	if doc.ID == "" {
		t.Fatal("empty document id")
	}
	if doc.OrgID != "org-123" || doc.OrgName != "Acme Corp" {
		t.Errorf("org = %q / %q", doc.OrgID, doc.OrgName)
	}
	if !doc.Timestamp.Equal(baseRecord().WindowStart) {
		t.Errorf("Timestamp = %v", doc.Timestamp)
	}
	// 4 credits over a 2h window.
	if doc.CostPerHour != 2 {
		t.Errorf("CostPerHour = %f, want 2", doc.CostPerHour)
	}
	if doc.RunID != "run-1" || !doc.IngestedAt.Equal(transformTime) {
		t.Errorf("run metadata: %q / %v", doc.RunID, doc.IngestedAt)
	}
}

func TestTransform_Deterministic(t *testing.T) {
	a := Transform(baseRecord(), transformOrg, "run-1", transformTime, nil)
	b := Transform(baseRecord(), transformOrg, "run-2", transformTime.Add(time.Hour), nil)

	// The id depends only on the natural key, never on run metadata.
	if a.ID != b.ID {
		t.Errorf("ids differ across runs: %s vs %s", a.ID, b.ID)
	}
}

func TestTransform_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.UsageRecord)
		check  func(t *testing.T, doc domain.CostDocument)
	}{
		{
			name:   "empty metric",
			mutate: func(r *domain.UsageRecord) { r.Metric = "" },
			check: func(t *testing.T, doc domain.CostDocument) {
				if doc.Metric != domain.MetricUnknown {
					t.Errorf("Metric = %q, want unknown", doc.Metric)
				}
			},
		},
		{
			name:   "unrecognized unit",
			mutate: func(r *domain.UsageRecord) { r.Unit = "furlong" },
			check: func(t *testing.T, doc domain.CostDocument) {
				if doc.Unit != domain.UnitUnknown {
					t.Errorf("Unit = %q, want unknown", doc.Unit)
				}
			},
		},
		{
			name:   "negative quantity",
			mutate: func(r *domain.UsageRecord) { r.Quantity = -3 },
			check: func(t *testing.T, doc domain.CostDocument) {
				if doc.Quantity != 0 {
					t.Errorf("Quantity = %f, want 0", doc.Quantity)
				}
			},
		},
		{
			name:   "empty deployment id",
			mutate: func(r *domain.UsageRecord) { r.DeploymentID = "" },
			check: func(t *testing.T, doc domain.CostDocument) {
				if doc.DeploymentID != "unknown" {
					t.Errorf("DeploymentID = %q, want unknown", doc.DeploymentID)
				}
				if doc.ID == "" {
					t.Error("id not derivable with missing deployment")
				}
			},
		},
		{
			name:   "inverted window",
			mutate: func(r *domain.UsageRecord) { r.WindowEnd = r.WindowStart.Add(-time.Hour) },
			check: func(t *testing.T, doc domain.CostDocument) {
				if doc.CostPerHour != 0 {
					t.Errorf("CostPerHour = %f, want 0", doc.CostPerHour)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := baseRecord()
			tt.mutate(&rec)
			tt.check(t, Transform(rec, transformOrg, "run-1", transformTime, nil))
		})
	}
}

func TestTransform_NeverDrops(t *testing.T) {
	// A maximally broken record still yields an indexable document.
	doc := Transform(domain.UsageRecord{}, domain.Organization{}, "", time.Time{}, nil)
	if doc.ID == "" {
		t.Fatal("broken record produced no id")
	}
	if doc.Kind != domain.KindUsage {
		t.Errorf("Kind = %q", doc.Kind)
	}
}
