package sync

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/domain"
)

// knownUnits guards the unit fallback: anything the provider reports
// outside this set becomes UnitUnknown rather than polluting the index
// with free-form values.
var knownUnits = map[domain.Unit]bool{
	domain.UnitHours:    true,
	domain.UnitGB:       true,
	domain.UnitRequests: true,
	domain.UnitCredits:  true,
}

// Transform maps one provider usage record into the destination schema.
// It never fails: malformed fields map to documented fallbacks (logged at
// warn) so a single bad record cannot abort a batch.
//
// Fallbacks: empty metric -> "unknown"; unrecognized unit -> "unknown";
// negative quantity -> 0; empty deployment/resource ids -> "unknown"
// (they feed the document id, which must stay derivable); inverted window
// -> cost-per-hour 0.
func Transform(
	rec domain.UsageRecord,
	org domain.Organization,
	runID string,
	ingestedAt time.Time,
	log *zap.Logger,
) domain.CostDocument {
	if log == nil {
		log = zap.NewNop()
	}

	deploymentID := rec.DeploymentID
	if deploymentID == "" {
		log.Warn("usage record without deployment id", zap.String("resource", rec.ResourceID))
		deploymentID = "unknown"
	}
	resourceID := rec.ResourceID
	if resourceID == "" {
		log.Warn("usage record without resource id", zap.String("deployment", deploymentID))
		resourceID = "unknown"
	}

	metric := rec.Metric
	if metric == "" {
		metric = domain.MetricUnknown
	}

	unit := rec.Unit
	if !knownUnits[unit] {
		if unit != "" && unit != domain.UnitUnknown {
			log.Warn("unexpected usage unit",
				zap.String("unit", string(rec.Unit)),
				zap.String("deployment", deploymentID),
				zap.String("resource", resourceID),
			)
		}
		unit = domain.UnitUnknown
	}

	quantity := rec.Quantity
	if quantity < 0 {
		log.Warn("negative usage quantity",
			zap.Float64("quantity", rec.Quantity),
			zap.String("resource", resourceID),
		)
		quantity = 0
	}

	var costPerHour float64
	if hours := rec.WindowEnd.Sub(rec.WindowStart).Hours(); hours > 0 {
		costPerHour = rec.Cost / hours
	}

	return domain.CostDocument{
		ID:             domain.UsageDocumentID(deploymentID, resourceID, rec.WindowStart),
		Kind:           domain.KindUsage,
		Timestamp:      rec.WindowStart,
		OrgID:          org.ID,
		OrgName:        org.Name,
		DeploymentID:   deploymentID,
		DeploymentName: rec.DeploymentName,
		ResourceID:     resourceID,
		Metric:         metric,
		Quantity:       quantity,
		Unit:           unit,
		UnitCost:       rec.UnitCost,
		Cost:           rec.Cost,
		CostPerHour:    costPerHour,
		RunID:          runID,
		IngestedAt:     ingestedAt,
	}
}
