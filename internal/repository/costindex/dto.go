package costindex

import (
	"strconv"
	"time"

	"github.com/kailas-cloud/costdex/internal/domain"
)

// buildHashFields converts a CostDocument into a flat map[string]string for
// HSET. Zero-valued optional fields are omitted to keep hashes compact.
func buildHashFields(doc *domain.CostDocument) map[string]string {
	m := map[string]string{
		"kind": string(doc.Kind),
		"ts":   strconv.FormatInt(doc.Timestamp.UTC().Unix(), 10),
		"org":  doc.OrgID,
		"cost": formatFloat(doc.Cost),
	}
	if doc.OrgName != "" {
		m["org_name"] = doc.OrgName
	}
	if doc.DeploymentID != "" {
		m["deployment"] = doc.DeploymentID
	}
	if doc.DeploymentName != "" {
		m["deployment_name"] = doc.DeploymentName
	}
	if doc.ResourceID != "" {
		m["resource"] = doc.ResourceID
	}
	if doc.Metric != "" {
		m["metric"] = string(doc.Metric)
	}
	if doc.Unit != "" {
		m["unit"] = string(doc.Unit)
	}
	m["quantity"] = formatFloat(doc.Quantity)
	if doc.UnitCost != 0 {
		m["unit_cost"] = formatFloat(doc.UnitCost)
	}
	if doc.CostPerHour != 0 {
		m["cost_per_hour"] = formatFloat(doc.CostPerHour)
	}
	if doc.RunID != "" {
		m["run_id"] = doc.RunID
	}
	if !doc.IngestedAt.IsZero() {
		m["ingested_at"] = strconv.FormatInt(doc.IngestedAt.UTC().Unix(), 10)
	}
	return m
}

// parseHashFields converts a flat hash map back into a CostDocument.
func parseHashFields(id string, m map[string]string) domain.CostDocument {
	doc := domain.CostDocument{
		ID:             id,
		Kind:           domain.DocumentKind(m["kind"]),
		Timestamp:      parseUnix(m["ts"]),
		OrgID:          m["org"],
		OrgName:        m["org_name"],
		DeploymentID:   m["deployment"],
		DeploymentName: m["deployment_name"],
		ResourceID:     m["resource"],
		Metric:         domain.Metric(m["metric"]),
		Unit:           domain.Unit(m["unit"]),
		RunID:          m["run_id"],
		IngestedAt:     parseUnix(m["ingested_at"]),
	}
	doc.Quantity, _ = strconv.ParseFloat(m["quantity"], 64)
	doc.UnitCost, _ = strconv.ParseFloat(m["unit_cost"], 64)
	doc.Cost, _ = strconv.ParseFloat(m["cost"], 64)
	doc.CostPerHour, _ = strconv.ParseFloat(m["cost_per_hour"], 64)
	return doc
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseUnix(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
