package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DocumentKind distinguishes the document families sharing the cost index.
type DocumentKind string

// Document kinds.
const (
	KindUsage    DocumentKind = "usage"
	KindPurchase DocumentKind = "purchase"
	KindOverage  DocumentKind = "overage"
	KindForecast DocumentKind = "forecast"
)

// docIDNamespace seeds the deterministic document id derivation. Changing it
// would orphan every previously indexed document.
var docIDNamespace = uuid.MustParse("8a56e2b0-33d1-4f0a-9c6b-4f1f6d2a7e19")

// CostDocument is the destination-schema representation of one cost line.
// Its ID is a pure function of the source record's natural key, so repeated
// ingestion of the same window overwrites instead of duplicating.
type CostDocument struct {
	ID             string
	Kind           DocumentKind
	Timestamp      time.Time
	OrgID          string
	OrgName        string
	DeploymentID   string
	DeploymentName string
	ResourceID     string
	Metric         Metric
	Quantity       float64
	Unit           Unit
	UnitCost       float64
	Cost           float64
	CostPerHour    float64

	// Ingestion metadata.
	RunID      string
	IngestedAt time.Time
}

// UsageDocumentID derives the deterministic id for a usage document from its
// natural key: deployment id, resource id and window start.
func UsageDocumentID(deploymentID, resourceID string, windowStart time.Time) string {
	key := deploymentID + "|" + resourceID + "|" + strconv.FormatInt(windowStart.UTC().Unix(), 10)
	return uuid.NewMD5(docIDNamespace, []byte(key)).String()
}

// AdjustmentDocumentID derives the deterministic id for a purchase or
// overage document declared in configuration.
func AdjustmentDocumentID(kind DocumentKind, orgID string, day time.Time) string {
	key := fmt.Sprintf("%s|%s|%s", kind, orgID, day.UTC().Format("2006-01-02"))
	return uuid.NewMD5(docIDNamespace, []byte(key)).String()
}

// ForecastDocumentID derives the deterministic id for a forecast document,
// one per org per future day.
func ForecastDocumentID(orgID string, day time.Time) string {
	return AdjustmentDocumentID(KindForecast, orgID, day)
}
