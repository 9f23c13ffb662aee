package provider

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/domain"
)

// orgResponse is the wire shape of the organization lookup endpoint.
type orgResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// usagePage is the wire shape of one page of the usage endpoint.
type usagePage struct {
	Records  []usageItem `json:"records"`
	NextPage string      `json:"next_page"`
}

// usageItem is one raw usage line item as the API returns it.
type usageItem struct {
	DeploymentID   string  `json:"deployment_id"`
	DeploymentName string  `json:"deployment_name"`
	Resource       string  `json:"resource"`
	Metric         string  `json:"metric"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	Rate           struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	} `json:"rate"`
	Cost float64 `json:"cost"`
}

// costsTotal is the wire shape of the aggregate costs endpoint.
type costsTotal struct {
	Costs struct {
		Total float64 `json:"total"`
	} `json:"costs"`
}

// toRecord converts a wire item into a domain record. Timestamps that fail
// to parse fall back to the requested window bounds so one malformed field
// never drops a line item; the fallback is logged at debug.
func (it usageItem) toRecord(w domain.Window, log *zap.Logger) domain.UsageRecord {
	from := parseTimeOr(it.From, w.Start, "from", log)
	to := parseTimeOr(it.To, w.End, "to", log)

	return domain.UsageRecord{
		DeploymentID:   it.DeploymentID,
		DeploymentName: it.DeploymentName,
		ResourceID:     it.Resource,
		Metric:         domain.Metric(it.Metric),
		WindowStart:    from,
		WindowEnd:      to,
		Quantity:       it.Quantity,
		Unit:           domain.Unit(it.Unit),
		UnitCost:       it.Rate.Value,
		Cost:           it.Cost,
	}
}

func parseTimeOr(s string, fallback time.Time, field string, log *zap.Logger) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if log == nil {
			log = zap.NewNop()
		}
		log.Debug("unparseable record timestamp, using window bound",
			zap.String("field", field), zap.String("value", s))
		return fallback
	}
	return t
}
