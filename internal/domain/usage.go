package domain

import "time"

// Metric identifies what a usage line item was metered on.
type Metric string

// Known provider metric types. The provider may introduce new ones at any
// time; unrecognized values are preserved as-is rather than rejected.
const (
	MetricCapacity      Metric = "capacity"
	MetricDataIn        Metric = "data_in"
	MetricDataOut       Metric = "data_out"
	MetricDataInternode Metric = "data_internode"
	MetricStorageAPI    Metric = "storage_api"
	MetricStorageBytes  Metric = "storage_bytes"
	MetricUnknown       Metric = "unknown"
)

// Unit is the unit a quantity is expressed in.
type Unit string

// Units the metering API is known to report.
const (
	UnitHours    Unit = "hour"
	UnitGB       Unit = "gb"
	UnitRequests Unit = "request"
	UnitCredits  Unit = "credit"
	UnitUnknown  Unit = "unknown"
)

// UsageRecord is one billing-period line item for one deployment resource,
// exactly as fetched from the metering API. Immutable once constructed.
type UsageRecord struct {
	DeploymentID   string
	DeploymentName string
	ResourceID     string
	Metric         Metric
	WindowStart    time.Time
	WindowEnd      time.Time
	Quantity       float64
	Unit           Unit
	UnitCost       float64
	Cost           float64
}

// Window is a bounded time range [Start, End) over which usage is fetched.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsEmpty reports whether the window covers no time.
func (w Window) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Chunks splits the window into consecutive sub-windows of at most size.
// The last chunk may be shorter. An empty window yields no chunks.
func (w Window) Chunks(size time.Duration) []Window {
	if w.IsEmpty() || size <= 0 {
		return nil
	}
	var out []Window
	for start := w.Start; start.Before(w.End); start = start.Add(size) {
		end := start.Add(size)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out
}
