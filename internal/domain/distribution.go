package domain

// MetricType identifies a tracked fund metric.
type MetricType string

// Metric type constants.
const (
	MetricIRR        MetricType = "irr"
	MetricMultiple   MetricType = "multiple"
	MetricDPI        MetricType = "dpi"
	MetricTVPI       MetricType = "tvpi"
	MetricTotalValue MetricType = "totalValue"
)

// AllMetricTypes lists every metric tracked per run, in stable order.
var AllMetricTypes = []MetricType{
	MetricIRR,
	MetricMultiple,
	MetricDPI,
	MetricTVPI,
	MetricTotalValue,
}

// NonNegative reports whether a metric is required to be >= 0.
// IRR can legitimately be negative; ratios and totals cannot.
func (m MetricType) NonNegative() bool {
	return m != MetricIRR
}

// Percentiles holds the five tracked percentile points.
type Percentiles struct {
	P5  float64
	P25 float64
	P50 float64
	P75 float64
	P95 float64
}

// Statistics holds summary statistics over trial outcomes.
type Statistics struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Count  int
}

// MetricDistribution is the simulated outcome distribution for one
// metric. Invariants (enforced by metrics.Validate):
// percentiles non-decreasing, Min <= Max, non-IRR metrics >= 0.
type MetricDistribution struct {
	MetricType  MetricType
	Percentiles Percentiles
	Statistics  Statistics
}

// SimulationResult is the validated output of one engine run.
type SimulationResult struct {
	FundID        string
	Mode          SimulationMode
	EngineKind    string
	NumTrials     int
	Seed          int64
	Distributions map[MetricType]*MetricDistribution
}
