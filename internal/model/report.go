package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OperationKind identifies one of the fixed benchmark operation types.
type OperationKind string

const (
	OpSensorData OperationKind = "sensorData"
	OpSensorRW   OperationKind = "sensorRW"
	OpBatchRW    OperationKind = "batchRW"
	OpQuery      OperationKind = "query"
)

// OperationKinds returns all known kinds in their canonical order.
func OperationKinds() []OperationKind {
	return []OperationKind{OpSensorData, OpSensorRW, OpBatchRW, OpQuery}
}

// Valid reports whether the kind is one of the known operation types.
func (k OperationKind) Valid() bool {
	switch k {
	case OpSensorData, OpSensorRW, OpBatchRW, OpQuery:
		return true
	}
	return false
}

// NumLatencyBuckets is the fixed size of every latency histogram.
const NumLatencyBuckets = 13

// BucketEdges holds the inclusive upper edge of each finite latency bucket in
// milliseconds. The 13th bucket is open-ended and counts samples above the
// last edge.
var BucketEdges = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

// BucketIndex returns the histogram bucket for a latency sample. Bucket i
// counts samples with edge[i-1] < latency <= edge[i]; the final bucket counts
// everything above the last finite edge.
func BucketIndex(latencyMS float64) int {
	for i, edge := range BucketEdges {
		if latencyMS <= edge {
			return i
		}
	}
	return NumLatencyBuckets - 1
}

// ValidationError describes a structural problem with an incoming report.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid report: %s: %s", e.Field, e.Reason)
}

// OperationStat holds the raw counters for one operation kind.
type OperationStat struct {
	Operations int64 `json:"operations"`
	Errors     int64 `json:"errors"`
}

// OperationsStats maps each reported operation kind to its counters. Reports
// may omit kinds; unknown kinds are rejected at decode time.
type OperationsStats map[OperationKind]OperationStat

func (s *OperationsStats) UnmarshalJSON(data []byte) error {
	var raw map[string]OperationStat
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(OperationsStats, len(raw))
	for key, stat := range raw {
		kind := OperationKind(key)
		if !kind.Valid() {
			return &ValidationError{Field: "operations." + key, Reason: "unknown operation kind"}
		}
		out[kind] = stat
	}

	*s = out
	return nil
}

// HighPriorityStats counts requests with priority >= 3 per operation kind.
// Percentage is derived from TotalCount against the report's totalOps and is
// recomputed server-side on ingest.
type HighPriorityStats struct {
	Counts     map[OperationKind]int64
	TotalCount int64
	Percentage float64
}

func (s HighPriorityStats) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Counts)+2)
	for kind, count := range s.Counts {
		out[string(kind)+"Count"] = count
	}
	out["totalCount"] = s.TotalCount
	out["percentage"] = s.Percentage
	return json.Marshal(out)
}

func (s *HighPriorityStats) UnmarshalJSON(data []byte) error {
	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := HighPriorityStats{Counts: make(map[OperationKind]int64)}
	for key, value := range raw {
		switch key {
		case "totalCount":
			n, err := value.Int64()
			if err != nil {
				return &ValidationError{Field: "highPriorityStats.totalCount", Reason: "not an integer"}
			}
			out.TotalCount = n
		case "percentage":
			f, err := value.Float64()
			if err != nil {
				return &ValidationError{Field: "highPriorityStats.percentage", Reason: "not a number"}
			}
			out.Percentage = f
		default:
			name, ok := strings.CutSuffix(key, "Count")
			kind := OperationKind(name)
			if !ok || !kind.Valid() {
				return &ValidationError{Field: "highPriorityStats." + key, Reason: "unknown operation kind"}
			}
			n, err := value.Int64()
			if err != nil {
				return &ValidationError{Field: "highPriorityStats." + key, Reason: "not an integer"}
			}
			out.Counts[kind] = n
		}
	}

	*s = out
	return nil
}

// PerformanceMetrics are derived throughput numbers. They are never trusted
// from the wire: Recompute overwrites them from the raw counters.
type PerformanceMetrics struct {
	AvgSentQPS      float64 `json:"avgSentQPS"`
	AvgCompletedQPS float64 `json:"avgCompletedQPS"`
	ErrorRate       float64 `json:"errorRate"`
}

// LatencyDistribution summarizes latency for one operation kind. The
// high-priority fields form an optional sub-distribution: nil means the
// client measured nothing, which is distinct from a measured zero.
type LatencyDistribution struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Buckets []int64 `json:"buckets"`

	HighPriorityCount   *int64   `json:"highPriorityCount,omitempty"`
	HighPriorityAvg     *float64 `json:"highPriorityAvg,omitempty"`
	HighPriorityMin     *float64 `json:"highPriorityMin,omitempty"`
	HighPriorityMax     *float64 `json:"highPriorityMax,omitempty"`
	HighPriorityBuckets []int64  `json:"highPriorityBuckets,omitempty"`
}

// HasHighPriority reports whether the distribution carries measured
// high-priority data.
func (d *LatencyDistribution) HasHighPriority() bool {
	return d.HighPriorityAvg != nil && d.HighPriorityCount != nil && *d.HighPriorityCount > 0
}

// SampleCount is the number of samples recorded across all buckets.
func (d *LatencyDistribution) SampleCount() int64 {
	var total int64
	for _, count := range d.Buckets {
		total += count
	}
	return total
}

// LatencyAnalysis maps each reported operation kind to its latency
// distribution. Unknown kinds are rejected at decode time.
type LatencyAnalysis map[OperationKind]LatencyDistribution

func (a *LatencyAnalysis) UnmarshalJSON(data []byte) error {
	var raw map[string]LatencyDistribution
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(LatencyAnalysis, len(raw))
	for key, dist := range raw {
		kind := OperationKind(key)
		if !kind.Valid() {
			return &ValidationError{Field: "latencyAnalysis." + key, Reason: "unknown operation kind"}
		}
		out[kind] = dist
	}

	*a = out
	return nil
}

// StatsReport is one immutable benchmark run summary as submitted by a team
// client. The server never edits a stored report; derived fields are
// recomputed once on ingest and the result is persisted as-is.
type StatsReport struct {
	TotalElapsed         float64 `json:"totalElapsed"`
	TotalSent            int64   `json:"totalSent"`
	TotalOps             int64   `json:"totalOps"`
	TotalErrors          int64   `json:"totalErrors"`
	TotalSaveDelayErrors int64   `json:"totalSaveDelayErrors"`
	Pending              int64   `json:"pending"`

	// Optional roll-ups some client versions report directly.
	TotalAvgLatency             *float64 `json:"totalAvgLatency,omitempty"`
	HighPriorityAvgDelayLatency *float64 `json:"highPriorityAvgDelayLatency,omitempty"`
	TotalVerifyErrorRate        *float64 `json:"totalVerifyErrorRate,omitempty"`

	Operations         OperationsStats    `json:"operations"`
	HighPriorityStats  HighPriorityStats  `json:"highPriorityStats"`
	PerformanceMetrics PerformanceMetrics `json:"performanceMetrics"`
	LatencyAnalysis    LatencyAnalysis    `json:"latencyAnalysis"`
}

var requiredReportFields = []string{
	"totalElapsed",
	"totalSent",
	"totalOps",
	"totalErrors",
	"totalSaveDelayErrors",
	"pending",
	"operations",
	"highPriorityStats",
	"performanceMetrics",
	"latencyAnalysis",
}

func (r *StatsReport) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, field := range requiredReportFields {
		if _, ok := raw[field]; !ok {
			return &ValidationError{Field: field, Reason: "required field is missing"}
		}
	}

	type alias StatsReport
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*r = StatsReport(decoded)
	return nil
}

// Validate checks the structural invariants of a decoded report. Violations
// are returned as *ValidationError and the report must not be stored.
func (r *StatsReport) Validate() error {
	if r.TotalElapsed < 0 {
		return &ValidationError{Field: "totalElapsed", Reason: "must not be negative"}
	}
	for field, value := range map[string]int64{
		"totalSent":            r.TotalSent,
		"totalOps":             r.TotalOps,
		"totalErrors":          r.TotalErrors,
		"totalSaveDelayErrors": r.TotalSaveDelayErrors,
		"pending":              r.Pending,
	} {
		if value < 0 {
			return &ValidationError{Field: field, Reason: "must not be negative"}
		}
	}

	for kind, stat := range r.Operations {
		if stat.Operations < 0 || stat.Errors < 0 {
			return &ValidationError{Field: "operations." + string(kind), Reason: "must not be negative"}
		}
		if stat.Errors > stat.Operations {
			return &ValidationError{Field: "operations." + string(kind), Reason: "errors exceed operations"}
		}
	}

	if r.HighPriorityStats.TotalCount < 0 {
		return &ValidationError{Field: "highPriorityStats.totalCount", Reason: "must not be negative"}
	}
	for kind, count := range r.HighPriorityStats.Counts {
		if count < 0 {
			return &ValidationError{Field: "highPriorityStats." + string(kind) + "Count", Reason: "must not be negative"}
		}
	}

	for kind, dist := range r.LatencyAnalysis {
		field := "latencyAnalysis." + string(kind)
		if len(dist.Buckets) != NumLatencyBuckets {
			return &ValidationError{Field: field + ".buckets", Reason: fmt.Sprintf("expected %d buckets, got %d", NumLatencyBuckets, len(dist.Buckets))}
		}
		for _, count := range dist.Buckets {
			if count < 0 {
				return &ValidationError{Field: field + ".buckets", Reason: "must not be negative"}
			}
		}
		if dist.Avg < 0 || dist.Min < 0 || dist.Max < 0 {
			return &ValidationError{Field: field, Reason: "latency must not be negative"}
		}
		if dist.HighPriorityBuckets != nil && len(dist.HighPriorityBuckets) != NumLatencyBuckets {
			return &ValidationError{Field: field + ".highPriorityBuckets", Reason: fmt.Sprintf("expected %d buckets, got %d", NumLatencyBuckets, len(dist.HighPriorityBuckets))}
		}
		if dist.HighPriorityCount != nil && *dist.HighPriorityCount < 0 {
			return &ValidationError{Field: field + ".highPriorityCount", Reason: "must not be negative"}
		}
	}

	return nil
}

// Recompute overwrites the derived fields from the raw counters so the stored
// report always satisfies the documented identities, whatever the client sent.
func (r *StatsReport) Recompute() {
	r.PerformanceMetrics = PerformanceMetrics{}
	if r.TotalElapsed > 0 {
		r.PerformanceMetrics.AvgSentQPS = float64(r.TotalSent) / r.TotalElapsed
		r.PerformanceMetrics.AvgCompletedQPS = float64(r.TotalOps) / r.TotalElapsed
	}
	if r.TotalSent > 0 {
		r.PerformanceMetrics.ErrorRate = 100 * float64(r.TotalErrors) / float64(r.TotalSent)
	}

	if r.TotalOps > 0 {
		r.HighPriorityStats.Percentage = 100 * float64(r.HighPriorityStats.TotalCount) / float64(r.TotalOps)
	} else {
		r.HighPriorityStats.Percentage = 0
	}
}
