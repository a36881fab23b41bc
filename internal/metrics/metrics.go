// Package metrics derives dashboard summary numbers from a raw stats report.
// Everything here is pure: no I/O, no clocks, no shared state.
package metrics

import "benchboard/internal/model"

// P99Overflow is reported when the 99th percentile lands in the open-ended
// histogram bucket, i.e. beyond the largest finite edge.
const P99Overflow = 5001

// Summary is the derived metrics block attached to team snapshots and
// history entries. HighPriorityLatency is nil when no operation kind carried
// high-priority data; that is "not measured", not zero.
type Summary struct {
	AvgLatency          float64  `json:"avg_latency"`
	P99Latency          float64  `json:"p99_latency"`
	HighPriorityLatency *float64 `json:"high_priority_latency"`
	DataLossRate        float64  `json:"data_loss_rate"`
}

// Compute maps one report to its summary metrics.
func Compute(report *model.StatsReport) Summary {
	return Summary{
		AvgLatency:          avgLatency(report),
		P99Latency:          p99Latency(report),
		HighPriorityLatency: highPriorityLatency(report),
		DataLossRate:        dataLossRate(report),
	}
}

// avgLatency is the operation-count-weighted average of the per-kind average
// latencies. Clients that report a totalAvgLatency roll-up directly win over
// the recomputation.
func avgLatency(report *model.StatsReport) float64 {
	if report.TotalAvgLatency != nil {
		return *report.TotalAvgLatency
	}

	var weighted float64
	var weight int64
	for kind, dist := range report.LatencyAnalysis {
		ops := report.Operations[kind].Operations
		if ops <= 0 {
			continue
		}
		weighted += dist.Avg * float64(ops)
		weight += ops
	}
	if weight == 0 {
		return 0
	}
	return weighted / float64(weight)
}

// highPriorityLatency is the same weighted average restricted to kinds that
// carry a measured high-priority sub-distribution. nil when none do.
func highPriorityLatency(report *model.StatsReport) *float64 {
	if report.HighPriorityAvgDelayLatency != nil {
		return report.HighPriorityAvgDelayLatency
	}

	var weighted float64
	var weight int64
	for _, dist := range report.LatencyAnalysis {
		if !dist.HasHighPriority() {
			continue
		}
		weighted += *dist.HighPriorityAvg * float64(*dist.HighPriorityCount)
		weight += *dist.HighPriorityCount
	}
	if weight == 0 {
		return nil
	}
	result := weighted / float64(weight)
	return &result
}

// CombineBuckets sums the histograms of every operation kind bucket-by-bucket.
func CombineBuckets(analysis model.LatencyAnalysis) []int64 {
	combined := make([]int64, model.NumLatencyBuckets)
	for _, dist := range analysis {
		for i, count := range dist.Buckets {
			if i < len(combined) {
				combined[i] += count
			}
		}
	}
	return combined
}

// p99Latency approximates the 99th percentile from the combined histogram:
// the smallest bucket edge whose cumulative count reaches 99% of all samples.
func p99Latency(report *model.StatsReport) float64 {
	combined := CombineBuckets(report.LatencyAnalysis)

	var total int64
	for _, count := range combined {
		total += count
	}
	if total == 0 {
		return 0
	}

	threshold := 0.99 * float64(total)
	var cumulative int64
	for i, count := range combined {
		cumulative += count
		if float64(cumulative) >= threshold {
			if i < len(model.BucketEdges) {
				return model.BucketEdges[i]
			}
			return P99Overflow
		}
	}
	return P99Overflow
}

// dataLossRate is the error share of sent requests, as a percentage.
func dataLossRate(report *model.StatsReport) float64 {
	if report.TotalSent == 0 {
		return 0
	}
	return 100 * float64(report.TotalErrors) / float64(report.TotalSent)
}
