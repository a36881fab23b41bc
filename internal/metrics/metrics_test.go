package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchboard/internal/model"
)

func buckets(counts ...int64) []int64 {
	out := make([]int64, model.NumLatencyBuckets)
	copy(out, counts)
	return out
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func TestComputeWeightedAvgLatency(t *testing.T) {
	report := &model.StatsReport{
		TotalSent: 100,
		Operations: model.OperationsStats{
			model.OpSensorData: {Operations: 80},
			model.OpQuery:      {Operations: 20},
			model.OpBatchRW:    {Operations: 0}, // zero ops contribute zero weight
		},
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Avg: 10, Buckets: buckets(80)},
			model.OpQuery:      {Avg: 60, Buckets: buckets(20)},
			model.OpBatchRW:    {Avg: 9999, Buckets: buckets()},
		},
	}

	summary := Compute(report)
	assert.InDelta(t, (10*80+60*20)/100.0, summary.AvgLatency, 1e-9)
}

func TestComputePrefersClientReportedAvg(t *testing.T) {
	report := &model.StatsReport{
		TotalAvgLatency: floatPtr(123.4),
		Operations: model.OperationsStats{
			model.OpSensorData: {Operations: 10},
		},
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Avg: 1, Buckets: buckets(10)},
		},
	}

	assert.InDelta(t, 123.4, Compute(report).AvgLatency, 1e-9)
}

func TestComputeAvgLatencyZeroWeight(t *testing.T) {
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Avg: 50, Buckets: buckets()},
		},
	}
	assert.Zero(t, Compute(report).AvgLatency)
}

func TestP99CombinesKindsBucketwise(t *testing.T) {
	// 198 samples in bucket 0 (<=1ms) across two kinds, 2 in bucket 5
	// (<=50ms). 99% of 200 = 198, reached exactly at bucket 0.
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Buckets: buckets(99)},
			model.OpQuery:      {Buckets: buckets(99, 0, 0, 0, 0, 2)},
		},
	}
	assert.InDelta(t, 1.0, Compute(report).P99Latency, 1e-9)
}

func TestP99LandsOnLaterBucketEdge(t *testing.T) {
	// 100 samples: 98 fast, 2 slow (<=200ms). Threshold 99 crosses in the
	// 200ms bucket.
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Buckets: buckets(98, 0, 0, 0, 0, 0, 0, 2)},
		},
	}
	assert.InDelta(t, 200.0, Compute(report).P99Latency, 1e-9)
}

func TestP99OverflowSentinel(t *testing.T) {
	overflow := buckets()
	overflow[model.NumLatencyBuckets-1] = 100
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Buckets: overflow},
		},
	}

	summary := Compute(report)
	assert.Equal(t, float64(P99Overflow), summary.P99Latency)
	assert.Greater(t, summary.P99Latency, model.BucketEdges[len(model.BucketEdges)-1])
}

func TestP99EmptyHistogram(t *testing.T) {
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Buckets: buckets()},
		},
	}
	assert.Zero(t, Compute(report).P99Latency)
}

func TestHighPriorityLatencyUndefinedWithoutData(t *testing.T) {
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Avg: 10, Buckets: buckets(5)},
		},
	}
	assert.Nil(t, Compute(report).HighPriorityLatency)
}

func TestHighPriorityLatencyWeighted(t *testing.T) {
	report := &model.StatsReport{
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {
				Avg: 10, Buckets: buckets(5),
				HighPriorityCount: intPtr(30), HighPriorityAvg: floatPtr(20),
			},
			model.OpQuery: {
				Avg: 10, Buckets: buckets(5),
				HighPriorityCount: intPtr(10), HighPriorityAvg: floatPtr(60),
			},
			model.OpBatchRW: {Avg: 10, Buckets: buckets(5)}, // no high-priority data
		},
	}

	latency := Compute(report).HighPriorityLatency
	require.NotNil(t, latency)
	assert.InDelta(t, (20*30+60*10)/40.0, *latency, 1e-9)
}

func TestAllRatesZeroWhenNothingSent(t *testing.T) {
	report := &model.StatsReport{
		TotalSent:   0,
		TotalErrors: 0,
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Buckets: buckets()},
		},
	}
	report.Recompute()

	summary := Compute(report)
	assert.Zero(t, report.PerformanceMetrics.AvgSentQPS)
	assert.Zero(t, report.PerformanceMetrics.AvgCompletedQPS)
	assert.Zero(t, report.PerformanceMetrics.ErrorRate)
	assert.Zero(t, summary.DataLossRate)
}

func TestErrorRateExample(t *testing.T) {
	// totalSent=100, totalOps=95, totalErrors=5, sensorData ops=50,
	// high-priority sensorData count=20.
	report := &model.StatsReport{
		TotalElapsed: 10,
		TotalSent:    100,
		TotalOps:     95,
		TotalErrors:  5,
		Operations: model.OperationsStats{
			model.OpSensorData: {Operations: 50, Errors: 2},
		},
		HighPriorityStats: model.HighPriorityStats{
			Counts:     map[model.OperationKind]int64{model.OpSensorData: 20},
			TotalCount: 20,
		},
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Avg: 12, Buckets: buckets(50)},
		},
	}
	report.Recompute()

	assert.InDelta(t, 5.0, report.PerformanceMetrics.ErrorRate, 1e-9)
	assert.InDelta(t, 5.0, Compute(report).DataLossRate, 1e-9)
	// Per-kind error counters stay independent of the report-level error rate.
	assert.Equal(t, int64(2), report.Operations[model.OpSensorData].Errors)
	assert.InDelta(t, 100*20.0/95.0, report.HighPriorityStats.Percentage, 1e-9)
}
