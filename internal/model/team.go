package model

import "time"

// TeamRecord is the in-memory state for one benchmark team: identity, the
// latest accepted report and the moment it arrived.
type TeamRecord struct {
	TeamID     string       `json:"team_id"`
	TeamName   string       `json:"team_name"`
	LastUpdate time.Time    `json:"last_update"`
	Stats      *StatsReport `json:"stats"`
}

// TeamSummary is the listing row returned by the teams endpoint. IsActive is
// computed at query time against the staleness window.
type TeamSummary struct {
	TeamID     string    `json:"team_id"`
	TeamName   string    `json:"team_name"`
	LastUpdate time.Time `json:"last_update"`
	IsActive   bool      `json:"is_active"`
}

// HistoryEntry is one persisted report record. This is exactly the shape
// written to the per-team report files.
type HistoryEntry struct {
	TeamID    string       `json:"team_id"`
	TeamName  string       `json:"team_name"`
	Timestamp time.Time    `json:"timestamp"`
	Stats     *StatsReport `json:"stats"`
}

// HistoryPage is a newest-first window over a team's persisted reports.
type HistoryPage struct {
	Entries []HistoryEntry
	Total   int
}

// HistorySummary describes a team's persisted history without loading it.
type HistorySummary struct {
	TotalReports  int        `json:"total_reports"`
	FirstReport   *time.Time `json:"first_report"`
	LastReport    *time.Time `json:"last_report"`
	DataDirectory string     `json:"data_directory"`
	RecentFiles   []string   `json:"recent_files"`
}

// BestMarks tracks a team's best observed completed QPS and best (lowest
// positive) average latency, with the times they were achieved.
type BestMarks struct {
	BestQPS         float64    `json:"best_qps"`
	BestQPSTime     *time.Time `json:"best_qps_time"`
	BestLatency     *float64   `json:"best_latency"`
	BestLatencyTime *time.Time `json:"best_latency_time"`
}

// Improve folds one observation into the marks, returning true if either
// record changed.
func (b *BestMarks) Improve(qps, avgLatency float64, at time.Time) bool {
	improved := false
	if qps > b.BestQPS {
		b.BestQPS = qps
		t := at
		b.BestQPSTime = &t
		improved = true
	}
	if avgLatency > 0 && (b.BestLatency == nil || avgLatency < *b.BestLatency) {
		l := avgLatency
		t := at
		b.BestLatency = &l
		b.BestLatencyTime = &t
		improved = true
	}
	return improved
}
