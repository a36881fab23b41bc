package controller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"benchboard/internal/metrics"
	"benchboard/internal/model"
	"benchboard/internal/store"
)

// BestTracker remembers each team's best observed completed QPS and best
// (lowest positive) average latency. The marks live in memory and are rebuilt
// from the persisted latest snapshots on startup.
type BestTracker struct {
	mu    sync.Mutex
	marks map[string]*model.BestMarks
}

func NewBestTracker() *BestTracker {
	return &BestTracker{marks: make(map[string]*model.BestMarks)}
}

// Observe folds one report's numbers into the team's marks and returns a copy
// of the result.
func (t *BestTracker) Observe(teamID string, qps, avgLatency float64, at time.Time) model.BestMarks {
	t.mu.Lock()
	defer t.mu.Unlock()

	marks, ok := t.marks[teamID]
	if !ok {
		marks = &model.BestMarks{}
		t.marks[teamID] = marks
	}
	marks.Improve(qps, avgLatency, at)
	return *marks
}

// Get returns a copy of the team's marks, zero-valued for unknown teams.
func (t *BestTracker) Get(teamID string) model.BestMarks {
	t.mu.Lock()
	defer t.mu.Unlock()

	if marks, ok := t.marks[teamID]; ok {
		return *marks
	}
	return model.BestMarks{}
}

// Seed rebuilds marks from every team's persisted latest report.
func (t *BestTracker) Seed(ctx context.Context, s store.Store) {
	summaries, err := s.ListTeams(ctx, time.Now(), 0)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list teams while seeding best marks")
		return
	}

	for _, summary := range summaries {
		record, err := s.GetLatest(ctx, summary.TeamID)
		if err != nil {
			log.Warn().Err(err).Str("teamID", summary.TeamID).Msg("Failed to load latest report while seeding best marks")
			continue
		}
		derived := metrics.Compute(record.Stats)
		t.Observe(summary.TeamID, record.Stats.PerformanceMetrics.AvgCompletedQPS, derived.AvgLatency, record.LastUpdate)
	}

	log.Info().Int("teams", len(summaries)).Msg("Best marks seeded from store")
}
