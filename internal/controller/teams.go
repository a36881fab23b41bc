package controller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"benchboard/internal/cache"
	"benchboard/internal/metrics"
	"benchboard/internal/model"
	"benchboard/internal/store"
)

// TeamSnapshot is the full dashboard view of one team: latest report, derived
// metrics and best marks.
type TeamSnapshot struct {
	TeamID     string             `json:"team_id"`
	TeamName   string             `json:"team_name"`
	LastUpdate time.Time          `json:"last_update"`
	Stats      *model.StatsReport `json:"stats"`
	Metrics    metrics.Summary    `json:"metrics"`
	model.BestMarks
}

// HistoryEntry is one history page row: the persisted record plus the metrics
// derived from it at read time.
type HistoryEntry struct {
	model.HistoryEntry
	Metrics metrics.Summary `json:"metrics"`
}

// HistoryPage is a newest-first window over a team's reports.
type HistoryPage struct {
	Entries []HistoryEntry
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// TeamController serves the pull-style dashboard reads.
type TeamController struct {
	store     store.Store
	cache     cache.SnapshotCache
	marks     *BestTracker
	staleness time.Duration
}

// NewTeamController creates a new team controller; cache may be nil.
func NewTeamController(s store.Store, snapshotCache cache.SnapshotCache, marks *BestTracker, staleness time.Duration) *TeamController {
	return &TeamController{
		store:     s,
		cache:     snapshotCache,
		marks:     marks,
		staleness: staleness,
	}
}

// ListTeams returns one summary row per known team, activity computed against
// the staleness window.
func (c *TeamController) ListTeams(ctx context.Context) ([]model.TeamSummary, error) {
	return c.store.ListTeams(ctx, time.Now(), c.staleness)
}

// GetTeam returns a team's snapshot, preferring the cache when one is
// configured. The store stays authoritative: unknown teams are NotFound even
// when the cache is down.
func (c *TeamController) GetTeam(ctx context.Context, teamID string) (*TeamSnapshot, error) {
	if c.cache != nil {
		if data, err := c.cache.GetLatest(ctx, teamID); err == nil {
			var snapshot TeamSnapshot
			if err := json.Unmarshal(data, &snapshot); err == nil {
				return &snapshot, nil
			}
			log.Warn().Str("teamID", teamID).Msg("Discarding undecodable cached snapshot")
		}
	}

	record, err := c.store.GetLatest(ctx, teamID)
	if err != nil {
		return nil, err
	}

	snapshot := c.buildSnapshot(record)

	if c.cache != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			if err := c.cache.SetLatest(ctx, teamID, data, 2*c.staleness); err != nil {
				log.Warn().Err(err).Str("teamID", teamID).Msg("Failed to backfill snapshot cache")
			}
		}
	}

	return snapshot, nil
}

func (c *TeamController) buildSnapshot(record *model.TeamRecord) *TeamSnapshot {
	return &TeamSnapshot{
		TeamID:     record.TeamID,
		TeamName:   record.TeamName,
		LastUpdate: record.LastUpdate,
		Stats:      record.Stats,
		Metrics:    metrics.Compute(record.Stats),
		BestMarks:  c.marks.Get(record.TeamID),
	}
}

// GetHistory returns a newest-first page of the team's reports with derived
// metrics attached to every entry.
func (c *TeamController) GetHistory(ctx context.Context, teamID string, limit, offset int) (*HistoryPage, error) {
	stored, err := c.store.GetHistory(ctx, teamID, limit, offset)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{
		Entries: make([]HistoryEntry, 0, len(stored.Entries)),
		Total:   stored.Total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < stored.Total,
	}
	for _, entry := range stored.Entries {
		page.Entries = append(page.Entries, HistoryEntry{
			HistoryEntry: entry,
			Metrics:      metrics.Compute(entry.Stats),
		})
	}
	return page, nil
}

// GetHistorySummary describes the team's persisted history.
func (c *TeamController) GetHistorySummary(ctx context.Context, teamID string) (*model.HistorySummary, error) {
	return c.store.GetHistorySummary(ctx, teamID)
}

// Snapshots marshals one stats_update event per known team, used to replay
// current state to a freshly connected dashboard client.
func (c *TeamController) Snapshots(ctx context.Context) [][]byte {
	summaries, err := c.store.ListTeams(ctx, time.Now(), c.staleness)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list teams for snapshot replay")
		return nil
	}

	events := make([][]byte, 0, len(summaries))
	for _, summary := range summaries {
		record, err := c.store.GetLatest(ctx, summary.TeamID)
		if err != nil {
			continue
		}
		snapshot := c.buildSnapshot(record)
		payload, err := marshalStatsUpdate(snapshot, record.LastUpdate)
		if err != nil {
			log.Warn().Err(err).Str("teamID", summary.TeamID).Msg("Failed to encode snapshot event")
			continue
		}
		events = append(events, payload)
	}
	return events
}

// SweepActivity logs teams that fell outside the staleness window. History
// and latest snapshots are never removed; activity is recomputed on every
// listing anyway, so this only gives operators a trace of the transition.
func (c *TeamController) SweepActivity(ctx context.Context) {
	summaries, err := c.store.ListTeams(ctx, time.Now(), c.staleness)
	if err != nil {
		log.Warn().Err(err).Msg("Activity sweep failed to list teams")
		return
	}
	for _, summary := range summaries {
		if !summary.IsActive {
			log.Info().
				Str("teamID", summary.TeamID).
				Time("lastUpdate", summary.LastUpdate).
				Msg("Team inactive")
		}
	}
}
