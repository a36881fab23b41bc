package controller

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"benchboard/internal/archive"
	"benchboard/internal/broadcast"
	"benchboard/internal/cache"
	"benchboard/internal/metrics"
	"benchboard/internal/model"
	"benchboard/internal/rabbitmq"
	"benchboard/internal/store"
)

// Broadcaster pushes an encoded event to the connected dashboard clients.
type Broadcaster interface {
	Broadcast(message []byte)
}

// StatsUpdate is the payload of every stats_update event.
type StatsUpdate struct {
	TeamID    string             `json:"team_id"`
	TeamName  string             `json:"team_name"`
	Stats     *model.StatsReport `json:"stats"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   metrics.Summary    `json:"metrics"`
	model.BestMarks
}

func marshalStatsUpdate(snapshot *TeamSnapshot, ts time.Time) ([]byte, error) {
	return broadcast.Marshal(broadcast.EventStatsUpdate, StatsUpdate{
		TeamID:    snapshot.TeamID,
		TeamName:  snapshot.TeamName,
		Stats:     snapshot.Stats,
		Timestamp: ts,
		Metrics:   snapshot.Metrics,
		BestMarks: snapshot.BestMarks,
	})
}

// ReportController handles report ingestion: durable storage first, then the
// best-effort side-effects (cache, broadcast, firehose, archive). Any nil
// collaborator is simply skipped.
type ReportController struct {
	store     store.Store
	cache     cache.SnapshotCache
	hub       Broadcaster
	firehose  rabbitmq.Publisher
	archiver  archive.Archiver
	marks     *BestTracker
	staleness time.Duration
}

func NewReportController(
	s store.Store,
	snapshotCache cache.SnapshotCache,
	hub Broadcaster,
	firehose rabbitmq.Publisher,
	archiver archive.Archiver,
	marks *BestTracker,
	staleness time.Duration,
) *ReportController {
	return &ReportController{
		store:     s,
		cache:     snapshotCache,
		hub:       hub,
		firehose:  firehose,
		archiver:  archiver,
		marks:     marks,
		staleness: staleness,
	}
}

// Submit persists one validated report and fans the updated snapshot out.
// The durable write is the only step that can fail the call: every
// side-effect after it is best-effort and merely logged.
func (c *ReportController) Submit(ctx context.Context, teamID, teamName string, report *model.StatsReport) (*TeamSnapshot, error) {
	report.Recompute()

	record, err := c.store.Put(ctx, teamID, teamName, report, time.Now())
	if err != nil {
		log.Error().Err(err).Str("teamID", teamID).Msg("Failed to persist report")
		return nil, err
	}

	derived := metrics.Compute(report)
	best := c.marks.Observe(teamID, report.PerformanceMetrics.AvgCompletedQPS, derived.AvgLatency, record.LastUpdate)

	snapshot := &TeamSnapshot{
		TeamID:     record.TeamID,
		TeamName:   record.TeamName,
		LastUpdate: record.LastUpdate,
		Stats:      record.Stats,
		Metrics:    derived,
		BestMarks:  best,
	}

	c.cacheSnapshot(ctx, snapshot)
	c.broadcastSnapshot(snapshot, record.LastUpdate)
	c.publishToFirehose(snapshot, record.LastUpdate)
	c.archiveReport(record)

	log.Info().
		Str("teamID", teamID).
		Str("teamName", teamName).
		Float64("qps", report.PerformanceMetrics.AvgCompletedQPS).
		Float64("errorRate", report.PerformanceMetrics.ErrorRate).
		Msg("Report accepted")

	return snapshot, nil
}

func (c *ReportController) cacheSnapshot(ctx context.Context, snapshot *TeamSnapshot) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Warn().Err(err).Str("teamID", snapshot.TeamID).Msg("Failed to encode snapshot for cache")
		return
	}
	if err := c.cache.SetLatest(ctx, snapshot.TeamID, data, 2*c.staleness); err != nil {
		log.Warn().Err(err).Str("teamID", snapshot.TeamID).Msg("Failed to cache snapshot")
	}
}

func (c *ReportController) broadcastSnapshot(snapshot *TeamSnapshot, ts time.Time) {
	if c.hub == nil {
		return
	}
	payload, err := marshalStatsUpdate(snapshot, ts)
	if err != nil {
		log.Warn().Err(err).Str("teamID", snapshot.TeamID).Msg("Failed to encode stats update")
		return
	}
	c.hub.Broadcast(payload)
}

func (c *ReportController) publishToFirehose(snapshot *TeamSnapshot, ts time.Time) {
	if c.firehose == nil {
		return
	}
	payload, err := marshalStatsUpdate(snapshot, ts)
	if err != nil {
		return
	}
	headers := amqp.Table{
		"team_id": snapshot.TeamID,
	}
	if err := c.firehose.Publish(payload, headers); err != nil {
		log.Warn().Err(err).Str("teamID", snapshot.TeamID).Msg("Failed to publish report to firehose")
	}
}

// archiveReport uploads the persisted record to S3 off the request path.
func (c *ReportController) archiveReport(record *model.TeamRecord) {
	if c.archiver == nil {
		return
	}

	entry := model.HistoryEntry{
		TeamID:    record.TeamID,
		TeamName:  record.TeamName,
		Timestamp: record.LastUpdate,
		Stats:     record.Stats,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("teamID", record.TeamID).Msg("Failed to encode report for archive")
		return
	}
	fileName := store.ReportFileName(record.LastUpdate)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		url, err := c.archiver.ArchiveReport(ctx, record.TeamID, fileName, data)
		if err != nil {
			log.Warn().Err(err).Str("teamID", record.TeamID).Str("file", fileName).Msg("Failed to archive report")
			return
		}
		log.Debug().Str("teamID", record.TeamID).Str("url", url).Msg("Report archived")
	}()
}
