// Package store persists team benchmark reports and answers dashboard reads.
// Two backends implement the same contract: the default file store (one
// timestamped JSON file per report plus a latest.json pointer per team) and a
// MongoDB store for deployments that already run one.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"benchboard/internal/config"
	"benchboard/internal/model"
)

// ErrTeamNotFound is returned by reads for a team that never submitted a report.
var ErrTeamNotFound = errors.New("team not found")

type Store interface {
	// Put durably persists the report as a new history entry and replaces the
	// team's latest snapshot. The durable write happens before the snapshot
	// update: on error the previous snapshot stays visible. Concurrent Puts
	// for the same team are serialized.
	Put(ctx context.Context, teamID, teamName string, report *model.StatsReport, receivedAt time.Time) (*model.TeamRecord, error)

	// GetLatest returns the team's current snapshot or ErrTeamNotFound.
	GetLatest(ctx context.Context, teamID string) (*model.TeamRecord, error)

	// ListTeams returns one summary per known team. IsActive is computed
	// against the supplied now and staleness window.
	ListTeams(ctx context.Context, now time.Time, staleness time.Duration) ([]model.TeamSummary, error)

	// GetHistory returns a newest-first window over the team's persisted
	// reports; offset counts from the newest. ErrTeamNotFound when the team
	// has no records.
	GetHistory(ctx context.Context, teamID string, limit, offset int) (*model.HistoryPage, error)

	// GetHistorySummary describes the team's persisted history without
	// loading the reports themselves.
	GetHistorySummary(ctx context.Context, teamID string) (*model.HistorySummary, error)

	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// ReportFileName is the file name a report received at t is persisted under.
func ReportFileName(t time.Time) string {
	return reportStamp(t) + ".json"
}

// New builds the store selected by the storage configuration.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return NewFileStore(cfg.Storage.DataDir)
	case "mongo":
		return NewMongoStore(cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
