package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"benchboard/internal/config"
	"benchboard/internal/model"
)

// mongoStore implements Store on MongoDB: one document per report in the
// reports collection plus one latest-snapshot document per team. Reports are
// stored as raw JSON blobs so the wire schema stays the single source of
// truth for their shape.
type mongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	reportsCol *mongo.Collection
	teamsCol   *mongo.Collection

	mu    sync.Mutex
	locks map[string]*teamLock
}

type teamLock struct {
	mu       sync.Mutex
	lastTime time.Time
}

type reportDoc struct {
	TeamID    string    `bson:"team_id"`
	TeamName  string    `bson:"team_name"`
	Timestamp time.Time `bson:"timestamp"`
	Stats     []byte    `bson:"stats"`
}

// NewMongoStore connects to MongoDB and prepares the report collections.
func NewMongoStore(cfg config.MongoDBConfig) (Store, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	db := client.Database(cfg.DB)
	reportsCol := db.Collection("reports")
	teamsCol := db.Collection("teams")

	indexModels := []mongo.IndexModel{
		{
			// History pages read newest-first per team.
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index(),
		},
	}
	if _, err := reportsCol.Indexes().CreateMany(context.Background(), indexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "Reports").Msg("Error creating indexes")
	}

	return &mongoStore{
		client:     client,
		db:         db,
		reportsCol: reportsCol,
		teamsCol:   teamsCol,
		locks:      make(map[string]*teamLock),
	}, nil
}

func (m *mongoStore) teamLock(teamID string) *teamLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[teamID]
	if !ok {
		lock = &teamLock{}
		m.locks[teamID] = lock
	}
	return lock
}

func (m *mongoStore) Put(ctx context.Context, teamID, teamName string, report *model.StatsReport, receivedAt time.Time) (*model.TeamRecord, error) {
	if teamID == "" {
		return nil, fmt.Errorf("unusable team id %q", teamID)
	}

	lock := m.teamLock(teamID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	// Keep receipt timestamps strictly increasing within a team, matching the
	// file backend's millisecond-stamp guarantee.
	ts := receivedAt.Truncate(time.Millisecond)
	if !ts.After(lock.lastTime) {
		ts = lock.lastTime.Add(time.Millisecond)
	}

	stats, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	doc := reportDoc{
		TeamID:    teamID,
		TeamName:  teamName,
		Timestamp: ts,
		Stats:     stats,
	}
	if _, err := m.reportsCol.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	filter := bson.D{{Key: "_id", Value: teamID}}
	latest := bson.D{
		{Key: "_id", Value: teamID},
		{Key: "team_id", Value: teamID},
		{Key: "team_name", Value: teamName},
		{Key: "timestamp", Value: ts},
		{Key: "stats", Value: stats},
	}
	if _, err := m.teamsCol.ReplaceOne(ctx, filter, latest, options.Replace().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("update latest snapshot: %w", err)
	}

	lock.lastTime = ts

	return &model.TeamRecord{
		TeamID:     teamID,
		TeamName:   teamName,
		LastUpdate: ts,
		Stats:      report,
	}, nil
}

func (m *mongoStore) GetLatest(ctx context.Context, teamID string) (*model.TeamRecord, error) {
	var doc reportDoc
	err := m.teamsCol.FindOne(ctx, bson.D{{Key: "_id", Value: teamID}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return recordFromDoc(&doc)
}

func recordFromDoc(doc *reportDoc) (*model.TeamRecord, error) {
	var report model.StatsReport
	if err := json.Unmarshal(doc.Stats, &report); err != nil {
		return nil, fmt.Errorf("decode stored report: %w", err)
	}
	return &model.TeamRecord{
		TeamID:     doc.TeamID,
		TeamName:   doc.TeamName,
		LastUpdate: doc.Timestamp,
		Stats:      &report,
	}, nil
}

func (m *mongoStore) ListTeams(ctx context.Context, now time.Time, staleness time.Duration) ([]model.TeamSummary, error) {
	cursor, err := m.teamsCol.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "team_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := []model.TeamSummary{}
	for cursor.Next(ctx) {
		var doc reportDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode team document: %w", err)
		}
		summaries = append(summaries, model.TeamSummary{
			TeamID:     doc.TeamID,
			TeamName:   doc.TeamName,
			LastUpdate: doc.Timestamp,
			IsActive:   now.Sub(doc.Timestamp) <= staleness,
		})
	}
	return summaries, cursor.Err()
}

func (m *mongoStore) GetHistory(ctx context.Context, teamID string, limit, offset int) (*model.HistoryPage, error) {
	filter := bson.D{{Key: "team_id", Value: teamID}}

	total, err := m.reportsCol.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	if total == 0 {
		return nil, ErrTeamNotFound
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := m.reportsCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer cursor.Close(ctx)

	page := &model.HistoryPage{Total: int(total)}
	for cursor.Next(ctx) {
		var doc reportDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode report document: %w", err)
		}
		record, err := recordFromDoc(&doc)
		if err != nil {
			log.Warn().Err(err).Str("teamID", teamID).Msg("Skipping corrupt report document")
			continue
		}
		page.Entries = append(page.Entries, model.HistoryEntry{
			TeamID:    record.TeamID,
			TeamName:  record.TeamName,
			Timestamp: record.LastUpdate,
			Stats:     record.Stats,
		})
	}
	return page, cursor.Err()
}

func (m *mongoStore) GetHistorySummary(ctx context.Context, teamID string) (*model.HistorySummary, error) {
	filter := bson.D{{Key: "team_id", Value: teamID}}

	total, err := m.reportsCol.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	if total == 0 {
		return nil, ErrTeamNotFound
	}

	summary := &model.HistorySummary{
		TotalReports:  int(total),
		DataDirectory: fmt.Sprintf("%s.%s", m.db.Name(), m.reportsCol.Name()),
		RecentFiles:   []string{},
	}

	if first, err := m.edgeTimestamp(ctx, filter, 1); err == nil {
		summary.FirstReport = first
	}
	if last, err := m.edgeTimestamp(ctx, filter, -1); err == nil {
		summary.LastReport = last
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(5).
		SetProjection(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := m.reportsCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("load recent reports: %w", err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc struct {
			Timestamp time.Time `bson:"timestamp"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode report document: %w", err)
		}
		summary.RecentFiles = append(summary.RecentFiles, reportStamp(doc.Timestamp)+".json")
	}
	return summary, cursor.Err()
}

func (m *mongoStore) edgeTimestamp(ctx context.Context, filter bson.D, direction int) (*time.Time, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: direction}})
	var doc struct {
		Timestamp time.Time `bson:"timestamp"`
	}
	if err := m.reportsCol.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc.Timestamp, nil
}

// Health implements Store
func (m *mongoStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		log.Error().Msgf("Store health error: %v", err)
		return err
	}
	return nil
}

func (m *mongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
