package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"benchboard/internal/model"
)

const latestFileName = "latest.json"

// fileStore keeps one directory per team under dataDir. Every accepted report
// becomes <dataDir>/<teamID>/<YYYYMMDD_HHMMSS_mmm>.json and latest.json is
// rewritten to point readers at the newest snapshot. The filename stamps sort
// lexicographically in chronological order.
type fileStore struct {
	dataDir string

	mu    sync.RWMutex
	teams map[string]*teamState
}

// teamState serializes writes for a single team and caches its latest record.
type teamState struct {
	mu        sync.Mutex
	record    model.TeamRecord
	lastStamp string
	lastTime  time.Time
}

// NewFileStore opens (or creates) the data directory and reloads the latest
// snapshot of every team found on disk.
func NewFileStore(dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &fileStore{
		dataDir: dataDir,
		teams:   make(map[string]*teamState),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	log.Info().
		Str("dataDir", dataDir).
		Int("teams", len(s.teams)).
		Msg("File store initialized")

	return s, nil
}

// reload restores the in-memory latest snapshots from the latest.json files
// left by a previous run. Disk is the source of truth across restarts.
func (s *fileStore) reload() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("scan data directory: %w", err)
	}

	for _, dirEntry := range entries {
		if !dirEntry.IsDir() {
			continue
		}
		teamID := dirEntry.Name()
		teamDir := filepath.Join(s.dataDir, teamID)

		stamps, err := listReportStamps(teamDir)
		if err != nil {
			return err
		}

		latest, ok := readEntry(filepath.Join(teamDir, latestFileName))
		if !ok {
			if len(stamps) == 0 {
				log.Warn().Str("teamID", teamID).Msg("Skipping team with no readable snapshot")
				continue
			}
			// The newest report file is the next best snapshot. Stamps must
			// still be seeded so new filenames stay strictly increasing.
			log.Warn().Str("teamID", teamID).Msg("Latest snapshot unreadable, recovering from newest report file")
			latest, ok = readEntry(filepath.Join(teamDir, stamps[len(stamps)-1]+".json"))
		}

		state := &teamState{}
		if ok {
			state.record = model.TeamRecord{
				TeamID:     teamID,
				TeamName:   latest.TeamName,
				LastUpdate: latest.Timestamp,
				Stats:      latest.Stats,
			}
			state.lastTime = latest.Timestamp
		}
		if len(stamps) > 0 {
			state.lastStamp = stamps[len(stamps)-1]
			if ts, stampOK := parseStamp(state.lastStamp); stampOK {
				state.lastTime = ts
			}
		}
		s.teams[teamID] = state
	}

	return nil
}

func readEntry(path string) (*model.HistoryEntry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry model.HistoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// reportStamp formats a receipt time as the millisecond-precision filename stamp.
func reportStamp(t time.Time) string {
	return t.Format("20060102_150405") + fmt.Sprintf("_%03d", t.Nanosecond()/int(time.Millisecond))
}

// parseStamp inverts reportStamp so reload can seed the monotonic clock from
// the file names themselves.
func parseStamp(stamp string) (time.Time, bool) {
	if len(stamp) != len("20060102_150405_000") {
		return time.Time{}, false
	}
	base, err := time.Parse("20060102_150405", stamp[:15])
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.Atoi(stamp[16:])
	if err != nil {
		return time.Time{}, false
	}
	return base.Add(time.Duration(ms) * time.Millisecond), true
}

func validTeamID(teamID string) bool {
	if teamID == "" || teamID == "." || teamID == ".." {
		return false
	}
	return !strings.ContainsAny(teamID, `/\`)
}

func (s *fileStore) teamState(teamID string, create bool) *teamState {
	s.mu.RLock()
	state, ok := s.teams[teamID]
	s.mu.RUnlock()
	if ok || !create {
		return state
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok = s.teams[teamID]; ok {
		return state
	}
	state = &teamState{}
	s.teams[teamID] = state
	return state
}

func (s *fileStore) Put(ctx context.Context, teamID, teamName string, report *model.StatsReport, receivedAt time.Time) (*model.TeamRecord, error) {
	if !validTeamID(teamID) {
		return nil, fmt.Errorf("unusable team id %q", teamID)
	}

	state := s.teamState(teamID, true)
	state.mu.Lock()
	defer state.mu.Unlock()

	// Filename stamps must stay strictly increasing within a team; two
	// reports landing in the same millisecond get consecutive stamps.
	ts := receivedAt
	if state.lastStamp != "" && reportStamp(ts) <= state.lastStamp {
		ts = state.lastTime.Add(time.Millisecond)
	}
	stamp := reportStamp(ts)

	entry := model.HistoryEntry{
		TeamID:    teamID,
		TeamName:  teamName,
		Timestamp: ts,
		Stats:     report,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	teamDir := filepath.Join(s.dataDir, teamID)
	if err := os.MkdirAll(teamDir, 0o755); err != nil {
		return nil, fmt.Errorf("create team directory: %w", err)
	}

	reportPath := filepath.Join(teamDir, stamp+".json")
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write report file: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(teamDir, latestFileName), data); err != nil {
		// One durable unit per Put: roll the history file back so a failed
		// call leaves no trace and the previous snapshot stays authoritative.
		if rmErr := os.Remove(reportPath); rmErr != nil {
			log.Error().Err(rmErr).Str("path", reportPath).Msg("Failed to remove orphaned report file")
		}
		return nil, fmt.Errorf("write latest snapshot: %w", err)
	}

	state.record = model.TeamRecord{
		TeamID:     teamID,
		TeamName:   teamName,
		LastUpdate: ts,
		Stats:      report,
	}
	state.lastStamp = stamp
	state.lastTime = ts

	record := state.record
	return &record, nil
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a half-written latest.json.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileStore) GetLatest(ctx context.Context, teamID string) (*model.TeamRecord, error) {
	state := s.teamState(teamID, false)
	if state == nil {
		return nil, ErrTeamNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.record.Stats == nil {
		return nil, ErrTeamNotFound
	}
	record := state.record
	return &record, nil
}

func (s *fileStore) ListTeams(ctx context.Context, now time.Time, staleness time.Duration) ([]model.TeamSummary, error) {
	s.mu.RLock()
	states := make(map[string]*teamState, len(s.teams))
	for teamID, state := range s.teams {
		states[teamID] = state
	}
	s.mu.RUnlock()

	summaries := make([]model.TeamSummary, 0, len(states))
	for teamID, state := range states {
		state.mu.Lock()
		record := state.record
		state.mu.Unlock()
		if record.Stats == nil {
			continue
		}
		summaries = append(summaries, model.TeamSummary{
			TeamID:     teamID,
			TeamName:   record.TeamName,
			LastUpdate: record.LastUpdate,
			IsActive:   now.Sub(record.LastUpdate) <= staleness,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].TeamID < summaries[j].TeamID })
	return summaries, nil
}

// listReportStamps returns the report filename stamps of a team directory in
// ascending (oldest first) order, excluding the latest pointer.
func listReportStamps(teamDir string) ([]string, error) {
	entries, err := os.ReadDir(teamDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan team directory: %w", err)
	}

	stamps := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == latestFileName || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamps = append(stamps, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(stamps)
	return stamps, nil
}

func (s *fileStore) GetHistory(ctx context.Context, teamID string, limit, offset int) (*model.HistoryPage, error) {
	if !validTeamID(teamID) {
		return nil, ErrTeamNotFound
	}

	teamDir := filepath.Join(s.dataDir, teamID)
	stamps, err := listReportStamps(teamDir)
	if err != nil {
		return nil, err
	}
	if len(stamps) == 0 {
		return nil, ErrTeamNotFound
	}

	// Newest first, offset counted from the newest.
	total := len(stamps)
	page := &model.HistoryPage{Total: total}
	if offset >= total {
		return page, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}
	for i := offset; i < end; i++ {
		stamp := stamps[total-1-i]
		path := filepath.Join(teamDir, stamp+".json")

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable report file")
			continue
		}
		var entry model.HistoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping corrupt report file")
			continue
		}
		page.Entries = append(page.Entries, entry)
	}

	return page, nil
}

func (s *fileStore) GetHistorySummary(ctx context.Context, teamID string) (*model.HistorySummary, error) {
	if !validTeamID(teamID) {
		return nil, ErrTeamNotFound
	}

	teamDir := filepath.Join(s.dataDir, teamID)
	if _, err := os.Stat(teamDir); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("stat team directory: %w", err)
	}

	stamps, err := listReportStamps(teamDir)
	if err != nil {
		return nil, err
	}

	summary := &model.HistorySummary{
		TotalReports:  len(stamps),
		DataDirectory: teamDir,
		RecentFiles:   []string{},
	}
	if len(stamps) == 0 {
		return summary, nil
	}

	if first := s.readTimestamp(teamDir, stamps[0]); first != nil {
		summary.FirstReport = first
	}
	if last := s.readTimestamp(teamDir, stamps[len(stamps)-1]); last != nil {
		summary.LastReport = last
	}

	recent := 5
	if recent > len(stamps) {
		recent = len(stamps)
	}
	for i := 0; i < recent; i++ {
		summary.RecentFiles = append(summary.RecentFiles, stamps[len(stamps)-1-i]+".json")
	}

	return summary, nil
}

func (s *fileStore) readTimestamp(teamDir, stamp string) *time.Time {
	path := filepath.Join(teamDir, stamp+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to read report file for summary")
		return nil
	}
	var entry struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to parse report file for summary")
		return nil
	}
	return &entry.Timestamp
}

func (s *fileStore) Health(ctx context.Context) error {
	if _, err := os.Stat(s.dataDir); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	return nil
}

func (s *fileStore) Close(ctx context.Context) error {
	return nil
}
