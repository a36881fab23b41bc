// loadgen simulates a benchmark client: it generates randomized well-formed
// stats reports and submits them to a BenchBoard server on an interval.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"benchboard/internal/model"
)

func main() {
	teamID := flag.String("team-id", "", "team identifier (required)")
	teamName := flag.String("team-name", "", "team display name (required)")
	server := flag.String("server", "http://localhost:8080", "server address")
	token := flag.String("token", "", "ingest token, if the server requires one")
	interval := flag.Duration("interval", 30*time.Second, "interval between reports")
	count := flag.Int("count", 0, "number of reports to submit (0 = run forever)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if *teamID == "" || *teamName == "" {
		fmt.Println("Usage: loadgen -team-id <id> -team-name <name> [-server url] [-interval 30s] [-count n]")
		os.Exit(1)
	}

	log.Info().
		Str("teamID", *teamID).
		Str("teamName", *teamName).
		Str("server", *server).
		Dur("interval", *interval).
		Msg("Starting load generator")

	client := &http.Client{Timeout: 10 * time.Second}
	submitted := 0
	for {
		submitted++
		report := generateReport()

		if err := submit(client, *server, *teamID, *teamName, *token, report); err != nil {
			log.Error().Err(err).Int("attempt", submitted).Msg("Report submission failed")
		} else {
			log.Info().
				Int("attempt", submitted).
				Int64("sent", report.TotalSent).
				Int64("ops", report.TotalOps).
				Int64("errors", report.TotalErrors).
				Float64("qps", report.PerformanceMetrics.AvgCompletedQPS).
				Msg("Report submitted")
		}

		if *count > 0 && submitted >= *count {
			log.Info().Int("count", submitted).Msg("Finished")
			return
		}
		time.Sleep(*interval)
	}
}

func submit(client *http.Client, server, teamID, teamName, token string, report *model.StatsReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, server+"/api/stats/report", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Team-ID", teamID)
	// Names may contain non-ASCII characters; HTTP headers cannot.
	req.Header.Set("X-Team-Name", url.QueryEscape(teamName))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload)
	}
	return nil
}

func generateReport() *model.StatsReport {
	totalSent := int64(rand.Intn(9001) + 1000)
	totalOps := int64(float64(totalSent) * (0.85 + rand.Float64()*0.13))
	totalErrors := totalSent - totalOps
	totalElapsed := 30 + rand.Float64()*270

	operations := model.OperationsStats{}
	shares := map[model.OperationKind]float64{
		model.OpSensorData: 0.3 + rand.Float64()*0.2,
		model.OpSensorRW:   0.2 + rand.Float64()*0.1,
		model.OpBatchRW:    0.1 + rand.Float64()*0.1,
		model.OpQuery:      0.1 + rand.Float64()*0.1,
	}
	for kind, share := range shares {
		ops := int64(float64(totalOps) * share)
		errs := int64(float64(totalErrors) * rand.Float64() * 0.4)
		if errs > ops {
			errs = ops
		}
		operations[kind] = model.OperationStat{Operations: ops, Errors: errs}
	}

	highPriorityTotal := int64(float64(totalSent) * (0.1 + rand.Float64()*0.2))
	highPriority := model.HighPriorityStats{
		Counts: map[model.OperationKind]int64{
			model.OpSensorData: int64(float64(highPriorityTotal) * 0.4),
			model.OpSensorRW:   int64(float64(highPriorityTotal) * 0.25),
			model.OpBatchRW:    int64(float64(highPriorityTotal) * 0.15),
			model.OpQuery:      int64(float64(highPriorityTotal) * 0.15),
		},
		TotalCount: highPriorityTotal,
	}

	analysis := model.LatencyAnalysis{}
	for _, kind := range model.OperationKinds() {
		analysis[kind] = generateDistribution()
	}

	report := &model.StatsReport{
		TotalElapsed:         totalElapsed,
		TotalSent:            totalSent,
		TotalOps:             totalOps,
		TotalErrors:          totalErrors,
		TotalSaveDelayErrors: int64(float64(totalErrors) * (0.1 + rand.Float64()*0.2)),
		Pending:              int64(rand.Intn(101)),
		Operations:           operations,
		HighPriorityStats:    highPriority,
		LatencyAnalysis:      analysis,
	}
	// Server recomputes these anyway; filling them in mimics real clients.
	report.Recompute()
	return report
}

func generateDistribution() model.LatencyDistribution {
	avg := 10 + rand.Float64()*490
	min := avg * (0.1 + rand.Float64()*0.4)
	max := avg * (2 + rand.Float64()*8)

	buckets := make([]int64, model.NumLatencyBuckets)
	for i := range buckets {
		buckets[i] = int64(rand.Intn(101))
	}

	dist := model.LatencyDistribution{
		Avg:     avg,
		Min:     min,
		Max:     max,
		Buckets: buckets,
	}

	// Roughly half the kinds carry a high-priority sub-distribution.
	if rand.Intn(2) == 0 {
		count := int64(rand.Intn(100) + 1)
		hpAvg := avg * (0.5 + rand.Float64())
		hpMin := min * (0.5 + rand.Float64()*0.5)
		hpMax := max * (0.5 + rand.Float64())
		hpBuckets := make([]int64, model.NumLatencyBuckets)
		for i := range hpBuckets {
			hpBuckets[i] = int64(rand.Intn(51))
		}
		dist.HighPriorityCount = &count
		dist.HighPriorityAvg = &hpAvg
		dist.HighPriorityMin = &hpMin
		dist.HighPriorityMax = &hpMax
		dist.HighPriorityBuckets = hpBuckets
	}

	return dist
}
