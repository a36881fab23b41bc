package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"benchboard/internal/controller"
	"benchboard/internal/store"
)

// listTeamsHandler returns a summary row for every team that ever reported.
func (s *Server) listTeamsHandler(c *gin.Context) {
	teams, err := s.teamController.ListTeams(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list teams")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list teams: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, teams)
}

// getTeamHandler returns a team's latest snapshot with derived metrics.
func (s *Server) getTeamHandler(c *gin.Context) {
	teamID := c.Param("id")

	snapshot, err := s.teamController.GetTeam(c.Request.Context(), teamID)
	if err != nil {
		if errors.Is(err, store.ErrTeamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
			return
		}
		log.Error().Err(err).Str("teamID", teamID).Msg("Failed to get team")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get team: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// getTeamHistoryHandler returns a newest-first page of a team's reports.
func (s *Server) getTeamHistoryHandler(c *gin.Context) {
	teamID := c.Param("id")

	limit := s.config.Dashboard.DefaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset parameter"})
			return
		}
		offset = parsed
	}

	page, err := s.teamController.GetHistory(c.Request.Context(), teamID, limit, offset)
	if err != nil {
		if errors.Is(err, store.ErrTeamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
			return
		}
		log.Error().Err(err).Str("teamID", teamID).Msg("Failed to load team history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history: " + err.Error()})
		return
	}

	entries := page.Entries
	if entries == nil {
		entries = []controller.HistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"team_id":  teamID,
		"history":  entries,
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
		"has_more": page.HasMore,
	})
}

// getTeamHistorySummaryHandler describes a team's persisted history.
func (s *Server) getTeamHistorySummaryHandler(c *gin.Context) {
	teamID := c.Param("id")

	summary, err := s.teamController.GetHistorySummary(c.Request.Context(), teamID)
	if err != nil {
		if errors.Is(err, store.ErrTeamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
			return
		}
		log.Error().Err(err).Str("teamID", teamID).Msg("Failed to load history summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history summary: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team_id":        teamID,
		"total_reports":  summary.TotalReports,
		"first_report":   summary.FirstReport,
		"last_report":    summary.LastReport,
		"data_directory": summary.DataDirectory,
		"recent_files":   summary.RecentFiles,
	})
}
