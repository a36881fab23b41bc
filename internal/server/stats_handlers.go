package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"benchboard/internal/model"
)

// Team identity travels in headers so the body stays a pure StatsReport.
const (
	headerTeamID   = "X-Team-ID"
	headerTeamName = "X-Team-Name"
)

// submitStatsHandler ingests one benchmark report. Validation failures are
// client errors and nothing is stored; a failed durable write is a server
// error and the previous snapshot stays visible.
func (s *Server) submitStatsHandler(c *gin.Context) {
	teamID := c.GetHeader(headerTeamID)
	if teamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Team-ID header is required"})
		return
	}
	if strings.ContainsAny(teamID, `/\`) || teamID == "." || teamID == ".." {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid team ID"})
		return
	}

	encodedName := c.GetHeader(headerTeamName)
	if encodedName == "" {
		encodedName = "Team-" + teamID
	}
	teamName, err := url.QueryUnescape(encodedName)
	if err != nil {
		// Undecodable names are used verbatim rather than rejected.
		teamName = encodedName
	}

	var report model.StatsReport
	if err := c.ShouldBindJSON(&report); err != nil {
		log.Debug().Err(err).Str("teamID", teamID).Msg("Rejected malformed report")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := report.Validate(); err != nil {
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			log.Debug().Str("teamID", teamID).Str("field", validationErr.Field).Msg("Rejected invalid report")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.rc.Submit(c.Request.Context(), teamID, teamName, &report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store report: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stats submitted successfully", "team_id": teamID})
}
