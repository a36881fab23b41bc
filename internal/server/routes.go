package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)
	r.GET("/online", s.onlineHandler)

	r.POST("/api/stats/report", s.IngestAuthMiddleware(), s.submitStatsHandler)

	r.GET("/api/teams", s.listTeamsHandler)
	r.GET("/api/teams/:id", s.getTeamHandler)
	r.GET("/api/teams/:id/history", s.getTeamHistoryHandler)
	r.GET("/api/teams/:id/history/summary", s.getTeamHistorySummaryHandler)

	r.GET("/ws", func(c *gin.Context) {
		s.hub.HandleConnection(c.Writer, c.Request)
	})

	return r
}
