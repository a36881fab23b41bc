package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) healthHandler(c *gin.Context) {
	health, err := s.sc.Health(c.Request.Context())

	if err != nil {
		c.String(http.StatusInternalServerError, health)
		return
	}

	c.String(http.StatusOK, health)
}

func (s *Server) onlineHandler(c *gin.Context) {
	online := s.sc.Online()

	c.String(http.StatusOK, online)
}
