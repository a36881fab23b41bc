package server

import (
	"fmt"
	"net/http"
	"time"

	"benchboard/internal/broadcast"
	"benchboard/internal/config"
	"benchboard/internal/controller"
)

type Server struct {
	sc             controller.ServerController
	rc             *controller.ReportController
	teamController *controller.TeamController
	hub            *broadcast.Hub
	config         *config.Config
}

func New(cfg *config.Config, sc controller.ServerController, rc *controller.ReportController, teamController *controller.TeamController, hub *broadcast.Hub) *http.Server {
	server := Server{
		sc:             sc,
		rc:             rc,
		teamController: teamController,
		hub:            hub,
		config:         cfg,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", cfg.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
