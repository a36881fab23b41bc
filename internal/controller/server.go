package controller

import (
	"context"

	"benchboard/internal/cache"
	"benchboard/internal/rabbitmq"
	"benchboard/internal/store"
)

type ServerController interface {
	Health(ctx context.Context) (string, error)
	Online() string
}

type serverController struct {
	store    store.Store
	cache    cache.SnapshotCache
	firehose rabbitmq.Publisher
}

// NewServer wires the health surface; cache and firehose may be nil.
func NewServer(s store.Store, snapshotCache cache.SnapshotCache, firehose rabbitmq.Publisher) ServerController {
	return &serverController{
		store:    s,
		cache:    snapshotCache,
		firehose: firehose,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) Health(ctx context.Context) (string, error) {
	if err := sc.store.Health(ctx); err != nil {
		return "store unavailable", err
	}
	if sc.cache != nil {
		if err := sc.cache.Ping(ctx); err != nil {
			return "cache unavailable", err
		}
	}
	if sc.firehose != nil {
		if err := sc.firehose.Health(); err != nil {
			return "firehose unavailable", err
		}
	}
	return "OK", nil
}
