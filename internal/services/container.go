package services

import (
	"context"

	"vigil-worker-go/internal/config"
	"vigil-worker-go/internal/ingest"
	"vigil-worker-go/internal/services/detection"
	"vigil-worker-go/internal/services/messaging"
	"vigil-worker-go/internal/services/pipeline"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config       *config.Config
	Messaging    *messaging.Service
	DetectionSvc *detection.Service
	Manager      *pipeline.Manager
}

// NewServiceContainer creates a new service container
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	// Messaging first; both the detector client and the event publisher
	// ride on it.
	msg, err := messaging.NewService(cfg)
	if err != nil {
		return nil, err
	}

	detectionSvc := detection.NewService(msg, cfg)

	zones, err := config.LoadZones(cfg.ZonesFile)
	if err != nil {
		return nil, err
	}

	pool := ingest.NewPool(cfg)
	manager := pipeline.NewManager(cfg, pool, detectionSvc, msg, zones)

	// Control-plane consumers: zone reloads are broadcast to every worker,
	// source assignments are queue-grouped so exactly one worker claims
	// each camera.
	if _, err := msg.Subscribe(cfg.ZonesReloadSubject, manager.HandleZonesReload); err != nil {
		return nil, err
	}
	if _, err := msg.QueueSubscribe(cfg.SourceAssignSubject, cfg.SourceAssignQueue, manager.HandleSourceAssign); err != nil {
		return nil, err
	}

	return &ServiceContainer{
		Config:       cfg,
		Messaging:    msg,
		DetectionSvc: detectionSvc,
		Manager:      manager,
	}, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	if sc.Manager != nil {
		if err := sc.Manager.Shutdown(ctx); err != nil {
			return err
		}
	}

	if sc.Messaging != nil {
		sc.Messaging.Shutdown(ctx)
	}

	return nil
}
