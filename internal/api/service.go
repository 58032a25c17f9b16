// internal/api/service.go
package api

import (
	"context"
	"fmt"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/processor"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/logging"
	"github.com/traversefi/traverse/pkg/service"
)

// APIService wraps the API server as a Service.
type APIService struct {
	server    *Server
	config    *config.Config
	directory Directory
	registry  *engine.Registry
	deps      engine.Deps
	caches    processor.CacheInvalidator
	custody   Pinger
	status    service.Status
	logger    *logging.Logger
}

// NewAPIService creates a new API service.
func NewAPIService(cfg *config.Config, directory Directory, registry *engine.Registry, deps engine.Deps, caches processor.CacheInvalidator, custody Pinger, logger *logging.Logger) *APIService {
	return &APIService{
		config:    cfg,
		directory: directory,
		registry:  registry,
		deps:      deps,
		caches:    caches,
		custody:   custody,
		status:    service.StatusStopped,
		logger:    logger,
	}
}

// Name returns the service name.
func (s *APIService) Name() string {
	return "api"
}

// Start initializes and starts the service.
func (s *APIService) Start(ctx context.Context) error {
	s.status = service.StatusStarting
	s.logger.Info("starting API service")

	s.server = NewServer(s.config, s.directory, s.registry, s.deps, s.caches, s.custody, s.logger)
	go s.server.Start()

	s.status = service.StatusRunning
	s.logger.Info("API service started")
	return nil
}

// Stop gracefully shuts down the service.
func (s *APIService) Stop(ctx context.Context) error {
	s.status = service.StatusStopping
	s.logger.Info("stopping API service")

	if s.server != nil {
		s.server.Shutdown(ctx)
	}

	s.status = service.StatusStopped
	s.logger.Info("API service stopped")
	return nil
}

// Status returns the current service status.
func (s *APIService) Status() service.Status {
	return s.status
}

// Health performs a health check.
func (s *APIService) Health() error {
	if s.status != service.StatusRunning {
		return fmt.Errorf("service not running")
	}
	if s.server == nil {
		return fmt.Errorf("server not initialized")
	}
	return nil
}

// Dependencies returns a list of services this service depends on.
func (s *APIService) Dependencies() []string {
	return []string{"quotes", "settlement"}
}
