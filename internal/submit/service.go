// internal/submit/service.go
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/traversefi/traverse/internal/storage"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/logging"
	"github.com/traversefi/traverse/pkg/service"
)

const batchInterval = 30 * time.Second

// SettlementService runs the settlement worker and the finality
// batcher as a Service.
type SettlementService struct {
	cfg     *config.Config
	custody *storage.RedisCustody
	logger  *logging.Logger

	worker  *Worker
	batcher *Batcher
	cancel  context.CancelFunc
	status  service.Status
}

// NewSettlementService creates the settlement service.
func NewSettlementService(cfg *config.Config, custody *storage.RedisCustody, logger *logging.Logger) *SettlementService {
	return &SettlementService{
		cfg:     cfg,
		custody: custody,
		logger:  logger,
		status:  service.StatusStopped,
	}
}

// Name returns the service name.
func (s *SettlementService) Name() string {
	return "settlement"
}

// Start initializes and starts the service.
func (s *SettlementService) Start(ctx context.Context) error {
	s.status = service.StatusStarting

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.batcher = NewBatcher(s.custody.Client, batchInterval)

	worker, err := NewWorker(runCtx, s.cfg, s.custody, s.batcher, s.logger)
	if err != nil {
		cancel()
		s.status = service.StatusError
		return fmt.Errorf("failed to create settlement worker: %w", err)
	}
	s.worker = worker

	go s.batcher.Run(runCtx)
	go func() {
		if err := s.worker.Start(); err != nil {
			s.logger.Error("settlement worker stopped", "error", err)
			s.status = service.StatusError
		}
	}()

	s.status = service.StatusRunning
	return nil
}

// Stop gracefully shuts down the service.
func (s *SettlementService) Stop(ctx context.Context) error {
	s.status = service.StatusStopping

	if s.cancel != nil {
		s.cancel()
	}

	s.status = service.StatusStopped
	return nil
}

// Status returns the current service status.
func (s *SettlementService) Status() service.Status {
	return s.status
}

// Health performs a health check.
func (s *SettlementService) Health() error {
	if s.status != service.StatusRunning {
		return fmt.Errorf("service not running")
	}
	return s.custody.Ping(context.Background())
}

// Dependencies returns a list of services this service depends on.
func (s *SettlementService) Dependencies() []string {
	return []string{}
}

// Batcher provides access to the finality batcher.
func (s *SettlementService) Batcher() *Batcher {
	return s.batcher
}
