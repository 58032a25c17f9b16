// internal/quotes/service.go
package quotes

import (
	"context"
	"fmt"

	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/service"
)

// QuotesService wraps RedisQuotes as a Service.
type QuotesService struct {
	quotes *RedisQuotes
	status service.Status
}

// NewQuotesService creates a new quotes service.
func NewQuotesService(cfg *config.Config) (*QuotesService, error) {
	quotes, err := NewRedisQuotes(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote service: %w", err)
	}

	return &QuotesService{
		quotes: quotes,
		status: service.StatusStopped,
	}, nil
}

// Name returns the service name.
func (s *QuotesService) Name() string {
	return "quotes"
}

// Start initializes and starts the service.
func (s *QuotesService) Start(ctx context.Context) error {
	s.status = service.StatusStarting

	// Quote locking is request-driven; nothing long-running to start.

	s.status = service.StatusRunning
	return nil
}

// Stop gracefully shuts down the service.
func (s *QuotesService) Stop(ctx context.Context) error {
	s.status = service.StatusStopping

	if s.quotes != nil {
		if err := s.quotes.Close(); err != nil {
			return fmt.Errorf("error closing quote service: %w", err)
		}
	}

	s.status = service.StatusStopped
	return nil
}

// Status returns the current service status.
func (s *QuotesService) Status() service.Status {
	return s.status
}

// Health performs a health check.
func (s *QuotesService) Health() error {
	if s.status != service.StatusRunning {
		return fmt.Errorf("service not running")
	}
	return s.quotes.Ping(context.Background())
}

// Dependencies returns a list of services this service depends on.
func (s *QuotesService) Dependencies() []string {
	return []string{}
}

// Quotes provides access to the underlying quote service.
func (s *QuotesService) Quotes() *RedisQuotes {
	return s.quotes
}
