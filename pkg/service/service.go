// Package service coordinates the lifecycle of the engine's long-running
// components: the HTTP surface, the quote service and the settlement
// pipeline. The Registry starts them in dependency order and stops them
// in reverse.
package service

import (
	"context"
)

// Status is the lifecycle state of a managed component.
type Status string

const (
	// StatusStopped indicates the service is not running.
	StatusStopped Status = "STOPPED"
	// StatusStarting indicates the service is in the process of starting.
	StatusStarting Status = "STARTING"
	// StatusRunning indicates the service is running normally.
	StatusRunning Status = "RUNNING"
	// StatusStopping indicates the service is in the process of stopping.
	StatusStopping Status = "STOPPING"
	// StatusError indicates the service encountered an error.
	StatusError Status = "ERROR"
)

// Service is one managed component. Implementations kick off their
// long-running work in background goroutines; Start and Stop themselves
// return promptly.
type Service interface {
	// Name identifies the service in the registry and in the dependency
	// lists of other services.
	Name() string

	// Start brings the service up.
	Start(ctx context.Context) error

	// Stop shuts the service down, releasing broker and store handles.
	Stop(ctx context.Context) error

	// Status reports the current lifecycle state.
	Status() Status

	// Health returns an error while the service cannot do useful work.
	Health() error

	// Dependencies names the services that must be running before this
	// one starts.
	Dependencies() []string
}
