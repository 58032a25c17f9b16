// Package health reports reachability of the transfer engine's backing
// dependencies: the custody store, the settlement broker and the API
// itself.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/traversefi/traverse/pkg/logging"
)

// Status is the reported health of one component.
type Status string

const (
	// StatusUp indicates the component is healthy.
	StatusUp Status = "UP"
	// StatusDown indicates the component is unhealthy.
	StatusDown Status = "DOWN"
	// StatusUnknown indicates the component's health is unknown.
	StatusUnknown Status = "UNKNOWN"
)

// Check is the outcome of probing one component.
type Check struct {
	// Name is the component checked.
	Name string
	// Status is the component's health.
	Status Status
	// Message carries detail for operators.
	Message string
	// LastChecked is when the check ran.
	LastChecked time.Time
	// Error is the check failure, if any.
	Error error
}

// MarshalJSON implements the json.Marshaler interface.
func (c Check) MarshalJSON() ([]byte, error) {
	var errorStr string
	if c.Error != nil {
		errorStr = c.Error.Error()
	}

	return json.Marshal(struct {
		Name        string    `json:"name"`
		Status      Status    `json:"status"`
		Message     string    `json:"message,omitempty"`
		LastChecked time.Time `json:"last_checked"`
		Error       string    `json:"error,omitempty"`
	}{
		Name:        c.Name,
		Status:      c.Status,
		Message:     c.Message,
		LastChecked: c.LastChecked,
		Error:       errorStr,
	})
}

// Checker checks one component.
type Checker func(ctx context.Context) Check

// Registry holds the registered component checks.
type Registry struct {
	checks map[string]Checker
	mutex  sync.RWMutex
	logger *logging.Logger
}

// NewRegistry creates an empty health check registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		checks: make(map[string]Checker),
		logger: logger,
	}
}

// Register adds a component check, replacing any previous check with the
// same name.
func (r *Registry) Register(name string, checker Checker) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.checks[name] = checker
	r.logger.Debug("registered health check", "name", name)
}

// Unregister removes a component check.
func (r *Registry) Unregister(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.checks, name)
	r.logger.Debug("unregistered health check", "name", name)
}

// RunChecks runs every registered component check.
func (r *Registry) RunChecks(ctx context.Context) map[string]Check {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	results := make(map[string]Check)
	for name, checker := range r.checks {
		results[name] = checker(ctx)
	}

	return results
}

// IsHealthy reports whether every registered component is up.
func (r *Registry) IsHealthy(ctx context.Context) bool {
	for _, check := range r.RunChecks(ctx) {
		if check.Status != StatusUp {
			return false
		}
	}
	return true
}

// Overall folds per-component results into one status: any DOWN
// component makes the whole engine DOWN, any UNKNOWN makes it UNKNOWN.
func Overall(checks map[string]Check) Status {
	status := StatusUp
	for _, check := range checks {
		switch check.Status {
		case StatusDown:
			return StatusDown
		case StatusUnknown:
			status = StatusUnknown
		}
	}
	return status
}

// Handler serves the aggregated health report. A DOWN engine answers 503
// so load balancers stop routing transfers to it.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		checks := r.RunChecks(req.Context())
		status := Overall(checks)

		code := http.StatusOK
		if status == StatusDown {
			code = http.StatusServiceUnavailable
		}

		response := struct {
			Status    Status           `json:"status"`
			Timestamp time.Time        `json:"timestamp"`
			Checks    map[string]Check `json:"checks"`
		}{
			Status:    status,
			Timestamp: time.Now(),
			Checks:    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			r.logger.Error("error encoding health check response", "error", err)
		}
	})
}

// PingChecker wraps a dependency ping into a Checker. It covers the
// custody store, the settlement broker and any other dependency that
// exposes a ping.
func PingChecker(name string, ping func(ctx context.Context) error) Checker {
	return func(ctx context.Context) Check {
		check := Check{
			Name:        name,
			Status:      StatusUnknown,
			LastChecked: time.Now(),
		}

		if err := ping(ctx); err != nil {
			check.Status = StatusDown
			check.Error = err
			check.Message = fmt.Sprintf("%s is unreachable: %v", name, err)
			return check
		}

		check.Status = StatusUp
		check.Message = fmt.Sprintf("%s is reachable", name)
		return check
	}
}
