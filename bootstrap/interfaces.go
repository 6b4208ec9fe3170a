// Package bootstrap wires the socialshard services together and runs them
// in dependency order.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/najoast/socialshard/config"
	"github.com/najoast/socialshard/core"
)

// Service is one unit the lifecycle manager starts, stops and probes.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (HealthStatus, error)
	Name() string
}

// HealthStatus is what /health reports per service.
type HealthStatus struct {
	State     HealthState    `json:"state"`
	Message   string         `json:"message,omitempty"`
	LastCheck time.Time      `json:"last_check,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthStopped   HealthState = "stopped"
)

// Container maps well-known keys (KeyStore, KeyActorSystem, ...) to the
// components behind them.
type Container interface {
	Register(name string, factory ServiceFactory) error
	Set(name string, v any)
	Resolve(name string) (any, error)
	Has(name string) bool
	Names() []string
}

// ServiceFactory builds the value of a container key on first Resolve.
type ServiceFactory func(c Container) (any, error)

// LifecycleManager starts services after their dependencies and stops them
// in reverse.
type LifecycleManager interface {
	Register(name string, service Service, deps ...string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (map[string]HealthStatus, error)

	// Services returns the registered names, sorted.
	Services() []string

	// Events is a buffered feed of lifecycle events; events are dropped
	// while it is full.
	Events() <-chan LifecycleEvent
	AddListener(listener func(LifecycleEvent))
}

// Application is a configured socialshard node.
type Application interface {
	// Configure installs the configuration. It must precede Start.
	Configure(cfg *config.Config) error

	Start(ctx context.Context) error

	// Run starts the application and blocks until a signal arrives or ctx
	// is done, then shuts down.
	Run(ctx context.Context) error

	Shutdown(ctx context.Context) error

	Container() Container
	LifecycleManager() LifecycleManager

	// ActorSystem returns the running actor system, or nil before Start.
	ActorSystem() core.ActorSystem

	// ProvisionUser creates a principal and its user actor, registers it
	// at the user index and makes the principal the profile owner.
	ProvisionUser(ctx context.Context) (core.Identity, error)
}

// EventType names a lifecycle transition.
type EventType string

type LifecycleEvent struct {
	Type      EventType      `json:"type"`
	Service   string         `json:"service,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     error          `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ApplicationError ties a failure to the lifecycle operation and service it
// happened in.
type ApplicationError struct {
	Operation string
	Service   string
	Err       error
}

func (e *ApplicationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s %s: %v", e.Operation, e.Service, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
