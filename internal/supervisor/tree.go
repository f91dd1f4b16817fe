// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults, matching suture's
// own built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree manages the supervisor hierarchy the orchestrator runs the pipeline
// topology under. It is organized into two layers under the root for
// failure isolation:
//
//	root ("streamline")
//	├── services-layer   one Runner per configured service
//	└── metrics-layer     the periodic collector, isolated so a panic in a
//	                       service never silences metrics collection
//
// Resources are not suture-supervised (they have no Serve loop of their
// own); the orchestrator closes them itself, after removing every service
// from the services layer.
type Tree struct {
	root     *suture.Supervisor
	services *suture.Supervisor
	metrics  *suture.Supervisor
	config   TreeConfig
}

// NewTree creates a new supervisor tree with the given configuration.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("streamline", rootSpec)
	services := suture.New("services-layer", childSpec)
	metrics := suture.New("metrics-layer", childSpec)

	root.Add(services)
	root.Add(metrics)

	return &Tree{root: root, services: services, metrics: metrics, config: config}
}

// Root returns the root supervisor for direct access if needed.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddService adds a service Runner to the services layer.
func (t *Tree) AddService(svc suture.Service) suture.ServiceToken {
	return t.services.Add(svc)
}

// AddMetricsService adds the metrics collector to its own isolated layer.
func (t *Tree) AddMetricsService(svc suture.Service) suture.ServiceToken {
	return t.metrics.Add(svc)
}

// RemoveService removes a previously added service from the services layer.
func (t *Tree) RemoveService(token suture.ServiceToken) error {
	return t.services.Remove(token)
}

// Serve starts the supervisor tree and blocks until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the supervisor tree in a background goroutine,
// returning a channel that receives the terminal error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that failed to stop within the
// configured shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// RemoveAndWait removes a service and waits for it to fully stop, used by
// the orchestrator's stopAll to guarantee reverse-sequence ordering.
func (t *Tree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	return t.services.RemoveAndWait(token, timeout)
}
