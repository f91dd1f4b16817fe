// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator builds a pipeline topology from a resolved
// config.PipelineConfig and owns every lifecycle in it. Channels and
// resources are instantiated first (leaves of the build order), then
// services, each wired to its bindings and capability wrappers; a
// suture.Supervisor tree (internal/supervisor) drives concurrent execution
// and a metrics.Collector samples every binding on a fixed interval. A
// service never sees a raw channel or resource, only the bindings and
// wrappers Build hands it.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/evochora/streamline/internal/config"
	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/metrics"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
	"github.com/evochora/streamline/internal/pipeline/service"
	"github.com/evochora/streamline/internal/supervisor"
)

// builtService is everything the orchestrator keeps about one configured
// service after Build, enough to start it, stop it, and report its status.
type builtService struct {
	runner   *service.Runner
	bindings []binding.Binding
	token    suture.ServiceToken
	added    bool
}

// Orchestrator owns a single pipeline's topology: its channels, resources,
// services, supervisor tree, and metrics collector.
type Orchestrator struct {
	registry *Registry

	mu            sync.RWMutex
	channels      map[string]ChannelHandle
	resources     map[string]resource.Resource
	resourceOrder []string
	services      map[string]*builtService
	startOrder    []string

	tree          *supervisor.Tree
	collector     *metrics.Collector
	metricsEnabled bool
}

// New creates an empty orchestrator ready for Build. treeConfig governs the
// supervisor tree's restart/backoff behavior (DefaultTreeConfig is
// reasonable for most topologies).
func New(registry *Registry, treeConfig supervisor.TreeConfig) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		channels:  make(map[string]ChannelHandle),
		resources: make(map[string]resource.Resource),
		services:  make(map[string]*builtService),
		tree:      supervisor.NewTree(logging.NewSlogLogger(), treeConfig),
	}
}

// Build instantiates the entire topology from cfg. cfg is assumed already
// validated by config.Validate (channel/resource references resolved,
// startupSequence checked for duplicates and unknown names) — Build only
// performs the build-time checks validation can't: unregistered classNames
// and capability type mismatches.
func (o *Orchestrator) Build(cfg *config.PipelineConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	windowSeconds := cfg.Metrics.UpdateIntervalSeconds
	if windowSeconds <= 0 {
		windowSeconds = 3
	}
	o.collector = metrics.NewCollector(time.Duration(windowSeconds) * time.Second)
	o.metricsEnabled = cfg.Metrics.Enabled

	if err := o.buildChannels(cfg); err != nil {
		return err
	}
	if err := o.buildResources(cfg); err != nil {
		return err
	}
	if err := o.buildServices(cfg); err != nil {
		return err
	}
	o.startOrder = computeStartOrder(cfg)
	return nil
}

func (o *Orchestrator) buildChannels(cfg *config.PipelineConfig) error {
	for _, name := range sortedKeys(cfg.Channels) {
		chCfg := cfg.Channels[name]
		opts, err := NewOptionsView(chCfg.Options)
		if err != nil {
			return err
		}
		factory, err := o.registry.channelFactory(chCfg.ClassName)
		if err != nil {
			return err
		}
		handle, err := factory(name, opts)
		if err != nil {
			return perr.Wrap(perr.InvalidConfig, "orchestrator: build channel "+name, err)
		}
		o.channels[name] = handle
	}
	return nil
}

func (o *Orchestrator) buildResources(cfg *config.PipelineConfig) error {
	for _, name := range sortedKeys(cfg.Resources) {
		resCfg := cfg.Resources[name]
		opts, err := NewOptionsView(resCfg.Options)
		if err != nil {
			return err
		}
		factory, err := o.registry.resourceFactory(resCfg.ClassName)
		if err != nil {
			return err
		}
		res, err := factory(name, opts)
		if err != nil {
			return perr.Wrap(perr.InvalidConfig, "orchestrator: build resource "+name, err)
		}
		o.resources[name] = res
		o.resourceOrder = append(o.resourceOrder, name)
	}
	return nil
}

func (o *Orchestrator) buildServices(cfg *config.PipelineConfig) error {
	for _, name := range sortedKeys(cfg.Services) {
		svcCfg := cfg.Services[name]

		opts, err := NewOptionsView(svcCfg.Options)
		if err != nil {
			return err
		}

		lc := service.NewLifecycle(name)
		var bindings []binding.Binding

		inputs, err := o.buildPortAttachments(name, svcCfg.Inputs, binding.Input, lc, &bindings)
		if err != nil {
			return err
		}
		outputs, err := o.buildPortAttachments(name, svcCfg.Outputs, binding.Output, lc, &bindings)
		if err != nil {
			return err
		}
		resources, err := o.buildResourceAttachments(name, svcCfg.Resources)
		if err != nil {
			return err
		}

		factory, err := o.registry.serviceFactory(svcCfg.ClassName)
		if err != nil {
			return err
		}
		logic, err := factory(name, opts, inputs, outputs, resources)
		if err != nil {
			return perr.Wrap(perr.InvalidConfig, "orchestrator: build service "+name, err)
		}

		o.services[name] = &builtService{
			runner:   service.NewRunnerWithLifecycle(lc, logic),
			bindings: bindings,
		}
	}
	return nil
}

func (o *Orchestrator) buildPortAttachments(serviceName string, ports map[string]config.PortAttachment, direction binding.Direction, lc *service.Lifecycle, bindings *[]binding.Binding) (map[string][]any, error) {
	out := make(map[string][]any, len(ports))
	for port, attachment := range ports {
		for _, chName := range attachment {
			handle, ok := o.channels[chName]
			if !ok {
				return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("orchestrator: service %s port %s: channel %q not built", serviceName, port, chName))
			}
			att := handle.NewAttachment(serviceName, port, direction, lc)
			out[port] = append(out[port], att)
			if b, ok := att.(binding.Binding); ok {
				o.collector.Register(b)
				*bindings = append(*bindings, b)
			}
		}
	}
	return out, nil
}

func (o *Orchestrator) buildResourceAttachments(serviceName string, refs map[string]string) (map[string][]any, error) {
	out := make(map[string][]any, len(refs))
	for port, ref := range refs {
		capability, resourceName, err := config.Split(ref)
		if err != nil {
			return nil, perr.Wrap(perr.InvalidConfig, fmt.Sprintf("orchestrator: service %s resource port %s", serviceName, port), err)
		}
		res, ok := o.resources[resourceName]
		if !ok {
			return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("orchestrator: service %s resource port %s: resource %q not built", serviceName, port, resourceName))
		}
		wrapper, err := res.GetWrappedResource(resource.ResourceContext{ServiceName: serviceName, PortName: port, Capability: capability})
		if err != nil {
			return nil, perr.Wrap(perr.InvalidConfig, fmt.Sprintf("orchestrator: service %s resource port %s: get wrapped resource", serviceName, port), err)
		}
		out[port] = append(out[port], wrapper)
		if src, ok := wrapper.(metrics.Source); ok {
			o.collector.RegisterSource(src)
		}
	}
	return out, nil
}

// computeStartOrder returns startupSequence followed by every remaining
// service name (not already listed) in alphabetical order. A koanf-decoded
// map has no definition order to recover, so alphabetical is this build's
// stable stand-in — deterministic across runs, which is the property that
// matters for a reproducible startup order.
func computeStartOrder(cfg *config.PipelineConfig) []string {
	listed := make(map[string]bool, len(cfg.StartupSequence))
	order := append([]string(nil), cfg.StartupSequence...)
	for _, name := range cfg.StartupSequence {
		listed[name] = true
	}
	for _, name := range sortedKeys(cfg.Services) {
		if !listed[name] {
			order = append(order, name)
		}
	}
	return order
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartAll starts the supervisor tree and adds every service in
// startupSequence order, then the metrics collector (if enabled) in its
// own isolated layer. Suture starts a service immediately when Add is
// called on an already-serving supervisor, so adding services one at a
// time in order is what gives startAll its sequential-start guarantee.
func (o *Orchestrator) StartAll(ctx context.Context) <-chan error {
	o.mu.Lock()
	defer o.mu.Unlock()

	errCh := o.tree.ServeBackground(ctx)

	for _, name := range o.startOrder {
		svc := o.services[name]
		svc.token = o.tree.AddService(svc.runner)
		svc.added = true
		logging.Info().Str("service", name).Msg("service added to supervisor tree")
	}
	if o.metricsEnabled {
		o.tree.AddMetricsService(o.collector)
	}
	return errCh
}

// StopAll removes every service in reverse startupSequence order, waiting
// up to timeout for each to fully stop before removing the next, then
// closes every resource in reverse build order. Resources are not
// suture-supervised, so the orchestrator owns this teardown sequencing
// directly, per internal/supervisor's doc comment.
func (o *Orchestrator) StopAll(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for i := len(o.startOrder) - 1; i >= 0; i-- {
		name := o.startOrder[i]
		svc := o.services[name]
		if !svc.added {
			continue
		}
		if err := o.tree.RemoveAndWait(svc.token, timeout); err != nil {
			logging.Err(err).Str("service", name).Msg("service did not stop within timeout")
			if firstErr == nil {
				firstErr = err
			}
		}
		svc.added = false
	}

	for i := len(o.resourceOrder) - 1; i >= 0; i-- {
		name := o.resourceOrder[i]
		if err := o.resources[name].Close(); err != nil {
			logging.Err(err).Str("resource", name).Msg("resource close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Pause transitions the named service RUNNING -> PAUSED. A no-op if the
// service isn't currently RUNNING.
func (o *Orchestrator) Pause(serviceName string) error {
	svc, err := o.lookupService(serviceName)
	if err != nil {
		return err
	}
	svc.runner.Lifecycle().Pause()
	return nil
}

// Resume transitions the named service PAUSED -> RUNNING.
func (o *Orchestrator) Resume(serviceName string) error {
	svc, err := o.lookupService(serviceName)
	if err != nil {
		return err
	}
	svc.runner.Lifecycle().Resume()
	return nil
}

// ServiceState reports the named service's current lifecycle state.
func (o *Orchestrator) ServiceState(serviceName string) (service.State, error) {
	svc, err := o.lookupService(serviceName)
	if err != nil {
		return service.Stopped, err
	}
	return svc.runner.Lifecycle().State(), nil
}

func (o *Orchestrator) lookupService(serviceName string) (*builtService, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	svc, ok := o.services[serviceName]
	if !ok {
		return nil, perr.New(perr.InvalidConfig, "orchestrator: unknown service "+serviceName)
	}
	return svc, nil
}

// UnstoppedServiceReport delegates to the supervisor tree, useful for
// operator diagnostics when StopAll returns a timeout error.
func (o *Orchestrator) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return o.tree.UnstoppedServiceReport()
}

// Collector exposes the metrics collector, e.g. for cmd/streamlined to
// read a Prometheus-independent snapshot on request.
func (o *Orchestrator) Collector() *metrics.Collector {
	return o.collector
}
