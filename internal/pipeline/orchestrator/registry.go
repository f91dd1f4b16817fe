// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"fmt"
	"sync"

	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
	"github.com/evochora/streamline/internal/pipeline/service"
)

// ChannelFactory builds the channel registered under name, reading its
// options subtree. Registered once per className at program start.
type ChannelFactory func(name string, opts *OptionsView) (ChannelHandle, error)

// ResourceFactory builds the resource registered under name.
type ResourceFactory func(name string, opts *OptionsView) (resource.Resource, error)

// ServiceFactory builds a service's Logic. inputs/outputs map a port name
// to its ordered list of attachments (each element is *binding.Attachment[T]
// for whatever T the factory's own ports expect — the factory type-asserts).
// resources maps a port name to its ordered list of capability wrappers,
// already resolved from "<capability>:<resourceName>" references.
type ServiceFactory func(name string, opts *OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error)

// Registry is the orchestrator's registry of constructors keyed by
// className, replacing reflective instantiation-by-name: a registry
// populated once at program start, consulted by Build.
type Registry struct {
	mu sync.RWMutex

	channels  map[string]ChannelFactory
	resources map[string]ResourceFactory
	services  map[string]ServiceFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels:  make(map[string]ChannelFactory),
		resources: make(map[string]ResourceFactory),
		services:  make(map[string]ServiceFactory),
	}
}

// RegisterChannel adds a channel constructor under className. Registering
// the same className twice replaces the prior constructor.
func (r *Registry) RegisterChannel(className string, factory ChannelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[className] = factory
}

// RegisterResource adds a resource constructor under className.
func (r *Registry) RegisterResource(className string, factory ResourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[className] = factory
}

// RegisterService adds a service constructor under className.
func (r *Registry) RegisterService(className string, factory ServiceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[className] = factory
}

func (r *Registry) channelFactory(className string) (ChannelFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.channels[className]
	if !ok {
		return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("orchestrator: no channel class registered for %q", className))
	}
	return f, nil
}

func (r *Registry) resourceFactory(className string) (ResourceFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.resources[className]
	if !ok {
		return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("orchestrator: no resource class registered for %q", className))
	}
	return f, nil
}

func (r *Registry) serviceFactory(className string) (ServiceFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.services[className]
	if !ok {
		return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("orchestrator: no service class registered for %q", className))
	}
	return f, nil
}
