// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config resolves a pipeline topology file into a validated
// PipelineConfig, the tree internal/pipeline/orchestrator's Build consumes.
// Loading is layered with koanf: defaults, then YAML file, then environment
// overrides.
package config

// PipelineConfig is the root of the declarative topology tree: channels,
// resources and services keyed by name, an optional startup ordering, and
// the metrics collector's own options.
type PipelineConfig struct {
	Channels        map[string]ChannelConfig  `koanf:"channels" validate:"dive"`
	Resources       map[string]ResourceConfig `koanf:"resources" validate:"dive"`
	Services        map[string]ServiceConfig  `koanf:"services" validate:"required,dive"`
	StartupSequence []string                  `koanf:"startupsequence"`
	Metrics         MetricsConfig             `koanf:"metrics"`
}

// ChannelConfig names the constructor ("className") registered for a
// channel and the options subtree passed to it.
type ChannelConfig struct {
	ClassName string         `koanf:"classname" validate:"required"`
	Options   map[string]any `koanf:"options"`
}

// ResourceConfig names the constructor registered for a resource and the
// options subtree passed to it.
type ResourceConfig struct {
	ClassName string         `koanf:"classname" validate:"required"`
	Options   map[string]any `koanf:"options"`
}

// PortAttachment is one or more channel/resource names bound to a single
// logical port. In YAML this is either a bare string or a list of strings;
// decodeHooks normalizes both forms to this type.
type PortAttachment []string

// ServiceConfig names the constructor registered for a service, its port
// wiring, and its own options subtree.
type ServiceConfig struct {
	ClassName string                    `koanf:"classname" validate:"required"`
	Inputs    map[string]PortAttachment `koanf:"inputs"`
	Outputs   map[string]PortAttachment `koanf:"outputs"`
	Resources map[string]string         `koanf:"resources"`
	Options   map[string]any            `koanf:"options"`
}

// MetricsConfig controls the periodic metrics collector.
type MetricsConfig struct {
	UpdateIntervalSeconds int  `koanf:"updateintervalseconds" validate:"gte=0"`
	Enabled               bool `koanf:"enabled"`
}

// DefaultMetricsConfig matches the spec's stated defaults: a three-second
// collection window, enabled.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{UpdateIntervalSeconds: 3, Enabled: true}
}
