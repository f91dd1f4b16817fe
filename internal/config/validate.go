// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate runs struct-tag validation over the decoded tree and checks the
// cross-field invariants the tags can't express: every channel an input or
// output refers to must exist, every resource a service refers to must
// exist, and startupSequence must name only known services with no
// duplicates.
func Validate(cfg *PipelineConfig) error {
	if err := getValidator().Struct(cfg); err != nil {
		return perr.Wrap(perr.InvalidConfig, "config: struct validation failed", err)
	}

	for svcName, svc := range cfg.Services {
		for port, attachment := range svc.Inputs {
			if err := requireChannels(cfg, attachment); err != nil {
				return perr.New(perr.InvalidConfig, "config: service "+svcName+" input port "+port+": "+err.Error())
			}
		}
		for port, attachment := range svc.Outputs {
			if err := requireChannels(cfg, attachment); err != nil {
				return perr.New(perr.InvalidConfig, "config: service "+svcName+" output port "+port+": "+err.Error())
			}
		}
		for port, ref := range svc.Resources {
			if err := requireResourceRef(cfg, ref); err != nil {
				return perr.New(perr.InvalidConfig, "config: service "+svcName+" resource port "+port+": "+err.Error())
			}
		}
	}

	seen := make(map[string]bool, len(cfg.StartupSequence))
	for _, name := range cfg.StartupSequence {
		if seen[name] {
			return perr.New(perr.InvalidConfig, "config: startupSequence lists "+name+" more than once")
		}
		seen[name] = true
		if _, ok := cfg.Services[name]; !ok {
			return perr.New(perr.InvalidConfig, "config: startupSequence names unknown service "+name)
		}
	}
	return nil
}

func requireChannels(cfg *PipelineConfig, names PortAttachment) error {
	for _, name := range names {
		if _, ok := cfg.Channels[name]; !ok {
			return errUndefinedChannel(name)
		}
	}
	return nil
}

func requireResourceRef(cfg *PipelineConfig, ref string) error {
	resourceName, err := splitCapabilityRef(ref)
	if err != nil {
		return err
	}
	if _, ok := cfg.Resources[resourceName]; !ok {
		return errUndefinedResource(resourceName)
	}
	return nil
}
