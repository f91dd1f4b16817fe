// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/evochora/streamline/internal/db"
	"github.com/evochora/streamline/internal/indexer"
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/orchestrator"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
	"github.com/evochora/streamline/internal/pipeline/service"
	"github.com/evochora/streamline/internal/rawstorage"
)

// buildRegistry installs every built-in channel, resource, and service
// constructor streamlined ships with. A deployment that needs a class this
// registry doesn't have registers it the same way before calling Build —
// the registry is populated once at program start.
func buildRegistry() *orchestrator.Registry {
	reg := orchestrator.NewRegistry()

	reg.RegisterChannel("tick", orchestrator.NewChannelFactory[message.Tick]())
	reg.RegisterChannel("context", orchestrator.NewChannelFactory[message.Context]())

	reg.RegisterResource("duckdb", newDuckDBResource)
	reg.RegisterResource("rawstorage", newRawStorageResource)

	reg.RegisterService("environment-indexer", newEnvironmentIndexerService)
	reg.RegisterService("organism-indexer", newOrganismIndexerService)
	reg.RegisterService("raw-storage-indexer", newRawStorageIndexerService)

	return reg
}

func newDuckDBResource(name string, opts *orchestrator.OptionsView) (resource.Resource, error) {
	cfg := db.DefaultConfig()
	cfg.Path = opts.GetString("path", cfg.Path)
	cfg.MaxMemory = opts.GetString("maxMemory", cfg.MaxMemory)
	cfg.LedgerPath = opts.GetString("ledgerPath", cfg.LedgerPath)
	cfg.BreakerFailureThreshold = uint32(opts.GetInt("breakerFailureThreshold", int(cfg.BreakerFailureThreshold)))
	cfg.BreakerTimeout = opts.GetDuration("breakerTimeoutMs", cfg.BreakerTimeout)
	return db.New(cfg)
}

func newRawStorageResource(name string, opts *orchestrator.OptionsView) (resource.Resource, error) {
	rootDir := opts.GetString("rootDir", "")
	return rawstorage.New(rootDir)
}

// indexerOptions is the options subtree every indexer service class reads:
// a required runId plus indexer.Config's tunables, all optional.
func indexerOptions(name string, opts *orchestrator.OptionsView) (string, indexer.Config, error) {
	runID := opts.GetString("runId", "")
	if runID == "" {
		return "", indexer.Config{}, perr.New(perr.InvalidConfig, fmt.Sprintf("service %s: options.runId is required", name))
	}

	cfg := indexer.DefaultConfig()
	cfg.PollIntervalMs = opts.GetInt("pollIntervalMs", cfg.PollIntervalMs)
	cfg.MaxPollDurationMs = opts.GetInt("maxPollDurationMs", cfg.MaxPollDurationMs)
	cfg.BatchSize = opts.GetInt("batchSize", cfg.BatchSize)
	cfg.BatchTimeoutMs = opts.GetInt("batchTimeoutMs", cfg.BatchTimeoutMs)
	cfg.MaxRetries = opts.GetInt("maxRetries", cfg.MaxRetries)
	cfg.RetryBackoffBaseMs = opts.GetInt("retryBackoffBaseMs", cfg.RetryBackoffBaseMs)
	cfg.RetryBackoffCapMs = opts.GetInt("retryBackoffCapMs", cfg.RetryBackoffCapMs)
	return runID, cfg, nil
}

// multiInput returns a binding.Source reading from every attachment wired
// to port, in the insertion order the pipeline file declared them. A
// single attachment is returned directly; more than one is wrapped in a
// binding.FanIn that round-robins across them, so a pipeline file that
// fans several channels into one indexer input port has all of them
// drained instead of only the first.
func multiInput[T any](serviceName, port string, inputs map[string][]any) (binding.Source[T], error) {
	atts, ok := inputs[port]
	if !ok || len(atts) == 0 {
		return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("service %s: input port %q has no attachment", serviceName, port))
	}

	typed := make([]*binding.Attachment[T], 0, len(atts))
	for _, a := range atts {
		att, ok := a.(*binding.Attachment[T])
		if !ok {
			return nil, perr.New(perr.InvalidConfig, fmt.Sprintf("service %s: input port %q is not the expected message type", serviceName, port))
		}
		typed = append(typed, att)
	}
	if len(typed) == 1 {
		return typed[0], nil
	}
	return binding.NewFanIn(typed), nil
}

// singleResource returns the one capability wrapper expected on port,
// type-asserted to T, and binds it to runID if it implements
// resource.SimulationRunSetter. A service never sees the raw resource, so
// this is the only place that call can be made before first use.
func singleResource[T any](serviceName, port, runID string, resources map[string][]any) (T, error) {
	var zero T
	refs, ok := resources[port]
	if !ok || len(refs) == 0 {
		return zero, perr.New(perr.InvalidConfig, fmt.Sprintf("service %s: resource port %q has no attachment", serviceName, port))
	}
	wrapper := refs[0]
	if setter, ok := wrapper.(resource.SimulationRunSetter); ok {
		if err := setter.SetSimulationRun(runID); err != nil {
			return zero, perr.Wrap(perr.InvalidConfig, fmt.Sprintf("service %s: resource port %q: set simulation run", serviceName, port), err)
		}
	}
	capability, ok := wrapper.(T)
	if !ok {
		return zero, perr.New(perr.InvalidConfig, fmt.Sprintf("service %s: resource port %q does not provide the expected capability", serviceName, port))
	}
	return capability, nil
}

func newEnvironmentIndexerService(name string, opts *orchestrator.OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error) {
	runID, cfg, err := indexerOptions(name, opts)
	if err != nil {
		return nil, err
	}
	ticks, err := multiInput[message.Tick](name, "ticks", inputs)
	if err != nil {
		return nil, err
	}
	writer, err := singleResource[resource.EnvironmentDataWriter](name, "writer", runID, resources)
	if err != nil {
		return nil, err
	}
	reader, err := singleResource[resource.MetadataReader](name, "reader", runID, resources)
	if err != nil {
		return nil, err
	}
	dlq, err := singleResource[indexer.DLQSink](name, "dlq", runID, resources)
	if err != nil {
		return nil, err
	}
	return indexer.NewEnvironmentIndexer(runID, ticks, writer, reader, dlq, cfg), nil
}

func newOrganismIndexerService(name string, opts *orchestrator.OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error) {
	runID, cfg, err := indexerOptions(name, opts)
	if err != nil {
		return nil, err
	}
	ticks, err := multiInput[message.Tick](name, "ticks", inputs)
	if err != nil {
		return nil, err
	}
	writer, err := singleResource[resource.OrganismDataWriter](name, "writer", runID, resources)
	if err != nil {
		return nil, err
	}
	reader, err := singleResource[resource.MetadataReader](name, "reader", runID, resources)
	if err != nil {
		return nil, err
	}
	dlq, err := singleResource[indexer.DLQSink](name, "dlq", runID, resources)
	if err != nil {
		return nil, err
	}
	return indexer.NewOrganismIndexer(runID, ticks, writer, reader, dlq, cfg), nil
}

func newRawStorageIndexerService(name string, opts *orchestrator.OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error) {
	runID, cfg, err := indexerOptions(name, opts)
	if err != nil {
		return nil, err
	}
	ctxInput, err := multiInput[message.Context](name, "context", inputs)
	if err != nil {
		return nil, err
	}
	tickInput, err := multiInput[message.Tick](name, "ticks", inputs)
	if err != nil {
		return nil, err
	}
	provider, err := singleResource[resource.RawStorageProvider](name, "provider", runID, resources)
	if err != nil {
		return nil, err
	}
	return indexer.NewRawStorageIndexer(runID, ctxInput, tickInput, provider, cfg), nil
}
