// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package main is streamlined, the runnable entry point for a streamline
pipeline topology.

It is a thin wiring layer, not a CLI front end: it takes one argument, a
path to a YAML pipeline file, loads it with internal/config, installs the
registry of built-in channel/resource/service constructors, builds and
starts the topology with internal/pipeline/orchestrator, and blocks until
a shutdown signal arrives.

# Built-in constructors

	channels:
	  tick-channel    (classname "tick")     in-memory bounded message.Tick channel
	  context-channel (classname "context")  in-memory bounded message.Context channel

	resources:
	  duckdb          (classname "duckdb")     schema-isolated DuckDB resource
	  rawstorage      (classname "rawstorage")  filesystem raw-storage resource

	services:
	  environment-indexer  (classname "environment-indexer")
	  organism-indexer     (classname "organism-indexer")
	  raw-storage-indexer  (classname "raw-storage-indexer")

Every indexer service reads its own runId from its options subtree; the
rest of indexer.Config is populated from options with indexer.DefaultConfig
filling in anything the pipeline file leaves unset.

# Signal handling

SIGINT and SIGTERM trigger graceful shutdown: StopAll is given the
supervisor tree's configured ShutdownTimeout to stop every service in
reverse startup order and close every resource. SIGUSR1 dumps
GetPipelineStatus() as JSON to stderr for operational debugging, without
touching the running topology.

The process exits non-zero if any service ended in the ERROR state.
*/
package main
