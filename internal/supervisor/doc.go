// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package supervisor provides process supervision for the pipeline runtime
using suture v4.

The orchestrator builds one Tree per running pipeline and adds one Runner
per configured service plus a single metrics collector:

	root ("streamline")
	├── services-layer
	│   ├── <service A> Runner
	│   ├── <service B> Runner
	│   └── ...
	└── metrics-layer
	    └── Collector

Resources are not added to the tree: they have no Serve loop, so the
orchestrator owns their Close ordering directly, outside suture.

# Failure isolation

The metrics collector lives in its own layer so a panicking or endlessly
restarting service never starves metrics collection — GetPipelineStatus
keeps reporting service state even while that service's layer is in
backoff.

# Restart and backoff

FailureThreshold/FailureDecay/FailureBackoff are suture's standard sliding
window: a service that fails more than FailureThreshold times within
FailureDecay seconds is backed off for FailureBackoff before suture
retries it again. A Runner's own Serve never returns nil on a real
failure (see internal/pipeline/service), so every unrecoverable service
error is visible to suture's restart logic and, ultimately, to
GetPipelineStatus as ERROR.
*/
package supervisor
