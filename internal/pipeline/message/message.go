// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message defines the two canonical message shapes recognized at
// the persistence boundary. Everything upstream of a
// persistence service treats messages as opaque; these two shapes are only
// meaningful to the indexer and the capability wrappers it writes through.
package message

import "strconv"

// Context is the single message sent exactly once at stream start,
// describing a run. A persistence service must consume this before any
// Tick.
type Context struct {
	RunID   string
	Payload []byte // length-delimited-ready raw bytes; opaque to the core
}

// Tick is a high-volume message keyed by a monotonically non-decreasing
// TickNumber. OrganismID is set when the tick carries an individual
// organism's state; it is empty for environment-only ticks.
type Tick struct {
	RunID      string
	TickNumber uint64
	OrganismID string
	Payload    []byte
}

// BatchIdentity is the batch identity string used as the retry tracker's
// key: "{runId}:{minTick}-{maxTick}".
func BatchIdentity(runID string, minTick, maxTick uint64) string {
	return runID + ":" + strconv.FormatUint(minTick, 10) + "-" + strconv.FormatUint(maxTick, 10)
}
