// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package indexer implements the metadata-coordinated consumer pattern
// shared by every persistence service (environment, organism, raw storage):
// a metadata gate, a size/time-triggered batch loop, and a
// write-with-retry-then-DLQ handoff, regardless of which capability wrapper
// they write through.
package indexer

import "time"

// Config holds one indexer's timing and retry policy, read from its
// service's options subtree.
type Config struct {
	PollIntervalMs     int
	MaxPollDurationMs  int
	BatchSize          int
	BatchTimeoutMs     int
	MaxRetries         int
	RetryBackoffBaseMs int
	RetryBackoffCapMs  int
}

// DefaultConfig holds the defaults for interactive runs: a one-second poll
// interval, a five-minute metadata gate timeout, and a retry backoff that
// starts at 100ms and caps at 30s.
func DefaultConfig() Config {
	return Config{
		PollIntervalMs:     1000,
		MaxPollDurationMs:  300_000,
		BatchSize:          100,
		BatchTimeoutMs:     5000,
		MaxRetries:         3,
		RetryBackoffBaseMs: 100,
		RetryBackoffCapMs:  30_000,
	}
}

func (c Config) pollInterval() time.Duration    { return time.Duration(c.PollIntervalMs) * time.Millisecond }
func (c Config) maxPollDuration() time.Duration { return time.Duration(c.MaxPollDurationMs) * time.Millisecond }
func (c Config) batchTimeout() time.Duration    { return time.Duration(c.BatchTimeoutMs) * time.Millisecond }
